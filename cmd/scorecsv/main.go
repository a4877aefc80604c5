// Offline batch scorer for FraudLens transaction tables.
//
// Usage:
//
//	go run ./cmd/scorecsv -in transactions.csv -out scored.csv
//
// This tool:
//  1. Reads a CSV table with the required transaction columns
//  2. Scores every row with the built-in rules
//  3. Flags repeated Card_ID values as high velocity
//  4. Writes the table back with Risk_Score, Result, Reasons and Velocity_Flag
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/opensource-finance/fraudlens/internal/batch"
	"github.com/opensource-finance/fraudlens/internal/config"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/logging"
	"github.com/opensource-finance/fraudlens/internal/scoring"
)

func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	inPath := flag.String("in", "", "Path to the input CSV (- for stdin)")
	outPath := flag.String("out", "-", "Path to the scored CSV (- for stdout)")
	rate := flag.Float64("rate", cfg.Scoring.NGNPerUSD, "NGN per USD exchange rate")
	workers := flag.Int("workers", cfg.Batch.Workers, "Number of scoring workers")
	maxRows := flag.Int("max-rows", 0, "Reject tables with more rows (0 = no limit)")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: scorecsv -in transactions.csv [-out scored.csv]")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// Logs go to stderr so stdout can carry the CSV.
	logger := logging.NewWithWriter(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scoringCfg := cfg.Scoring
	scoringCfg.NGNPerUSD = *rate

	if err := run(ctx, scoringCfg, *inPath, *outPath, *workers, *maxRows, logger); err != nil {
		logger.Error("scoring failed", "error", err, "kind", domain.ErrorKind(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, scoringCfg domain.ScoringConfig, inPath, outPath string, workers, maxRows int, logger *slog.Logger) error {
	engine, err := scoring.NewEngine(scoringCfg)
	if err != nil {
		return err
	}

	in, closeIn, err := openInput(inPath)
	if err != nil {
		return err
	}
	defer closeIn()

	table, err := batch.ReadTable(in)
	if err != nil {
		return err
	}

	processor := batch.NewProcessor(engine,
		batch.WithWorkers(workers),
		batch.WithMaxRows(maxRows),
		batch.WithLogger(logger),
	)

	start := time.Now()
	res, err := processor.Process(ctx, table)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(outPath)
	if err != nil {
		return err
	}
	if err := batch.WriteCSV(out, res); err != nil {
		_ = closeOut()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := closeOut(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}

	printSummary(res, time.Since(start))
	return nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, f.Close, nil
}

func printSummary(res *batch.Result, elapsed time.Duration) {
	counts := map[string]int{}
	for i := range res.Rows {
		if res.Rows[i].OK() {
			counts[res.Rows[i].Label.Name]++
		}
	}

	total := len(res.Rows)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Rows:     %s\n", humanize.Comma(int64(total)))
	fmt.Fprintf(os.Stderr, "Scored:   %s\n", humanize.Comma(int64(res.Scored)))
	fmt.Fprintf(os.Stderr, "Failed:   %s\n", humanize.Comma(int64(res.Failed)))
	for _, label := range []domain.Label{domain.LabelLow, domain.LabelMedium, domain.LabelHigh} {
		fmt.Fprintf(os.Stderr, "  %-7s %s\n", label.Name+":", humanize.Comma(int64(counts[label.Name])))
	}
	rate := 0.0
	if elapsed > 0 {
		rate = float64(total) / elapsed.Seconds()
	}
	fmt.Fprintf(os.Stderr, "Elapsed:  %s (%s rows/s)\n", elapsed.Round(time.Millisecond), humanize.Commaf(float64(int64(rate))))

	if res.Failed > 0 {
		fmt.Fprintln(os.Stderr, "\nFailed rows (not written to output):")
		for i := range res.Rows {
			row := &res.Rows[i]
			if !row.OK() {
				fmt.Fprintf(os.Stderr, "  row %d: %s\n", row.Row+1, row.Error)
			}
		}
	}
}
