package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/fraudlens/internal/batch"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/scoring"
	"github.com/opensource-finance/fraudlens/internal/session"
	"github.com/opensource-finance/fraudlens/internal/velocity"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	engine    *scoring.Engine
	sessions  *session.Manager
	processor *batch.Processor
	cache     domain.Cache
	bus       domain.EventBus
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(engine *scoring.Engine, sessions *session.Manager, processor *batch.Processor, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		engine:    engine,
		sessions:  sessions,
		processor: processor,
		cache:     cache,
		bus:       bus,
		version:   version,
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// ScoreRequest is the request body for POST /score. Enum fields are free
// text and matched case-insensitively.
type ScoreRequest struct {
	Amount           *decimal.Decimal `json:"amount"`
	Currency         string           `json:"currency"`
	Country          string           `json:"country"`
	UsualCountry     string           `json:"usualCountry"`
	MerchantCategory string           `json:"merchantCategory"`
	Channel          string           `json:"channel"`
	Hour             *int             `json:"hour"`
	CardPresent      *bool            `json:"cardPresent"`
	DeviceID         string           `json:"deviceId,omitempty"`
}

// Transaction validates the request into a scorer input.
func (req *ScoreRequest) Transaction() (domain.TransactionInput, error) {
	var tx domain.TransactionInput

	if req.Amount == nil {
		return tx, fmt.Errorf("%w: amount is required", domain.ErrInvalidInput)
	}
	if req.Hour == nil {
		return tx, fmt.Errorf("%w: hour is required", domain.ErrInvalidInput)
	}
	if req.CardPresent == nil {
		return tx, fmt.Errorf("%w: cardPresent is required", domain.ErrInvalidInput)
	}
	cur, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		return tx, err
	}
	merchant, err := domain.ParseMerchantCategory(req.MerchantCategory)
	if err != nil {
		return tx, err
	}
	channel, err := domain.ParseChannel(req.Channel)
	if err != nil {
		return tx, err
	}

	tx = domain.TransactionInput{
		Amount:           *req.Amount,
		Currency:         cur,
		Country:          req.Country,
		UsualCountry:     req.UsualCountry,
		MerchantCategory: merchant,
		Channel:          channel,
		Hour:             *req.Hour,
		CardPresent:      *req.CardPresent,
		DeviceID:         req.DeviceID,
	}
	return tx, tx.Validate()
}

// ScoreResponse is the response for POST /score.
type ScoreResponse struct {
	ID        string    `json:"id"`
	Score     int       `json:"score"`
	Label     string    `json:"label"`
	Color     string    `json:"color"`
	Reasons   []string  `json:"reasons"`
	Triggered []string  `json:"triggered"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata"`
}

// Metadata is attached to scoring responses.
type Metadata struct {
	TraceID string `json:"traceId"`
	TotalMs int64  `json:"totalMs"`
	Version string `json:"version"`
}

// Score handles POST /score.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	sessionID := GetSessionID(ctx)
	traceID := GetTraceID(ctx)

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}

	tx, err := req.Transaction()
	if err != nil {
		writeError(w, err)
		return
	}

	scored, err := h.sessions.Score(ctx, sessionID, tx)
	if err != nil {
		writeError(w, err)
		return
	}
	entry := scored.Entry

	h.publish(ctx, domain.TopicTransactionScored, domain.ScoredEvent{
		ID:        entry.ID,
		Mode:      domain.ModeInteractive,
		SessionID: sessionID,
		Score:     entry.Result.Score,
		Label:     entry.Label.Name,
		Reasons:   entry.Result.Reasons,
		TraceID:   traceID,
		Timestamp: entry.Timestamp,
	})

	writeJSON(w, http.StatusOK, ScoreResponse{
		ID:        entry.ID,
		Score:     entry.Result.Score,
		Label:     entry.Label.Name,
		Color:     entry.Label.Color,
		Reasons:   entry.Result.Reasons,
		Triggered: scored.Triggered,
		Timestamp: entry.Timestamp,
		Metadata: Metadata{
			TraceID: traceID,
			TotalMs: time.Since(start).Milliseconds(),
			Version: h.version,
		},
	})
}

// HistoryResponse is the response for GET /history.
type HistoryResponse struct {
	SessionID string                `json:"sessionId"`
	Count     int                   `json:"count"`
	Entries   []domain.HistoryEntry `json:"entries"`
}

// GetHistory handles GET /history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := GetSessionID(r.Context())

	entries, err := h.sessions.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		SessionID: sessionID,
		Count:     len(entries),
		Entries:   entries,
	})
}

// ExportHistory handles GET /history/export.
func (h *Handler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.sessions.History(r.Context(), GetSessionID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="fraudlens-history.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := batch.WriteHistoryCSV(w, entries); err != nil {
		slog.Error("failed to write history export", "error", err)
	}
}

// ResetHistory handles DELETE /history.
func (h *Handler) ResetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := GetSessionID(r.Context())
	if err := h.sessions.Reset(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"sessionId": sessionID,
		"status":    "reset",
	})
}

// BatchResponse is the JSON response for POST /batch.
type BatchResponse struct {
	BatchID         string            `json:"batchId"`
	Columns         []string          `json:"columns"`
	Rows            int               `json:"rows"`
	Scored          int               `json:"scored"`
	Failed          int               `json:"failed"`
	VelocityChecked bool              `json:"velocityChecked"`
	Results         []batch.RowResult `json:"results"`
	Metadata        Metadata          `json:"metadata"`
}

// ScoreBatch handles POST /batch. The table is read from a multipart "file"
// field or from the raw body. ?format=csv returns the export CSV.
func (h *Handler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	body, closeBody, err := batchBody(r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	defer closeBody()

	table, err := batch.ReadTable(body)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := h.processor.Process(ctx, table)
	if err != nil {
		writeError(w, err)
		return
	}

	batchID := uuid.New().String()
	summary := domain.BatchCompletedEvent{
		ID:         batchID,
		Rows:       table.Len(),
		Scored:     res.Scored,
		Failed:     res.Failed,
		TraceID:    traceID,
		Timestamp:  time.Now().UTC(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	for i := range res.Rows {
		row := &res.Rows[i]
		if row.VelocityFlag == velocity.HighVelocity {
			summary.VelocityFlagged++
		}
		if !row.OK() {
			continue
		}
		if row.Label == domain.LabelHigh {
			summary.High++
		}
		h.publish(ctx, domain.TopicTransactionScored, domain.ScoredEvent{
			ID:        fmt.Sprintf("%s:%d", batchID, row.Row),
			Mode:      domain.ModeBatch,
			Row:       row.Row,
			Score:     row.Score,
			Label:     row.Label.Name,
			Reasons:   row.Reasons,
			TraceID:   traceID,
			Timestamp: summary.Timestamp,
		})
	}
	h.publish(ctx, domain.TopicBatchCompleted, summary)

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="fraudlens-scored.csv"`)
		w.Header().Set("X-Batch-Failed", strconv.Itoa(res.Failed))
		w.WriteHeader(http.StatusOK)
		if err := batch.WriteCSV(w, res); err != nil {
			slog.Error("failed to write batch export", "batch_id", batchID, "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, BatchResponse{
		BatchID:         batchID,
		Columns:         table.Header,
		Rows:            table.Len(),
		Scored:          res.Scored,
		Failed:          res.Failed,
		VelocityChecked: table.Has(batch.ColumnCardID),
		Results:         res.Rows,
		Metadata: Metadata{
			TraceID: traceID,
			TotalMs: time.Since(start).Milliseconds(),
			Version: h.version,
		},
	})
}

// batchBody returns the uploaded table stream.
func batchBody(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, nil
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrInvalidInput)
	}
	return file, func() { _ = file.Close() }, nil
}

// RuleResponse describes one rule for GET /rules.
type RuleResponse struct {
	Order      int    `json:"order"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Weight     int    `json:"weight"`
}

// ListRules handles GET /rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.engine.Rules()
	out := make([]RuleResponse, len(rules))
	for i, rule := range rules {
		out[i] = RuleResponse{
			Order:      i + 1,
			ID:         rule.ID,
			Name:       rule.Name,
			Expression: rule.Expression,
			Weight:     rule.Weight,
		}
	}

	cfg := h.engine.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":    out,
		"count":    len(out),
		"maxScore": scoring.MaxScore,
		"thresholds": map[string]any{
			"medium": scoring.MediumThreshold,
			"high":   scoring.HighThreshold,
		},
		"ngnPerUsd": cfg.NGNPerUSD,
	})
}

// GetLabel handles GET /labels/{score}.
func (h *Handler) GetLabel(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "score")
	score, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, fmt.Errorf("%w: score %q is not an integer", domain.ErrInvalidInput, raw))
		return
	}

	label, err := scoring.LabelFor(score)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"score": score,
		"label": label.Name,
		"color": label.Color,
	})
}

// Health returns the health status of the server.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := map[string]string{}

	if h.cache != nil {
		components["cache"] = "ok"
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
			components["cache"] = err.Error()
		}
	}
	if h.bus != nil {
		components["bus"] = "ok"
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
			components["bus"] = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// publish sends an event. Bus failures are logged and never fail the request.
func (h *Handler) publish(ctx context.Context, topic string, event any) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := h.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors to 400 and everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	kind := domain.ErrorKind(err)
	if kind == "internal" {
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Kind:  kind,
		})
		return
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: kind})
}

// writeDecodeError reports malformed or oversized request bodies.
func writeDecodeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit),
			Kind:  "request_too_large",
		})
		return
	}
	if domain.ErrorKind(err) == "internal" {
		err = fmt.Errorf("%w: malformed request body: %v", domain.ErrInvalidInput, err)
	}
	writeError(w, err)
}
