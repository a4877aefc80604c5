package domain

import (
	"strings"
	"time"
)

// ReasonSeparator joins reasons into the single Reasons export column.
const ReasonSeparator = "; "

// ScoringResult is the outcome of scoring one transaction.
type ScoringResult struct {
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// ReasonsText joins the reasons for tabular output.
func (r ScoringResult) ReasonsText() string {
	return strings.Join(r.Reasons, ReasonSeparator)
}

// Label is the qualitative risk tier derived from a score.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

var (
	LabelLow    = Label{Name: "Low", Color: "green"}
	LabelMedium = Label{Name: "Medium", Color: "orange"}
	LabelHigh   = Label{Name: "High", Color: "red"}
)

// String returns the display string.
func (l Label) String() string {
	return l.Name
}

// HistoryEntry records one interactive scoring call within a session.
type HistoryEntry struct {
	ID          string           `json:"id"`
	Timestamp   time.Time        `json:"timestamp"`
	Transaction TransactionInput `json:"transaction"`
	Result      ScoringResult    `json:"result"`
	Label       Label            `json:"label"`
}

// ScoredEvent is published on the event bus whenever a transaction is scored.
type ScoredEvent struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"` // "interactive" or "batch"
	SessionID string    `json:"sessionId,omitempty"`
	Row       int       `json:"row,omitempty"`
	Score     int       `json:"score"`
	Label     string    `json:"label"`
	Reasons   []string  `json:"reasons,omitempty"`
	TraceID   string    `json:"traceId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Scoring modes.
const (
	ModeInteractive = "interactive"
	ModeBatch       = "batch"
)

// BatchCompletedEvent summarizes one finished batch.
type BatchCompletedEvent struct {
	ID              string    `json:"id"`
	Rows            int       `json:"rows"`
	Scored          int       `json:"scored"`
	Failed          int       `json:"failed"`
	High            int       `json:"high"`
	VelocityFlagged int       `json:"velocityFlagged"`
	DurationMs      int64     `json:"durationMs"`
	TraceID         string    `json:"traceId,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Alert is raised for every transaction labeled High.
type Alert struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	Mode      string    `json:"mode"`
	SessionID string    `json:"sessionId,omitempty"`
	Row       int       `json:"row,omitempty"`
	Score     int       `json:"score"`
	Reasons   []string  `json:"reasons,omitempty"`
	TraceID   string    `json:"traceId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
