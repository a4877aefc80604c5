// Package session owns interactive scoring state: the last-seen device id and
// the bounded scoring history of each session.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/metrics"
	"github.com/opensource-finance/fraudlens/internal/scoring"
)

const (
	keyPrefix = "session:"

	// MaxIDLength bounds the session id accepted from clients.
	MaxIDLength = 128

	lockStripes = 64
)

// State is the persisted per-session record.
type State struct {
	LastDeviceID string                `json:"lastDeviceId,omitempty"`
	History      []domain.HistoryEntry `json:"history"`
}

// Scored is the outcome of one interactive Score call.
type Scored struct {
	Entry     domain.HistoryEntry
	Triggered []string
}

// Manager scores transactions within sessions and keeps their state in a
// domain.Cache. Calls for the same session id are serialized within a process.
type Manager struct {
	engine     *scoring.Engine
	store      domain.Cache
	ttl        time.Duration
	maxHistory int
	logger     *slog.Logger
	now        func() time.Time

	locks [lockStripes]sync.Mutex
}

// NewManager creates a session manager.
func NewManager(engine *scoring.Engine, store domain.Cache, cfg domain.SessionConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = domain.DefaultConfig().Session.MaxHistory
	}
	return &Manager{
		engine:     engine,
		store:      store,
		ttl:        cfg.TTL,
		maxHistory: maxHistory,
		logger:     logger,
		now:        time.Now,
	}
}

// NormalizeID trims a client-supplied session id and checks its length.
func NormalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.ErrSessionRequired
	}
	if len(id) > MaxIDLength {
		return "", fmt.Errorf("%w: session id longer than %d bytes", domain.ErrInvalidInput, MaxIDLength)
	}
	return id, nil
}

// Score scores tx against the session's last device id, then records the
// result. On any error the session state is left unchanged.
func (m *Manager) Score(ctx context.Context, sessionID string, tx domain.TransactionInput) (*Scored, error) {
	id, err := NormalizeID(sessionID)
	if err != nil {
		return nil, err
	}

	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	state, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	out, err := m.engine.Score(tx, state.LastDeviceID)
	if err != nil {
		metrics.ObserveError(domain.ModeInteractive, domain.ErrorKind(err))
		return nil, err
	}
	label, err := scoring.LabelFor(out.Result.Score)
	if err != nil {
		return nil, err
	}

	tx.DeviceID = strings.TrimSpace(tx.DeviceID)
	entry := domain.HistoryEntry{
		ID:          uuid.New().String(),
		Timestamp:   m.now().UTC(),
		Transaction: tx,
		Result:      out.Result,
		Label:       label,
	}

	state.LastDeviceID = out.LastDeviceID
	state.History = append(state.History, entry)
	if over := len(state.History) - m.maxHistory; over > 0 {
		state.History = append([]domain.HistoryEntry(nil), state.History[over:]...)
	}

	if err := m.save(ctx, id, state); err != nil {
		return nil, err
	}

	metrics.ObserveScore(domain.ModeInteractive, label.Name, out.Triggered)
	m.logger.Debug("transaction scored",
		"session_id", id,
		"score", out.Result.Score,
		"label", label.Name,
		"rules_triggered", len(out.Triggered),
	)

	return &Scored{Entry: entry, Triggered: out.Triggered}, nil
}

// History returns the session's entries, oldest first.
func (m *Manager) History(ctx context.Context, sessionID string) ([]domain.HistoryEntry, error) {
	id, err := NormalizeID(sessionID)
	if err != nil {
		return nil, err
	}

	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	state, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if state.History == nil {
		return []domain.HistoryEntry{}, nil
	}
	return state.History, nil
}

// LastDeviceID returns the device id the next Score call will compare against.
func (m *Manager) LastDeviceID(ctx context.Context, sessionID string) (string, error) {
	id, err := NormalizeID(sessionID)
	if err != nil {
		return "", err
	}

	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	state, err := m.load(ctx, id)
	if err != nil {
		return "", err
	}
	return state.LastDeviceID, nil
}

// Reset clears the session's history and device state.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	id, err := NormalizeID(sessionID)
	if err != nil {
		return err
	}

	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	if err := m.store.Delete(ctx, keyPrefix+id); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	m.logger.Info("session reset", "session_id", id)
	return nil
}

func (m *Manager) load(ctx context.Context, id string) (*State, error) {
	data, err := m.store.Get(ctx, keyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	state := &State{}
	if data == nil {
		return state, nil
	}
	if err := json.Unmarshal(data, state); err != nil {
		// A corrupt record is replaced rather than wedging the session.
		m.logger.Warn("discarding unreadable session state", "session_id", id, "error", err)
		return &State{}, nil
	}
	return state, nil
}

func (m *Manager) save(ctx context.Context, id string, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.store.Set(ctx, keyPrefix+id, data, m.ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (m *Manager) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &m.locks[h.Sum32()%lockStripes]
}
