package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/floor-mixer/internal/logger"
	"github.com/sweeney/floor-mixer/internal/logic"
)

// Entry kinds.
const (
	KindCycle = "CYCLE"
	KindFault = "FAULT"
)

// Entry is one journal row.
type Entry struct {
	ID      string
	At      time.Time
	Kind    string
	State   logic.State
	Mixed   float64
	Target  float64
	Diff    float64
	PulseMs int64
	Reason  string
}

// CycleEntry converts a control decision into a journal entry.
func CycleEntry(d logic.Decision) Entry {
	return Entry{
		At:      d.At,
		Kind:    KindCycle,
		State:   d.State,
		Mixed:   d.Mixed,
		Target:  d.Target,
		Diff:    d.Diff,
		PulseMs: d.Pulse.Milliseconds(),
	}
}

// FaultEntry records a fail-safe reset.
func FaultEntry(at time.Time, reason string) Entry {
	return Entry{At: at, Kind: KindFault, Reason: reason}
}

// Store reads and writes journal rows.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts e, assigning an ID when it has none.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, occurred_ms, kind, state, mixed_c, target_c, diff_c, pulse_ms, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.At.UnixMilli(), e.Kind, string(e.State), e.Mixed, e.Target, e.Diff, e.PulseMs, e.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurred_ms, kind, state, mixed_c, target_c, diff_c, pulse_ms, reason
		FROM entries ORDER BY occurred_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			ms    int64
			state string
		)
		if err := rows.Scan(&e.ID, &ms, &e.Kind, &state, &e.Mixed, &e.Target, &e.Diff, &e.PulseMs, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.At = time.UnixMilli(ms).UTC()
		e.State = logic.State(state)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return out, nil
}

// Writer queues entries from the control loop and writes them from its own
// goroutine, so a slow SD card never stalls the valve timing.
type Writer struct {
	store *Store
	queue chan Entry
	log   *logger.Logger
}

// NewWriter creates a Writer with room for depth queued entries.
func NewWriter(store *Store, depth int, log *logger.Logger) *Writer {
	return &Writer{store: store, queue: make(chan Entry, depth), log: log}
}

// Record queues e. When the queue is full the entry is dropped.
func (w *Writer) Record(e Entry) {
	select {
	case w.queue <- e:
	default:
		w.log.Warnw("journal queue full, dropping entry", "kind", e.Kind)
	}
}

// Run writes queued entries until ctx is cancelled, then drains what is left.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case e := <-w.queue:
			w.write(ctx, e)
		case <-ctx.Done():
			for {
				select {
				case e := <-w.queue:
					w.write(context.Background(), e)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(ctx context.Context, e Entry) {
	if err := w.store.Append(ctx, e); err != nil {
		w.log.Errorw("journal write failed", "kind", e.Kind, "err", err)
	}
}
