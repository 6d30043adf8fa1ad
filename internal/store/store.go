// Package store is the durable, ordered log of conversation turns.
//
// A Store must be initialized before use. Operations invoked before a
// successful Initialize fail with turn.ErrNotReady; Append absorbs that (and
// every other write failure) into a log line so the conversation loop never
// stops because of storage.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/stupiduntilnot/chatkeep/internal/db"
	"github.com/stupiduntilnot/chatkeep/internal/retention"
	"github.com/stupiduntilnot/chatkeep/internal/turn"
)

// Store persists turns in SQLite and trims them after every write.
type Store struct {
	path   string
	logger *zap.Logger
	clock  func() time.Time
	policy retention.Policy

	mu     sync.Mutex
	db     *sql.DB
	lastTS time.Time

	trimMu sync.Mutex
	trims  conc.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used to stamp turns.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRetention overrides the retention policy.
func WithRetention(p retention.Policy) Option {
	return func(s *Store) { s.policy = p }
}

// New returns an uninitialized store backed by the SQLite file at path.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: zap.NewNop(),
		clock:  time.Now,
		policy: retention.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("store")
	return s
}

// Initialize opens the database and creates the schema. Calling it again
// after success is a no-op. On failure the store stays not ready and a later
// call may retry.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	database, err := db.OpenDB(s.path)
	if err != nil {
		s.logger.Error("failed to open store", zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("%w: %v", turn.ErrStorageUnavailable, err)
	}
	if err := db.InitSchema(database); err != nil {
		database.Close()
		s.logger.Error("failed to init schema", zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("%w: init schema: %v", turn.ErrStorageUnavailable, err)
	}

	var last sql.NullString
	if err := database.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM turns`).Scan(&last); err != nil {
		database.Close()
		return fmt.Errorf("%w: read last timestamp: %v", turn.ErrStorageUnavailable, err)
	}
	if last.Valid {
		if ts, err := turn.ParseTimestamp(last.String); err == nil {
			s.lastTS = ts
		}
	}

	s.db = database
	if _, err := db.LogEvent(database, nil, db.EventStoreInitialized, map[string]any{"path": s.path}); err != nil {
		s.logger.Warn("failed to log event", zap.String("event", db.EventStoreInitialized), zap.Error(err))
	}
	s.logger.Info("store initialized", zap.String("path", s.path))
	return nil
}

// Ready reports whether Initialize has completed successfully.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, turn.ErrNotReady
	}
	return s.db, nil
}

// Append normalizes content and stores it as a new turn. It never returns an
// error: failures are logged and the turn is dropped.
func (s *Store) Append(ctx context.Context, isUser bool, content any) {
	_, err := s.Insert(ctx, isUser, content)
	switch {
	case err == nil:
	case errors.Is(err, turn.ErrNotReady):
		s.logger.Warn("store not initialized, turn not saved", zap.Bool("is_user", isUser))
	default:
		s.logger.Error("failed to save turn", zap.Bool("is_user", isUser), zap.Error(err))
	}
}

// Insert is Append with the stored turn and the failure returned to the
// caller. A retention pass is scheduled once the write has committed.
// Cancelling ctx does not abort a write that has been invoked.
func (s *Store) Insert(ctx context.Context, isUser bool, content any) (turn.Turn, error) {
	ctx = context.WithoutCancel(ctx)
	text, err := turn.Normalize(content)
	if err != nil {
		return turn.Turn{}, err
	}

	s.mu.Lock()
	if s.db == nil {
		s.mu.Unlock()
		return turn.Turn{}, turn.ErrNotReady
	}
	database := s.db

	ts := s.clock().UTC().Truncate(time.Millisecond)
	if ts.Before(s.lastTS) {
		ts = s.lastTS
	}

	id, err := insertTurn(ctx, database, isUser, text, ts)
	if err != nil {
		s.mu.Unlock()
		return turn.Turn{}, err
	}
	s.lastTS = ts
	s.mu.Unlock()

	t := turn.Turn{ID: id, IsUser: isUser, Content: text, Timestamp: ts}
	s.logger.Debug("turn saved", zap.Int64("turn_id", id), zap.Bool("is_user", isUser))
	if _, err := db.LogEvent(database, nil, db.EventTurnAppended, map[string]any{
		"turn_id": id,
		"is_user": isUser,
		"length":  len(text),
	}); err != nil {
		s.logger.Warn("failed to log event", zap.String("event", db.EventTurnAppended), zap.Error(err))
	}

	s.trims.Go(func() { s.trim(database) })
	return t, nil
}

func insertTurn(ctx context.Context, database *sql.DB, isUser bool, text string, ts time.Time) (int64, error) {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", turn.ErrWriteFailed, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO turns (is_user, content, timestamp) VALUES (?, ?, ?)`,
		isUser, text, turn.FormatTimestamp(ts),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert: %v", turn.ErrWriteFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last insert id: %v", turn.ErrWriteFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", turn.ErrWriteFailed, err)
	}
	return id, nil
}

// trim runs one retention pass. It is best-effort and never retried.
func (s *Store) trim(database *sql.DB) {
	s.trimMu.Lock()
	defer s.trimMu.Unlock()

	removed, err := s.policy.Enforce(context.Background(), database)
	if err != nil {
		s.logger.Warn("retention pass failed", zap.Error(err))
		s.logTrimEvent(database, db.EventRetentionFailed, map[string]any{"error": err.Error()})
		return
	}
	if removed > 0 {
		s.logger.Debug("retention pass removed turns", zap.Int("removed", removed), zap.Int("cap", s.policy.Cap))
		s.logTrimEvent(database, db.EventRetentionTrimmed, map[string]any{
			"removed": removed,
			"cap":     s.policy.Cap,
		})
	}
}

func (s *Store) logTrimEvent(database *sql.DB, eventType string, payload map[string]any) {
	if _, err := db.LogEvent(database, nil, eventType, payload); err != nil {
		s.logger.Warn("failed to log event", zap.String("event", eventType), zap.Error(err))
	}
}

// ReadAllOrderedAscending returns every stored turn, oldest first. Turns with
// equal timestamps keep insertion order.
func (s *Store) ReadAllOrderedAscending(ctx context.Context) ([]turn.Turn, error) {
	database, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := database.QueryContext(ctx,
		`SELECT id, is_user, content, timestamp FROM turns ORDER BY timestamp ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	turns := []turn.Turn{}
	for rows.Next() {
		var (
			t  turn.Turn
			ts string
		)
		if err := rows.Scan(&t.ID, &t.IsUser, &t.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if t.Timestamp, err = turn.ParseTimestamp(ts); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	s.logger.Debug("loaded turns", zap.Int("count", len(turns)))
	return turns, nil
}

// Count returns the number of stored turns.
func (s *Store) Count(ctx context.Context) (int, error) {
	database, err := s.handle()
	if err != nil {
		return 0, err
	}
	var n int
	if err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}

// ClearAll deletes every turn. The store remains ready for new appends.
// Asking the user for confirmation is the caller's job.
func (s *Store) ClearAll(ctx context.Context) error {
	database, err := s.handle()
	if err != nil {
		return err
	}
	res, err := database.ExecContext(ctx, `DELETE FROM turns`)
	if err != nil {
		s.logger.Error("failed to clear history", zap.Error(err))
		return fmt.Errorf("%w: clear: %v", turn.ErrWriteFailed, err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("history cleared", zap.Int64("removed", n))
	s.LogEvent(nil, db.EventHistoryCleared, map[string]any{"removed": n})
	return nil
}

// LogEvent records an audit event. It returns 0 when the store is not ready
// or the insert failed.
func (s *Store) LogEvent(parentID *int64, eventType string, payload map[string]any) int64 {
	database, err := s.handle()
	if err != nil {
		return 0
	}
	id, err := db.LogEvent(database, parentID, eventType, payload)
	if err != nil {
		s.logger.Warn("failed to log event", zap.String("event", eventType), zap.Error(err))
		return 0
	}
	return id
}

// CountEvents returns how many audit events of the given type exist.
func (s *Store) CountEvents(eventType string) (int, error) {
	database, err := s.handle()
	if err != nil {
		return 0, err
	}
	return db.CountEvents(database, eventType)
}

// WaitIdle blocks until every scheduled retention pass has finished.
func (s *Store) WaitIdle() {
	s.trims.Wait()
}

// Close waits for pending retention passes and closes the database. The
// store can be initialized again afterwards.
func (s *Store) Close() error {
	s.trims.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
