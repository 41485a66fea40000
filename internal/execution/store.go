package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	_ "modernc.org/sqlite"
)

const (
	defaultListLimit = 20
	lockWait         = 5 * time.Second
)

// Store is the sqlite action journal. Reads go straight to the database;
// writes take the lock file so several chedda processes can share one journal.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

// ListFilter narrows a journal listing. Zero fields match everything.
type ListFilter struct {
	Status  ActionStatus
	Name    string
	Network string
	Limit   int
}

var journalSchema = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	`CREATE TABLE IF NOT EXISTS actions (
		action_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		network TEXT NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		payload BLOB NOT NULL
	);`,
	"CREATE INDEX IF NOT EXISTS idx_actions_network_updated ON actions(network, updated_at DESC);",
	"CREATE INDEX IF NOT EXISTS idx_actions_status_updated ON actions(status, updated_at DESC);",
	"CREATE INDEX IF NOT EXISTS idx_actions_tx_hash ON actions(tx_hash) WHERE tx_hash != '';",
}

func OpenStore(path, lockPath string) (*Store, error) {
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create action journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open action journal: %w", err)
	}
	for _, q := range journalSchema {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init action journal schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts action. Name, network and creation time are fixed by the
// first write.
func (s *Store) Save(action Action) error {
	if strings.TrimSpace(action.ActionID) == "" {
		return errors.New("save action: missing action id")
	}
	locked, err := s.lock.TryLockContext(context.Background(), lockWait)
	if err != nil {
		return fmt.Errorf("lock action journal: %w", err)
	}
	if !locked {
		return errors.New("lock action journal: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	now := time.Now().UTC().Unix()
	_, err = s.db.Exec(`
		INSERT INTO actions (action_id, name, status, network, tx_hash, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(action_id) DO UPDATE SET
			status=excluded.status,
			tx_hash=excluded.tx_hash,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, action.ActionID, action.Name, string(action.Status), action.Network, strings.ToLower(action.TxHash),
		unixOr(action.CreatedAt, now), unixOr(action.UpdatedAt, now), payload)
	if err != nil {
		return fmt.Errorf("save action %s: %w", action.ActionID, err)
	}
	return nil
}

// Get returns the action with the given id, or a usage error when the
// journal has no such row.
func (s *Store) Get(actionID string) (Action, error) {
	return s.one("action_id", actionID, fmt.Sprintf("action not found: %s", actionID))
}

// ByTxHash returns the action that broadcast txHash.
func (s *Store) ByTxHash(txHash string) (Action, error) {
	return s.one("tx_hash", strings.ToLower(strings.TrimSpace(txHash)), fmt.Sprintf("no action submitted transaction %s", txHash))
}

func (s *Store) one(column, value, missing string) (Action, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM actions WHERE "+column+" = ? ORDER BY updated_at DESC LIMIT 1", value).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Action{}, clierr.New(clierr.CodeUsage, missing)
	}
	if err != nil {
		return Action{}, fmt.Errorf("read action: %w", err)
	}
	return decodeAction(payload)
}

// List returns journaled actions matching f, most recently updated first.
func (s *Store) List(f ListFilter) ([]Action, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		where = append(where, "name = ?")
		args = append(args, name)
	}
	if network := strings.TrimSpace(f.Network); network != "" {
		where = append(where, "network = ?")
		args = append(args, network)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q := "SELECT payload FROM actions"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	out := make([]Action, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		action, err := decodeAction(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}
	return out, nil
}

func decodeAction(payload []byte) (Action, error) {
	var action Action
	if err := json.Unmarshal(payload, &action); err != nil {
		return Action{}, fmt.Errorf("decode action payload: %w", err)
	}
	return action, nil
}

func unixOr(rfc3339 string, fallback int64) int64 {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return fallback
	}
	return t.UTC().Unix()
}
