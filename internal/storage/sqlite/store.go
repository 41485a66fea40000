package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/chedda-agent/internal/storage"
	"github.com/gofrs/flock"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store implements storage.Store on a local sqlite file. Writers from
// different processes are serialized by a lock file; the UNIQUE constraint
// on (network, agent, user) is the final arbiter for multisig inserts.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

var _ storage.Store = (*Store)(nil)

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store sqlite: %w", err)
	}
	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS multisig_wallets (
			network TEXT NOT NULL,
			agent_address TEXT NOT NULL,
			user_address TEXT NOT NULL,
			address TEXT NOT NULL,
			owners TEXT NOT NULL,
			threshold INTEGER NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			salt_nonce TEXT NOT NULL,
			deployment_tx_hash TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			UNIQUE(network, agent_address, user_address)
		);`,
		"CREATE INDEX IF NOT EXISTS idx_multisig_user ON multisig_wallets(network, user_address, created_at);",
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init store schema: %w", err)
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

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	locked, err := s.lock.TryLockContext(ctx, 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

const multisigColumns = "network, agent_address, user_address, address, owners, threshold, agent_id, salt_nonce, deployment_tx_hash, created_at"

func (s *Store) FindByPair(ctx context.Context, network string, agent, user common.Address) (*storage.MultisigWallet, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+multisigColumns+" FROM multisig_wallets WHERE network = ? AND agent_address = ? AND user_address = ?",
		normNetwork(network), normAddr(agent), normAddr(user))
	m, err := scanMultisig(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find multisig by pair: %w", err)
	}
	return m, nil
}

func (s *Store) FindByUser(ctx context.Context, network string, user common.Address) ([]*storage.MultisigWallet, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+multisigColumns+" FROM multisig_wallets WHERE network = ? AND user_address = ? ORDER BY created_at ASC",
		normNetwork(network), normAddr(user))
	if err != nil {
		return nil, fmt.Errorf("find multisigs by user: %w", err)
	}
	defer rows.Close()
	out := make([]*storage.MultisigWallet, 0)
	for rows.Next() {
		m, err := scanMultisig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan multisig row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate multisig rows: %w", err)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, m *storage.MultisigWallet) error {
	if err := m.Validate(); err != nil {
		return err
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return s.withLock(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO multisig_wallets ("+multisigColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			normNetwork(m.Network), normAddr(m.AgentAddress), normAddr(m.UserAddress), m.Address.Hex(),
			storage.JoinOwners(m.Owners), m.Threshold, m.AgentID, m.SaltNonce, m.DeploymentTxHash, created.Unix())
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrDuplicate
			}
			return fmt.Errorf("insert multisig: %w", err)
		}
		return nil
	})
}

func (s *Store) Register(ctx context.Context, a *storage.Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return s.withLock(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO agents (id, name, address, created_at) VALUES (?, ?, ?, ?)",
			a.ID, a.Name, a.Address.Hex(), created.Unix())
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrDuplicate
			}
			return fmt.Errorf("register agent: %w", err)
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id string) (*storage.Agent, error) {
	var (
		a           storage.Agent
		address     string
		createdUnix int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, name, address, created_at FROM agents WHERE id = ?", id).
		Scan(&a.ID, &a.Name, &address, &createdUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	a.Address = common.HexToAddress(address)
	a.CreatedAt = time.Unix(createdUnix, 0).UTC()
	return &a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMultisig(row scanner) (*storage.MultisigWallet, error) {
	var (
		m                            storage.MultisigWallet
		agent, user, address, owners string
		createdUnix                  int64
	)
	if err := row.Scan(&m.Network, &agent, &user, &address, &owners, &m.Threshold, &m.AgentID, &m.SaltNonce, &m.DeploymentTxHash, &createdUnix); err != nil {
		return nil, err
	}
	m.AgentAddress = common.HexToAddress(agent)
	m.UserAddress = common.HexToAddress(user)
	m.Address = common.HexToAddress(address)
	m.Owners = storage.SplitOwners(owners)
	m.CreatedAt = time.Unix(createdUnix, 0).UTC()
	return &m, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func normAddr(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func normNetwork(n string) string {
	return strings.ToLower(strings.TrimSpace(n))
}
