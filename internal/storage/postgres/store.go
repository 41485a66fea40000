package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/chedda-agent/internal/storage"
	"github.com/jackc/pgx/v5"
)

// Store implements storage.Store on PostgreSQL. It is the backend for
// deployments where several agent processes share one registry.
type Store struct {
	pool *Pool
}

var _ storage.Store = (*Store)(nil)

// Open connects to dsn and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStore(pool), nil
}

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const multisigColumns = "network, agent_address, user_address, address, owners, threshold, agent_id, salt_nonce, deployment_tx_hash, created_at"

func (s *Store) FindByPair(ctx context.Context, network string, agent, user common.Address) (*storage.MultisigWallet, error) {
	query := "SELECT " + multisigColumns + ` FROM multisig_wallets
		WHERE network = $1 AND agent_address = $2 AND user_address = $3`
	m, err := scanMultisig(s.pool.QueryRow(ctx, query, normNetwork(network), normAddr(agent), normAddr(user)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find multisig by pair: %w", err)
	}
	return m, nil
}

func (s *Store) FindByUser(ctx context.Context, network string, user common.Address) ([]*storage.MultisigWallet, error) {
	query := "SELECT " + multisigColumns + ` FROM multisig_wallets
		WHERE network = $1 AND user_address = $2
		ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, normNetwork(network), normAddr(user))
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

// Insert returns storage.ErrDuplicate on a unique violation of the pair key.
func (s *Store) Insert(ctx context.Context, m *storage.MultisigWallet) error {
	if err := m.Validate(); err != nil {
		return err
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	owners := make([]string, len(m.Owners))
	for i, o := range m.Owners {
		owners[i] = o.Hex()
	}
	query := "INSERT INTO multisig_wallets (" + multisigColumns + ") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)"
	_, err := s.pool.Exec(ctx, query,
		normNetwork(m.Network),
		normAddr(m.AgentAddress),
		normAddr(m.UserAddress),
		m.Address.Hex(),
		owners,
		m.Threshold,
		m.AgentID,
		m.SaltNonce,
		m.DeploymentTxHash,
		created,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("insert multisig: %w", err)
	}
	return nil
}

func (s *Store) Register(ctx context.Context, a *storage.Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		"INSERT INTO agents (id, name, address, created_at) VALUES ($1, $2, $3, $4)",
		a.ID, a.Name, a.Address.Hex(), created)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("register agent: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*storage.Agent, error) {
	var (
		a       storage.Agent
		address string
	)
	err := s.pool.QueryRow(ctx, "SELECT id, name, address, created_at FROM agents WHERE id = $1", id).
		Scan(&a.ID, &a.Name, &address, &a.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	a.Address = common.HexToAddress(address)
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func scanMultisig(row pgx.Row) (*storage.MultisigWallet, error) {
	var (
		m                    storage.MultisigWallet
		agent, user, address string
		owners               []string
	)
	if err := row.Scan(&m.Network, &agent, &user, &address, &owners, &m.Threshold, &m.AgentID, &m.SaltNonce, &m.DeploymentTxHash, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.AgentAddress = common.HexToAddress(agent)
	m.UserAddress = common.HexToAddress(user)
	m.Address = common.HexToAddress(address)
	m.Owners = make([]common.Address, len(owners))
	for i, o := range owners {
		m.Owners[i] = common.HexToAddress(o)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func normAddr(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func normNetwork(n string) string {
	return strings.ToLower(strings.TrimSpace(n))
}
