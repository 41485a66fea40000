package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	KeySourceAuto     = "auto"
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"
)

// KeyEnv names the environment variables and default key file for one key role.
type KeyEnv struct {
	Role                 string
	PrivateKey           string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
	DefaultRelativePath  string
}

var (
	// AgentKeyEnv holds the agent wallet key used for direct-mode submissions.
	AgentKeyEnv = KeyEnv{
		Role:                 "agent",
		PrivateKey:           "CHEDDA_PRIVATE_KEY",
		PrivateKeyFile:       "CHEDDA_PRIVATE_KEY_FILE",
		KeystorePath:         "CHEDDA_KEYSTORE_PATH",
		KeystorePassword:     "CHEDDA_KEYSTORE_PASSWORD",
		KeystorePasswordFile: "CHEDDA_KEYSTORE_PASSWORD_FILE",
		DefaultRelativePath:  "chedda/key.hex",
	}
	// CoordinatorKeyEnv holds the third Safe owner that deploys, proposes and confirms.
	CoordinatorKeyEnv = KeyEnv{
		Role:                 "coordinator",
		PrivateKey:           "CHEDDA_COORDINATOR_PRIVATE_KEY",
		PrivateKeyFile:       "CHEDDA_COORDINATOR_PRIVATE_KEY_FILE",
		KeystorePath:         "CHEDDA_COORDINATOR_KEYSTORE_PATH",
		KeystorePassword:     "CHEDDA_COORDINATOR_KEYSTORE_PASSWORD",
		KeystorePasswordFile: "CHEDDA_COORDINATOR_KEYSTORE_PASSWORD_FILE",
		DefaultRelativePath:  "chedda/coordinator.hex",
	}
)

type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, s.privateKey)
}

// SignHash signs hash with the eth_sign prefix and shifts v by 4 so that Safe
// contracts verify it through the eth_sign branch (v = 31 or 32).
func (s *LocalSigner) SignHash(hash common.Hash) ([]byte, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	sig, err := crypto.Sign(accounts.TextHash(hash.Bytes()), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign hash: %w", err)
	}
	sig[64] += 27 + 4
	return sig, nil
}

// NewLocalSignerFromEnv loads the key for one role from the environment,
// restricted to source (auto, env, file or keystore).
func NewLocalSignerFromEnv(env KeyEnv, source string) (*LocalSigner, error) {
	cfg, err := env.Config(source)
	if err != nil {
		return nil, err
	}
	pk, err := loadPrivateKey(cfg)
	if errors.Is(err, errMissingKey) {
		return nil, fmt.Errorf("missing %s key: set %s, %s or %s, or place a hex key at %s",
			env.Role, env.PrivateKey, env.PrivateKeyFile, env.KeystorePath, defaultPrivateKeyPath(env.DefaultRelativePath))
	}
	if err != nil {
		return nil, fmt.Errorf("load %s key: %w", env.Role, err)
	}
	return newFromKey(pk)
}

// Config reads env's variables and keeps only the inputs source allows. With
// auto, precedence is hex key, key file, then keystore.
func (env KeyEnv) Config(source string) (LocalSignerConfig, error) {
	cfg := LocalSignerConfig{
		PrivateKeyHex:        strings.TrimSpace(os.Getenv(env.PrivateKey)),
		PrivateKeyFile:       strings.TrimSpace(os.Getenv(env.PrivateKeyFile)),
		KeystorePath:         strings.TrimSpace(os.Getenv(env.KeystorePath)),
		KeystorePassword:     strings.TrimSpace(os.Getenv(env.KeystorePassword)),
		KeystorePasswordFile: strings.TrimSpace(os.Getenv(env.KeystorePasswordFile)),
	}
	if cfg.PrivateKeyFile == "" {
		cfg.PrivateKeyFile = discoverDefaultPrivateKeyFile(env.DefaultRelativePath)
	}
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", KeySourceAuto:
		return cfg, nil
	case KeySourceEnv:
		return LocalSignerConfig{PrivateKeyHex: cfg.PrivateKeyHex}, nil
	case KeySourceFile:
		return LocalSignerConfig{PrivateKeyFile: cfg.PrivateKeyFile}, nil
	case KeySourceKeystore:
		cfg.PrivateKeyHex, cfg.PrivateKeyFile = "", ""
		return cfg, nil
	default:
		return LocalSignerConfig{}, fmt.Errorf("unsupported key source %q (expected %s|%s|%s|%s)", source, KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore)
	}
}

type LocalSignerConfig struct {
	PrivateKeyHex        string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
}

func NewLocalSigner(cfg LocalSignerConfig) (*LocalSigner, error) {
	pk, err := loadPrivateKey(cfg)
	if err != nil {
		return nil, err
	}
	return newFromKey(pk)
}

func newFromKey(pk *ecdsa.PrivateKey) (*LocalSigner, error) {
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid ECDSA public key")
	}
	return &LocalSigner{privateKey: pk, address: crypto.PubkeyToAddress(*pub)}, nil
}

var errMissingKey = errors.New("missing signing key")

func loadPrivateKey(cfg LocalSignerConfig) (*ecdsa.PrivateKey, error) {
	if strings.TrimSpace(cfg.PrivateKeyHex) != "" {
		return parseHexKey(cfg.PrivateKeyHex)
	}
	if strings.TrimSpace(cfg.PrivateKeyFile) != "" {
		buf, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return parseHexKey(string(buf))
	}
	if strings.TrimSpace(cfg.KeystorePath) != "" {
		password := cfg.KeystorePassword
		if strings.TrimSpace(password) == "" && strings.TrimSpace(cfg.KeystorePasswordFile) != "" {
			buf, err := os.ReadFile(cfg.KeystorePasswordFile)
			if err != nil {
				return nil, fmt.Errorf("read keystore password file: %w", err)
			}
			password = strings.TrimSpace(string(buf))
		}
		if strings.TrimSpace(password) == "" {
			return nil, fmt.Errorf("keystore password is required")
		}
		buf, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("read keystore file: %w", err)
		}
		key, err := keystore.DecryptKey(buf, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore: %w", err)
		}
		return key.PrivateKey, nil
	}
	return nil, errMissingKey
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

func defaultPrivateKeyPath(relative string) string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, relative)
}

func discoverDefaultPrivateKeyFile(relative string) string {
	if relative == "" {
		return ""
	}
	path := defaultPrivateKeyPath(relative)
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}
