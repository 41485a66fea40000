package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"

	DefaultNetwork    = "base-sepolia"
	DefaultListenAddr = "127.0.0.1:8080"
)

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	EnableActions  string
	Timeout        string
	Retries        int
	LogLevel       string
	Network        string
	RPCURL         string
	SafeServiceURL string
	KeySource      string
	NoCache        bool
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	EnableActions  []string
	Timeout        time.Duration
	Retries        int
	LogLevel       string
	LogFormat      string

	Network        string
	RPCURL         string
	SafeServiceURL string
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	GasMultiplier  float64
	KeySource      string

	MultisigThreshold int

	StoreDriver   string
	StorePath     string
	StoreLockPath string
	PostgresDSN   string

	CacheEnabled    bool
	CachePath       string
	CacheLockPath   string
	ActionStorePath string
	ActionLockPath  string

	ListenAddr string
}

type fileConfig struct {
	Output         string   `yaml:"output"`
	Timeout        string   `yaml:"timeout"`
	Retries        *int     `yaml:"retries"`
	EnabledActions []string `yaml:"enabled_actions"`
	Log            struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Chain struct {
		Network        string   `yaml:"network"`
		RPCURL         string   `yaml:"rpc_url"`
		ReceiptTimeout string   `yaml:"receipt_timeout"`
		PollInterval   string   `yaml:"poll_interval"`
		GasMultiplier  *float64 `yaml:"gas_multiplier"`
		KeySource      string   `yaml:"key_source"`
	} `yaml:"chain"`
	Multisig struct {
		Threshold      *int   `yaml:"threshold"`
		SafeServiceURL string `yaml:"safe_service_url"`
	} `yaml:"multisig"`
	Store struct {
		Driver      string `yaml:"driver"`
		Path        string `yaml:"path"`
		LockPath    string `yaml:"lock_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
		DSNEnv      string `yaml:"postgres_dsn_env"`
	} `yaml:"store"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Execution struct {
		ActionsPath     string `yaml:"actions_path"`
		ActionsLockPath string `yaml:"actions_lock_path"`
	} `yaml:"execution"`
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
}

// Load resolves settings from defaults, an optional .env file, the YAML
// config file, CHEDDA_* variables and finally flags, each layer overriding
// the previous one.
func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.ReceiptTimeout <= 0 {
		settings.ReceiptTimeout = 2 * time.Minute
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}
	return settings, validate(settings)
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	dataDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:        "json",
		Timeout:           10 * time.Second,
		Retries:           2,
		LogLevel:          "warn",
		Network:           DefaultNetwork,
		ReceiptTimeout:    2 * time.Minute,
		PollInterval:      2 * time.Second,
		GasMultiplier:     1.2,
		KeySource:         "auto",
		MultisigThreshold: 3,
		StoreDriver:       StoreDriverSQLite,
		StorePath:         filepath.Join(dataDir, "multisig.db"),
		StoreLockPath:     filepath.Join(dataDir, "multisig.lock"),
		CacheEnabled:      true,
		CachePath:         cachePath,
		CacheLockPath:     lockPath,
		ActionStorePath:   filepath.Join(dataDir, "actions.db"),
		ActionLockPath:    filepath.Join(dataDir, "actions.lock"),
		ListenAddr:        DefaultListenAddr,
	}, nil
}

// loadDotEnv reads path, or ./.env when path is empty, into the process
// environment without overriding variables that are already set. A missing
// default file is not an error.
func loadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("parse env file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	if v := os.Getenv("CHEDDA_CONFIG"); v != "" {
		return v, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "chedda", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "chedda")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if len(cfg.EnabledActions) > 0 {
		settings.EnableActions = cfg.EnabledActions
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = cfg.Log.Format
	}

	if cfg.Chain.Network != "" {
		settings.Network = cfg.Chain.Network
	}
	if cfg.Chain.RPCURL != "" {
		settings.RPCURL = cfg.Chain.RPCURL
	}
	if cfg.Chain.ReceiptTimeout != "" {
		d, err := time.ParseDuration(cfg.Chain.ReceiptTimeout)
		if err != nil {
			return fmt.Errorf("config chain.receipt_timeout: %w", err)
		}
		settings.ReceiptTimeout = d
	}
	if cfg.Chain.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Chain.PollInterval)
		if err != nil {
			return fmt.Errorf("config chain.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Chain.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Chain.GasMultiplier
	}
	if cfg.Chain.KeySource != "" {
		settings.KeySource = cfg.Chain.KeySource
	}

	if cfg.Multisig.Threshold != nil {
		settings.MultisigThreshold = *cfg.Multisig.Threshold
	}
	if cfg.Multisig.SafeServiceURL != "" {
		settings.SafeServiceURL = cfg.Multisig.SafeServiceURL
	}

	if cfg.Store.Driver != "" {
		settings.StoreDriver = strings.ToLower(cfg.Store.Driver)
	}
	if cfg.Store.Path != "" {
		settings.StorePath = cfg.Store.Path
	}
	if cfg.Store.LockPath != "" {
		settings.StoreLockPath = cfg.Store.LockPath
	}
	if cfg.Store.PostgresDSN != "" {
		settings.PostgresDSN = cfg.Store.PostgresDSN
	}
	if cfg.Store.DSNEnv != "" {
		settings.PostgresDSN = os.Getenv(cfg.Store.DSNEnv)
	}

	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Execution.ActionsPath != "" {
		settings.ActionStorePath = cfg.Execution.ActionsPath
	}
	if cfg.Execution.ActionsLockPath != "" {
		settings.ActionLockPath = cfg.Execution.ActionsLockPath
	}
	if cfg.Server.Listen != "" {
		settings.ListenAddr = cfg.Server.Listen
	}
	return nil
}

func applyEnv(settings *Settings) error {
	if v := os.Getenv("CHEDDA_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("CHEDDA_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("CHEDDA_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("CHEDDA_ENABLED_ACTIONS"); v != "" {
		settings.EnableActions = splitList(v)
	}
	if v := os.Getenv("CHEDDA_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("CHEDDA_LOG_FORMAT"); v != "" {
		settings.LogFormat = v
	}
	if v := os.Getenv("CHEDDA_NETWORK"); v != "" {
		settings.Network = v
	}
	if v := os.Getenv("CHEDDA_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("CHEDDA_RECEIPT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ReceiptTimeout = d
		}
	}
	if v := os.Getenv("CHEDDA_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.PollInterval = d
		}
	}
	if v := os.Getenv("CHEDDA_KEY_SOURCE"); v != "" {
		settings.KeySource = v
	}
	if v := os.Getenv("CHEDDA_SAFE_SERVICE_URL"); v != "" {
		settings.SafeServiceURL = v
	}
	if v := os.Getenv("CHEDDA_MULTISIG_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse CHEDDA_MULTISIG_THRESHOLD: %w", err)
		}
		settings.MultisigThreshold = n
	}
	if v := os.Getenv("CHEDDA_STORE_DRIVER"); v != "" {
		settings.StoreDriver = strings.ToLower(v)
	}
	if v := os.Getenv("CHEDDA_STORE_PATH"); v != "" {
		settings.StorePath = v
	}
	if v := os.Getenv("CHEDDA_STORE_LOCK_PATH"); v != "" {
		settings.StoreLockPath = v
	}
	if v := os.Getenv("CHEDDA_POSTGRES_DSN"); v != "" {
		settings.PostgresDSN = v
	}
	if v := os.Getenv("CHEDDA_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("CHEDDA_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("CHEDDA_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("CHEDDA_ACTIONS_PATH"); v != "" {
		settings.ActionStorePath = v
	}
	if v := os.Getenv("CHEDDA_ACTIONS_LOCK_PATH"); v != "" {
		settings.ActionLockPath = v
	}
	if v := os.Getenv("CHEDDA_LISTEN"); v != "" {
		settings.ListenAddr = v
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}
	if strings.TrimSpace(flags.EnableActions) != "" {
		settings.EnableActions = splitList(flags.EnableActions)
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	if flags.Network != "" {
		settings.Network = flags.Network
	}
	if flags.RPCURL != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.SafeServiceURL != "" {
		settings.SafeServiceURL = flags.SafeServiceURL
	}
	if flags.KeySource != "" {
		settings.KeySource = flags.KeySource
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	return nil
}

func validate(settings Settings) error {
	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	if settings.MultisigThreshold < 1 || settings.MultisigThreshold > 3 {
		return fmt.Errorf("multisig threshold must be between 1 and 3, got %d", settings.MultisigThreshold)
	}
	switch settings.StoreDriver {
	case StoreDriverSQLite:
	case StoreDriverPostgres:
		if strings.TrimSpace(settings.PostgresDSN) == "" {
			return fmt.Errorf("store driver postgres requires a DSN (CHEDDA_POSTGRES_DSN or store.postgres_dsn)")
		}
	default:
		return fmt.Errorf("store driver must be %s or %s, got %q", StoreDriverSQLite, StoreDriverPostgres, settings.StoreDriver)
	}
	if settings.GasMultiplier <= 1 {
		return fmt.Errorf("gas multiplier must be > 1")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
