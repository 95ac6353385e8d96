package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/cycler/internal/registry"
)

type GlobalFlags struct {
	ConfigPath    string
	RPCURL        string
	LogLevel      string
	LogFormat     string
	Timeout       string
	Retries       int
	MetricsListen string
	NoCache       bool
}

// Settings is the resolved process configuration. Precedence: defaults,
// then config file, then environment, then flags.
type Settings struct {
	RPCURL        string
	ChainID       int64
	APIBase       string
	Strategy      string
	Timeout       time.Duration
	Retries       int
	LogLevel      string
	LogFormat     string
	MetricsListen string

	AccountsPath string
	ProxiesPath  string
	ActivityPath string

	CacheEnabled  bool
	CachePath     string
	CacheLockPath string

	// NonceResetOnCycleEnd clears the nonce tracker after every full cycle
	// (normal or aborted) so a long WaitingForNextCycle idle period cannot
	// leak stale sequence numbers into the next cycle.
	NonceResetOnCycleEnd bool

	ConfirmTimeout time.Duration
}

type fileConfig struct {
	RPCURL   string `yaml:"rpc_url"`
	ChainID  *int64 `yaml:"chain_id"`
	APIBase  string `yaml:"api_base"`
	Strategy string `yaml:"strategy"`
	Timeout  string `yaml:"timeout"`
	Retries  *int   `yaml:"retries"`
	Log      struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
	Accounts struct {
		Path        string `yaml:"path"`
		ProxiesPath string `yaml:"proxies_path"`
	} `yaml:"accounts"`
	Activity struct {
		Path string `yaml:"path"`
	} `yaml:"activity"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Nonce struct {
		ResetOnCycleEnd *bool `yaml:"reset_on_cycle_end"`
	} `yaml:"nonce"`
	ConfirmTimeout string `yaml:"confirm_timeout"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.ConfirmTimeout <= 0 {
		settings.ConfirmTimeout = 120 * time.Second
	}
	if settings.Strategy != registry.StrategyRouter && settings.Strategy != registry.StrategyWrap {
		return Settings{}, fmt.Errorf("strategy must be %q or %q", registry.StrategyRouter, registry.StrategyWrap)
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	configDir, err := defaultConfigDir()
	if err != nil {
		return Settings{}, err
	}
	cacheDir, err := defaultCacheDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		RPCURL:               registry.DefaultRPCURL,
		ChainID:              registry.ChainID,
		APIBase:              registry.DefaultAPIBase,
		Strategy:             registry.StrategyRouter,
		Timeout:              15 * time.Second,
		Retries:              2,
		LogLevel:             "info",
		LogFormat:            "text",
		AccountsPath:         filepath.Join(configDir, "accounts.txt"),
		ProxiesPath:          filepath.Join(configDir, "proxies.txt"),
		ActivityPath:         filepath.Join(configDir, "activity.yaml"),
		CacheEnabled:         true,
		CachePath:            filepath.Join(cacheDir, "cache.db"),
		CacheLockPath:        filepath.Join(cacheDir, "cache.lock"),
		NonceResetOnCycleEnd: true,
		ConfirmTimeout:       120 * time.Second,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	dir, err := defaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func defaultConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "cycler"), nil
}

func defaultCacheDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "cycler"), nil
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

	if cfg.RPCURL != "" {
		settings.RPCURL = cfg.RPCURL
	}
	if cfg.ChainID != nil {
		settings.ChainID = *cfg.ChainID
	}
	if cfg.APIBase != "" {
		settings.APIBase = strings.TrimRight(cfg.APIBase, "/")
	}
	if cfg.Strategy != "" {
		settings.Strategy = strings.ToLower(strings.TrimSpace(cfg.Strategy))
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
	if cfg.Log.Level != "" {
		settings.LogLevel = strings.ToLower(cfg.Log.Level)
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = strings.ToLower(cfg.Log.Format)
	}
	if cfg.Metrics.Listen != "" {
		settings.MetricsListen = cfg.Metrics.Listen
	}
	if cfg.Accounts.Path != "" {
		settings.AccountsPath = cfg.Accounts.Path
	}
	if cfg.Accounts.ProxiesPath != "" {
		settings.ProxiesPath = cfg.Accounts.ProxiesPath
	}
	if cfg.Activity.Path != "" {
		settings.ActivityPath = cfg.Activity.Path
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
	if cfg.Nonce.ResetOnCycleEnd != nil {
		settings.NonceResetOnCycleEnd = *cfg.Nonce.ResetOnCycleEnd
	}
	if cfg.ConfirmTimeout != "" {
		d, err := time.ParseDuration(cfg.ConfirmTimeout)
		if err != nil {
			return fmt.Errorf("config confirm_timeout: %w", err)
		}
		settings.ConfirmTimeout = d
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("CYCLER_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("CYCLER_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.ChainID = n
		}
	}
	if v := os.Getenv("CYCLER_API_BASE"); v != "" {
		settings.APIBase = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("CYCLER_STRATEGY"); v != "" {
		settings.Strategy = strings.ToLower(v)
	}
	if v := os.Getenv("CYCLER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("CYCLER_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("CYCLER_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("CYCLER_LOG_FORMAT"); v != "" {
		settings.LogFormat = strings.ToLower(v)
	}
	if v := os.Getenv("CYCLER_METRICS_LISTEN"); v != "" {
		settings.MetricsListen = v
	}
	if v := os.Getenv("CYCLER_ACCOUNTS_PATH"); v != "" {
		settings.AccountsPath = v
	}
	if v := os.Getenv("CYCLER_PROXIES_PATH"); v != "" {
		settings.ProxiesPath = v
	}
	if v := os.Getenv("CYCLER_ACTIVITY_PATH"); v != "" {
		settings.ActivityPath = v
	}
	if v := os.Getenv("CYCLER_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("CYCLER_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("CYCLER_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("CYCLER_NONCE_RESET_ON_CYCLE_END"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.NonceResetOnCycleEnd = b
		}
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.RPCURL != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if flags.LogFormat != "" {
		settings.LogFormat = strings.ToLower(flags.LogFormat)
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
	if flags.MetricsListen != "" {
		settings.MetricsListen = flags.MetricsListen
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}

	switch settings.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json")
	}
	return nil
}
