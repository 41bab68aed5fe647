package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// Config holds all statetree host configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	ListenAddr   string `json:"listen_addr"`
	DBPath       string `json:"db_path"`
	LogLevel     string `json:"log_level"`
	LogFormat    string `json:"log_format"`
	PoolSize     int    `json:"pool_size"`
	TickInterval string `json:"tick_interval"`
	TickPolicy   string `json:"tick_policy"`
	RedisAddr    string `json:"redis_addr"`
	TreesDir     string `json:"trees_dir"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:   ":4100",
		DBPath:       filepath.Join(stateTreeDir(), "statetree.db"),
		LogLevel:     "info",
		LogFormat:    "text",
		PoolSize:     8,
		TickInterval: "100ms",
		TickPolicy:   "enter_only",
	}
}

func stateTreeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".statetree"
	}
	return filepath.Join(home, ".statetree")
}

func settingsPath() string {
	return filepath.Join(stateTreeDir(), "settings.json")
}

func pidPath() string {
	return filepath.Join(stateTreeDir(), "statetree.pid")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("STATETREE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("STATETREE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STATETREE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STATETREE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("STATETREE_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("STATETREE_TICK_INTERVAL"); v != "" {
		cfg.TickInterval = v
	}
	if v := os.Getenv("STATETREE_TICK_POLICY"); v != "" {
		cfg.TickPolicy = v
	}
	if v := os.Getenv("STATETREE_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("STATETREE_TREES_DIR"); v != "" {
		cfg.TreesDir = v
	}

	return cfg
}

// applyFlags overrides cfg with the persistent flags the user actually set.
func applyFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	if flags.Changed("listen-addr") {
		cfg.ListenAddr, _ = flags.GetString("listen-addr")
	}
	if flags.Changed("db-path") {
		cfg.DBPath, _ = flags.GetString("db-path")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if flags.Changed("pool-size") {
		cfg.PoolSize, _ = flags.GetInt("pool-size")
	}
	if flags.Changed("tick-interval") {
		cfg.TickInterval, _ = flags.GetString("tick-interval")
	}
	if flags.Changed("tick-policy") {
		cfg.TickPolicy, _ = flags.GetString("tick-policy")
	}
	if flags.Changed("redis-addr") {
		cfg.RedisAddr, _ = flags.GetString("redis-addr")
	}
	if flags.Changed("trees-dir") {
		cfg.TreesDir, _ = flags.GetString("trees-dir")
	}
}

// interval parses TickInterval, falling back to 100ms.
func (c Config) interval() time.Duration {
	d, err := time.ParseDuration(c.TickInterval)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}
