package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultClientConfigPath = "~/.config/gastrack/config.toml"
	defaultDataDir          = "~/.local/share/gastrack"
	defaultRemoteTimeout    = 10 * time.Second
	defaultNodeID           = 1
)

// Client is the configuration of the gastrack CLI.
//
// Values come from the TOML file first; GASTRACK_* environment variables
// override them.
type Client struct {
	// DataDir holds the local database.
	DataDir string

	// RemoteURL is the document server. Empty means local only.
	RemoteURL string

	// Secret signs the partition token sent to the document server.
	Secret string

	// Timeout bounds each remote call.
	Timeout time.Duration

	// NodeID is the snowflake node of this device, 0 to 1023.
	NodeID int64

	LogLevel string
}

// DBPath returns the path of the local database file.
func (c Client) DBPath() string {
	return filepath.Join(c.DataDir, "gastrack.db")
}

// LoadClient reads the CLI configuration from path, or from GASTRACK_CONFIG
// or the default location when path is empty. A missing file is not an
// error.
func LoadClient(path string) (Client, error) {
	if strings.TrimSpace(path) == "" {
		path = getenv("GASTRACK_CONFIG", defaultClientConfigPath)
	}
	resolved, err := expandPath(path)
	if err != nil {
		return Client{}, err
	}

	var raw struct {
		DataDir   string `toml:"data_dir"`
		RemoteURL string `toml:"remote_url"`
		Secret    string `toml:"secret"`
		Timeout   string `toml:"timeout"`
		NodeID    *int64 `toml:"node_id"`
		LogLevel  string `toml:"log_level"`
	}

	bytes, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Client{}, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Client{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg := Client{
		DataDir:   getenv("GASTRACK_DATA_DIR", orDefault(raw.DataDir, defaultDataDir)),
		RemoteURL: getenv("GASTRACK_REMOTE_URL", strings.TrimSpace(raw.RemoteURL)),
		Secret:    getenv("GASTRACK_SECRET", strings.TrimSpace(raw.Secret)),
		LogLevel:  getenv("LOG_LEVEL", strings.TrimSpace(raw.LogLevel)),
		NodeID:    defaultNodeID,
	}
	if raw.NodeID != nil {
		cfg.NodeID = *raw.NodeID
	}

	cfg.DataDir, err = expandPath(cfg.DataDir)
	if err != nil {
		return Client{}, fmt.Errorf("data dir: %w", err)
	}

	fileTimeout := defaultRemoteTimeout
	if t := strings.TrimSpace(raw.Timeout); t != "" {
		fileTimeout, err = time.ParseDuration(t)
		if err != nil {
			return Client{}, fmt.Errorf("parse config: timeout: %w", err)
		}
	}
	if cfg.Timeout, err = getenvDuration("GASTRACK_TIMEOUT", fileTimeout); err != nil {
		return Client{}, err
	}

	node, err := getenvInt("GASTRACK_NODE_ID", int(cfg.NodeID))
	if err != nil {
		return Client{}, err
	}
	cfg.NodeID = int64(node)

	if err := cfg.validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func (c Client) validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("node id %d out of range 0-1023", c.NodeID)
	}
	if c.RemoteURL != "" && c.Secret == "" {
		return fmt.Errorf("remote_url is set but secret is empty")
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
