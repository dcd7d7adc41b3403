package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Error kinds returned by Load. Callers map them to process exit codes.
var (
	ErrNotFound    = errors.New("configuration file not found")
	ErrUnparsable  = errors.New("configuration file is not valid YAML")
	ErrInvalid     = errors.New("invalid configuration")
	requiredFields = []string{
		"mailto",
		"fleecing",
		"bwlimit",
		"pbs_storage",
		"notes_template",
		"mailnotification",
		"schedule",
		"nodes",
	}
)

// DefaultFileName is looked up next to the executable when no path is given.
const DefaultFileName = "config.yaml"

// MaxPollInterval is the shortest schedule period. A slower poll would let
// the engine skip minutes of an every-minute schedule.
const MaxPollInterval = time.Minute

// Config represents the orchestrator configuration
type Config struct {
	MailTo           string       `yaml:"mailto" json:"mailto"`
	Fleecing         string       `yaml:"fleecing" json:"fleecing"`
	BWLimit          int          `yaml:"bwlimit" json:"bwlimit"`
	PBSStorage       string       `yaml:"pbs_storage" json:"pbs_storage"`
	NotesTemplate    string       `yaml:"notes_template" json:"notes_template"`
	MailNotification string       `yaml:"mailnotification" json:"mailnotification"`
	ExcludeVMs       VMList       `yaml:"exclude_vms,omitempty" json:"exclude_vms"`
	Schedule         string       `yaml:"schedule" json:"schedule"`
	Nodes            []NodeConfig `yaml:"nodes" json:"nodes"`

	SSH          SSHConfig          `yaml:"ssh" json:"ssh"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" json:"orchestrator"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`
	API          APIConfig          `yaml:"api" json:"api"`
}

// NodeConfig describes one Proxmox node to back up
type NodeConfig struct {
	Shortname  string `yaml:"shortname" json:"shortname"`
	FQDN       string `yaml:"fqdn" json:"fqdn"`
	ExcludeVMs VMList `yaml:"exclude_vms,omitempty" json:"exclude_vms"`
}

// SSHConfig contains remote access settings
type SSHConfig struct {
	Transport       string `yaml:"transport" json:"transport"` // "exec" or "native"
	Binary          string `yaml:"binary" json:"binary"`
	Port            int    `yaml:"port" json:"port"`
	Username        string `yaml:"username" json:"username"`
	AuthMethod      string `yaml:"auth_method" json:"auth_method"` // "key" or "password"
	KeyPath         string `yaml:"key_path" json:"key_path"`
	Password        string `yaml:"password" json:"-"`
	KnownHostsPath  string `yaml:"known_hosts_path" json:"known_hosts_path"`
	TrustOnFirstUse bool   `yaml:"trust_on_first_use" json:"trust_on_first_use"`
	ConnectTimeout  string `yaml:"connect_timeout" json:"connect_timeout"`
}

// OrchestratorConfig contains main loop timings
type OrchestratorConfig struct {
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	Warmup       string `yaml:"warmup" json:"warmup"`
	NodeTimeout  string `yaml:"node_timeout" json:"node_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// APIConfig contains the optional status endpoint settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
}

// Default returns a configuration populated with every optional default.
func Default() *Config {
	return &Config{
		SSH: SSHConfig{
			Transport:       "exec",
			Binary:          "/usr/bin/ssh",
			Port:            22,
			Username:        "root",
			AuthMethod:      "key",
			TrustOnFirstUse: true,
			ConnectTimeout:  "30s",
		},
		Orchestrator: OrchestratorConfig{
			PollInterval: "10s",
			Warmup:       "5s",
			NodeTimeout:  "20m",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			File:       "backup_orchestrator.log",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9310",
		},
	}
}

// Load reads, decodes and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.normalizePaths(path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML bytes on top of Default() and checks that every
// required top-level key is present. It does not run Validate.
func Parse(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top-level document must be a mapping", ErrInvalid)
	}

	present := make(map[string]bool, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		present[root.Content[i].Value] = true
	}

	var missing []string
	for _, key := range requiredFields {
		if !present[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required keys: %s", ErrInvalid, strings.Join(missing, ", "))
	}

	cfg := Default()
	if err := root.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Schedule) == "" {
		return fmt.Errorf("%w: schedule must not be empty", ErrInvalid)
	}

	if len(c.Nodes) == 0 {
		return fmt.Errorf("%w: at least one node is required", ErrInvalid)
	}

	seen := make(map[string]bool, len(c.Nodes))
	for i, node := range c.Nodes {
		if strings.TrimSpace(node.Shortname) == "" {
			return fmt.Errorf("%w: nodes[%d]: shortname is required", ErrInvalid, i)
		}
		if strings.TrimSpace(node.FQDN) == "" {
			return fmt.Errorf("%w: nodes[%d] (%s): fqdn is required", ErrInvalid, i, node.Shortname)
		}
		if seen[node.Shortname] {
			return fmt.Errorf("%w: duplicate node shortname %q", ErrInvalid, node.Shortname)
		}
		seen[node.Shortname] = true
	}

	switch c.SSH.Transport {
	case "exec":
		if strings.TrimSpace(c.SSH.Binary) == "" {
			return fmt.Errorf("%w: ssh.binary is required for the exec transport", ErrInvalid)
		}
	case "native":
		switch c.SSH.AuthMethod {
		case "key":
			if strings.TrimSpace(c.SSH.KeyPath) == "" {
				return fmt.Errorf("%w: ssh.key_path is required for key authentication", ErrInvalid)
			}
		case "password":
			if c.SSH.Password == "" {
				return fmt.Errorf("%w: ssh.password is required for password authentication", ErrInvalid)
			}
		default:
			return fmt.Errorf("%w: unsupported ssh.auth_method %q", ErrInvalid, c.SSH.AuthMethod)
		}
	default:
		return fmt.Errorf("%w: unsupported ssh.transport %q", ErrInvalid, c.SSH.Transport)
	}

	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		return fmt.Errorf("%w: ssh.port must be between 1 and 65535", ErrInvalid)
	}

	for name, raw := range map[string]string{
		"orchestrator.poll_interval": c.Orchestrator.PollInterval,
		"orchestrator.node_timeout":  c.Orchestrator.NodeTimeout,
		"ssh.connect_timeout":        c.SSH.ConnectTimeout,
	} {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, name)
		}
	}

	if d, _ := time.ParseDuration(c.Orchestrator.PollInterval); d > MaxPollInterval {
		return fmt.Errorf("%w: orchestrator.poll_interval %s exceeds %s", ErrInvalid, d, MaxPollInterval)
	}

	if d, err := time.ParseDuration(c.Orchestrator.Warmup); err != nil || d < 0 {
		return fmt.Errorf("%w: orchestrator.warmup must be a non-negative duration", ErrInvalid)
	}

	return nil
}

// PollInterval returns the parsed poll interval. Call after Validate.
func (c *Config) PollInterval() time.Duration {
	return parseDuration(c.Orchestrator.PollInterval, 10*time.Second)
}

// Warmup returns the parsed warm-up delay.
func (c *Config) Warmup() time.Duration {
	return parseDuration(c.Orchestrator.Warmup, 5*time.Second)
}

// NodeTimeout returns the per-node vzdump timeout.
func (c *Config) NodeTimeout() time.Duration {
	return parseDuration(c.Orchestrator.NodeTimeout, 1200*time.Second)
}

// ConnectTimeout returns the SSH dial timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return parseDuration(c.SSH.ConnectTimeout, 30*time.Second)
}

// ResolvePath picks the configuration path: explicit flag, CONFIG_PATH,
// then config.yaml next to the executable.
func ResolvePath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return envPath
	}

	exe, err := os.Executable()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(filepath.Dir(exe), DefaultFileName)
}

func (c *Config) applyEnv() {
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if knownHostsPath := os.Getenv("KNOWN_HOSTS_PATH"); knownHostsPath != "" {
		c.SSH.KnownHostsPath = knownHostsPath
	}

	if keyPath := os.Getenv("SSH_KEY_PATH"); keyPath != "" {
		c.SSH.KeyPath = keyPath
	}
}

// normalizePaths resolves relative file paths against the config directory.
func (c *Config) normalizePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}

	resolvePath := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(baseDir, trimmed))
	}

	c.Logging.File = resolvePath(c.Logging.File)
	c.SSH.KeyPath = resolvePath(c.SSH.KeyPath)
	c.SSH.KnownHostsPath = resolvePath(c.SSH.KnownHostsPath)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
