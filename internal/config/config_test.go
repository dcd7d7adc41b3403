package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
mailto: ops@example.com
fleecing: 0
bwlimit: 51200
pbs_storage: pbs-main
notes_template: "{{guestname}} nightly"
mailnotification: failure
exclude_vms: [100, 101]
schedule: "30 2 * * *"
nodes:
  - shortname: pve1
    fqdn: pve1.example.com
  - shortname: pve2
    fqdn: pve2.example.com
    exclude_vms: []
  - shortname: pve3
    fqdn: pve3.example.com
    exclude_vms: ["200"]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadSampleConfig(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.MailTo != "ops@example.com" {
		t.Fatalf("expected mailto ops@example.com, got %s", cfg.MailTo)
	}
	if cfg.Fleecing != "0" {
		t.Fatalf("expected fleecing 0, got %q", cfg.Fleecing)
	}
	if cfg.BWLimit != 51200 {
		t.Fatalf("expected bwlimit 51200, got %d", cfg.BWLimit)
	}
	if len(cfg.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(cfg.Nodes))
	}
	if cfg.Nodes[0].Shortname != "pve1" || cfg.Nodes[2].FQDN != "pve3.example.com" {
		t.Fatalf("nodes decoded out of order: %+v", cfg.Nodes)
	}

	if !cfg.ExcludeVMs.Set || cfg.ExcludeVMs.Join() != "100,101" {
		t.Fatalf("unexpected global exclusion list: %+v", cfg.ExcludeVMs)
	}
	if cfg.Nodes[0].ExcludeVMs.Set {
		t.Fatalf("expected node without exclude_vms to be unset")
	}
	if !cfg.Nodes[1].ExcludeVMs.Set || len(cfg.Nodes[1].ExcludeVMs.IDs) != 0 {
		t.Fatalf("expected explicit empty list to be set and empty: %+v", cfg.Nodes[1].ExcludeVMs)
	}
	if cfg.Nodes[2].ExcludeVMs.Join() != "200" {
		t.Fatalf("unexpected node exclusion list: %+v", cfg.Nodes[2].ExcludeVMs)
	}

	if cfg.PollInterval() != 10*time.Second {
		t.Fatalf("expected default poll interval 10s, got %v", cfg.PollInterval())
	}
	if cfg.Warmup() != 5*time.Second {
		t.Fatalf("expected default warmup 5s, got %v", cfg.Warmup())
	}
	if cfg.NodeTimeout() != 1200*time.Second {
		t.Fatalf("expected default node timeout 1200s, got %v", cfg.NodeTimeout())
	}
	if !filepath.IsAbs(cfg.Logging.File) {
		t.Fatalf("expected log file to be resolved to an absolute path, got %s", cfg.Logging.File)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadUnparsable(t *testing.T) {
	path := writeConfig(t, "mailto: [unterminated\n")
	_, err := Load(path)
	if !errors.Is(err, ErrUnparsable) {
		t.Fatalf("expected ErrUnparsable, got %v", err)
	}
}

func TestParseMissingRequiredKeys(t *testing.T) {
	_, err := Parse([]byte("mailto: ops@example.com\nschedule: '* * * * *'\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestParseRejectsScalarDocument(t *testing.T) {
	_, err := Parse([]byte("just a string\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidateRejectsBadNodes(t *testing.T) {
	tests := []struct {
		name  string
		nodes []NodeConfig
	}{
		{name: "none", nodes: nil},
		{name: "missing shortname", nodes: []NodeConfig{{FQDN: "a.example.com"}}},
		{name: "missing fqdn", nodes: []NodeConfig{{Shortname: "a"}}},
		{name: "duplicate", nodes: []NodeConfig{
			{Shortname: "a", FQDN: "a.example.com"},
			{Shortname: "a", FQDN: "b.example.com"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Schedule = "* * * * *"
			cfg.Nodes = tt.nodes
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestValidatePollInterval(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "default", value: "10s"},
		{name: "one minute", value: "1m"},
		{name: "slower than a minute", value: "61s", wantErr: true},
		{name: "two minutes", value: "2m", wantErr: true},
		{name: "zero", value: "0s", wantErr: true},
		{name: "garbage", value: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Schedule = "* * * * *"
			cfg.Nodes = []NodeConfig{{Shortname: "a", FQDN: "a.example.com"}}
			cfg.Orchestrator.PollInterval = tt.value

			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid for %s, got %v", tt.value, err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected %s to be accepted, got %v", tt.value, err)
			}
		})
	}
}

func TestLoadRejectsSlowPollInterval(t *testing.T) {
	path := writeConfig(t, sampleConfig+"orchestrator:\n  poll_interval: 2m\n")

	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidateNativeTransportNeedsCredentials(t *testing.T) {
	cfg := Default()
	cfg.Schedule = "* * * * *"
	cfg.Nodes = []NodeConfig{{Shortname: "a", FQDN: "a.example.com"}}
	cfg.SSH.Transport = "native"

	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected missing key path to be rejected, got %v", err)
	}

	cfg.SSH.KeyPath = "/root/.ssh/id_ed25519"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestVMListRejectsScalar(t *testing.T) {
	_, err := Parse([]byte(`
mailto: a
fleecing: 0
bwlimit: 0
pbs_storage: s
notes_template: n
mailnotification: always
exclude_vms: 100
schedule: "* * * * *"
nodes: []
`))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for scalar exclude_vms, got %v", err)
	}
}

func TestResolvePathPrecedence(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/pvebackup/env.yaml")

	if got := ResolvePath("/tmp/flag.yaml"); got != "/tmp/flag.yaml" {
		t.Fatalf("expected flag value to win, got %s", got)
	}
	if got := ResolvePath(""); got != "/etc/pvebackup/env.yaml" {
		t.Fatalf("expected CONFIG_PATH, got %s", got)
	}

	t.Setenv("CONFIG_PATH", "")
	if got := ResolvePath(""); filepath.Base(got) != DefaultFileName {
		t.Fatalf("expected executable-relative %s, got %s", DefaultFileName, got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected LOG_LEVEL override, got %s", cfg.Logging.Level)
	}
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if len(cfg.Nodes) != 3 || cfg.Schedule != "30 2 * * *" {
		t.Fatalf("unexpected example config: %+v", cfg)
	}
	if cfg.Nodes[2].ExcludeVMs.Join() != "300" {
		t.Fatalf("unexpected pve3 exclusions: %+v", cfg.Nodes[2].ExcludeVMs)
	}
}
