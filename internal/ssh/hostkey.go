package ssh

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/pvebackup/internal/logging"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyPolicy decides how node host keys are verified for the native transport.
type HostKeyPolicy struct {
	// KnownHostsPath is the known_hosts file. Empty disables verification.
	KnownHostsPath string
	// TrustOnFirstUse records unknown keys instead of rejecting them.
	TrustOnFirstUse bool
	// HashHosts writes new entries with hashed hostnames.
	HashHosts bool
	Logger    *slog.Logger
}

// NewHostKeyCallback builds a TOFU-capable host key callback using a known_hosts file.
func NewHostKeyCallback(knownHostsPath string, trustOnFirstUse bool) (ssh.HostKeyCallback, error) {
	return HostKeyPolicy{KnownHostsPath: knownHostsPath, TrustOnFirstUse: trustOnFirstUse}.Callback()
}

// Callback returns the ssh.HostKeyCallback implementing the policy.
func (p HostKeyPolicy) Callback() (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(p.KnownHostsPath) == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if err := ensureKnownHostsFile(p.KnownHostsPath); err != nil {
		return nil, err
	}

	baseCallback, err := knownhosts.New(p.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read known_hosts: %w", err)
	}

	logger := p.Logger
	if logger == nil {
		logger = logging.L()
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := baseCallback(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}

		fingerprint := ssh.FingerprintSHA256(key)
		if len(keyErr.Want) > 0 {
			logger.Warn("ssh host key changed", "host", hostname, "fingerprint", fingerprint)
			return fmt.Errorf("SSH host key changed for %s", hostname)
		}

		if !p.TrustOnFirstUse {
			return fmt.Errorf("unknown SSH host key for %s (%s)", hostname, fingerprint)
		}

		if err := appendKnownHost(p.KnownHostsPath, knownHostsEntries(hostname, remote, p.HashHosts), key); err != nil {
			return err
		}

		logger.Info("ssh host key accepted", "host", hostname, "fingerprint", fingerprint)
		return nil
	}, nil
}

func ensureKnownHostsFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create known_hosts directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create known_hosts file: %w", err)
	}
	return file.Close()
}

func appendKnownHost(path string, hosts []string, key ssh.PublicKey) error {
	line := knownhosts.Line(hosts, key) + "\n"

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write known_hosts entry: %w", err)
	}
	return nil
}

// knownHostsEntries lists the dialed name and, when different, the resolved
// address, both in known_hosts notation.
func knownHostsEntries(hostname string, remote net.Addr, hash bool) []string {
	var entries []string
	add := func(addr string) {
		if addr == "" {
			return
		}
		normalized := knownhosts.Normalize(addr)
		if hash {
			normalized = knownhosts.HashHostname(normalized)
		}
		entries = append(entries, normalized)
	}

	add(hostname)
	if remote != nil && remote.String() != hostname {
		add(remote.String())
	}
	return entries
}
