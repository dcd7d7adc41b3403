package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// Client wraps an SSH connection
type Client struct {
	config *ClientConfig
	client *ssh.Client
}

// ClientConfig holds SSH connection configuration
type ClientConfig struct {
	Host            string
	Port            int
	Username        string
	AuthMethod      string // "key" or "password"
	KeyPath         string
	Password        string
	Timeout         time.Duration
	KnownHostsPath  string
	TrustOnFirstUse bool
}

// Dial creates a new SSH client and connects it
func Dial(ctx context.Context, config *ClientConfig) (*Client, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Port == 0 {
		config.Port = 22
	}

	client := &Client{
		config: config,
	}

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

// Connect establishes the SSH connection
func (c *Client) Connect(ctx context.Context) error {
	var authMethod ssh.AuthMethod

	switch c.config.AuthMethod {
	case "key":
		key, err := loadPrivateKey(c.config.KeyPath)
		if err != nil {
			return fmt.Errorf("failed to load private key: %w", err)
		}
		authMethod = ssh.PublicKeys(key)

	case "password":
		authMethod = ssh.Password(c.config.Password)

	default:
		return fmt.Errorf("unsupported auth method: %s", c.config.AuthMethod)
	}

	hostKeyCallback, err := NewHostKeyCallback(c.config.KnownHostsPath, c.config.TrustOnFirstUse)
	if err != nil {
		return fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            c.config.Username,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.config.Timeout,
	}

	address := Target{Host: c.config.Host, Port: c.config.Port}.Address()
	dialer := net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to dial SSH: %w", err)
	}

	// Bound the handshake; NewClientConn has no context of its own.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.config.Timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SSH handshake with %s failed: %w", address, err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.client = ssh.NewClient(sshConn, chans, reqs)

	return nil
}

// Close closes the SSH connection
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Run executes a command, capturing stdout and stderr separately. When ctx
// ends first the connection is closed and ErrTimeout (or ctx.Err()) is returned.
func (c *Client) Run(ctx context.Context, command string) (Result, error) {
	if c.client == nil {
		return Result{}, fmt.Errorf("not connected")
	}

	session, err := c.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		c.client.Close()
		<-done
		return Result{ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String()}, contextError(ctx)
	}

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr == nil {
		return result, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitStatus()
		return result, &ExitError{Code: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}
	}

	return result, fmt.Errorf("command failed: %w", runErr)
}

// ClientRunner runs each command over a fresh golang.org/x/crypto/ssh
// connection that is closed before Run returns.
type ClientRunner struct {
	config ClientConfig
}

// NewClientRunner creates a runner using base for authentication and host
// key settings. Host, port and user come from each Target.
func NewClientRunner(base ClientConfig) *ClientRunner {
	return &ClientRunner{config: base}
}

// Run dials target, runs command and closes the connection.
func (r *ClientRunner) Run(ctx context.Context, target Target, command string) (Result, error) {
	cfg := r.config
	cfg.Host = target.Host
	if target.Port != 0 {
		cfg.Port = target.Port
	}
	if target.User != "" {
		cfg.Username = target.User
	}

	client, err := Dial(ctx, &cfg)
	if err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return Result{ExitCode: -1}, ctxErr
		}
		return Result{ExitCode: -1}, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	defer client.Close()

	return client.Run(ctx, command)
}

// loadPrivateKey loads an SSH private key from a file
func loadPrivateKey(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key: %w", err)
	}

	return signer, nil
}
