package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// Client is a single-connection SSH client for onboarding. It is not safe
// for concurrent use; onboarding runs one host at a time.
type Client struct {
	cfg  *Config
	log  *telemetry.Logger
	conn *ssh.Client
}

// NewClient validates cfg and returns an unconnected client.
func NewClient(cfg *Config, logger *telemetry.Logger) (*Client, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger, _ = telemetry.NewLogger(telemetry.DefaultConfig().Logging)
	}
	return &Client{
		cfg: cfg,
		log: logger.NewComponentLogger("ssh").WithField("host", cfg.Address()),
	}, nil
}

// Connect dials the host, retrying within the configured wait budget. A
// droplet that just went active usually needs a few attempts before sshd
// answers.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	clientConfig, err := c.cfg.clientConfig()
	if err != nil {
		return engine.NewValidationError(err.Error())
	}

	attempts := 0
	err = engine.Poll(ctx, c.cfg.Wait, "ssh on "+c.cfg.Address(), func(ctx context.Context) (bool, error) {
		attempts++
		conn, dialErr := ssh.Dial("tcp", c.cfg.Address(), clientConfig)
		if dialErr != nil {
			if isAuthError(dialErr) {
				return false, engine.NewPermanentError("ssh authentication failed", dialErr)
			}
			c.log.WithField("attempt", attempts).WithError(dialErr).Debug("ssh not reachable yet")
			return false, nil
		}
		c.conn = conn
		return true, nil
	})
	if err != nil {
		return err
	}

	c.log.WithField("attempts", attempts).Debug("ssh connection established")
	return nil
}

// Run executes cmd on the remote host and returns trimmed stdout and stderr.
// A non-zero exit status is returned as an error with stderr attached.
func (c *Client) Run(ctx context.Context, cmd string) (string, string, error) {
	if c.conn == nil {
		return "", "", engine.NewValidationError("ssh client is not connected")
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return "", "", engine.NewTransientError("create ssh session", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", "", engine.NewTimeoutError(fmt.Sprintf("command timed out: %s", cmd))
	case err = <-done:
	}

	out := strings.TrimSpace(stdout.String())
	errOut := strings.TrimSpace(stderr.String())
	if err != nil {
		return out, errOut, engine.NewPermanentError(
			fmt.Sprintf("command failed: %s: %s", cmd, firstLine(errOut)), err)
	}
	return out, errOut, nil
}

// Upload writes content to remotePath via SFTP, creating parent directories
// as needed.
func (c *Client) Upload(content []byte, remotePath string, mode fs.FileMode) error {
	if c.conn == nil {
		return engine.NewValidationError("ssh client is not connected")
	}

	client, err := sftp.NewClient(c.conn)
	if err != nil {
		return engine.NewTransientError("create sftp client", err)
	}
	defer client.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return engine.NewTransientError(fmt.Sprintf("create remote directory %s", dir), err)
		}
	}

	f, err := client.Create(remotePath)
	if err != nil {
		return engine.NewTransientError(fmt.Sprintf("create remote file %s", remotePath), err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return engine.NewTransientError(fmt.Sprintf("write remote file %s", remotePath), err)
	}
	if err := f.Close(); err != nil {
		return engine.NewTransientError(fmt.Sprintf("close remote file %s", remotePath), err)
	}
	if err := client.Chmod(remotePath, mode); err != nil {
		return engine.NewTransientError(fmt.Sprintf("chmod remote file %s", remotePath), err)
	}

	c.log.WithFields(map[string]any{"path": remotePath, "bytes": len(content)}).Debug("file uploaded")
	return nil
}

// Close tears down the connection. Safe to call when never connected.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func isAuthError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "handshake failed") && strings.Contains(msg, "auth")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
