package ssh

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

// Defaults for onboarding connections. Fresh droplets take a while to start
// sshd after the API reports them active, so the command timeout is generous.
const (
	DefaultPort           = 22
	DefaultUser           = "root"
	DefaultConnectTimeout = 10 * time.Second
	DefaultCommandTimeout = 5 * time.Minute
)

// Config holds the connection settings for one onboarding target.
type Config struct {
	// Host is the droplet's public IPv4 address or hostname.
	Host string `json:"host" validate:"required"`

	// Port is the SSH port. Defaults to 22.
	Port int `json:"port,omitempty"`

	// User is the SSH username. Defaults to root, which is what a fresh
	// droplet provisions the injected key for.
	User string `json:"user,omitempty"`

	// PrivateKeyPath is the path to the private key file. When empty the
	// usual ~/.ssh candidates are tried.
	PrivateKeyPath string `json:"private_key_path,omitempty"`

	// PrivateKeyPassphrase decrypts an encrypted private key.
	PrivateKeyPassphrase string `json:"-"`

	// KnownHostsPath enables host key verification against the given
	// known_hosts file. Empty disables verification; a droplet created
	// seconds ago has no recorded host key yet.
	KnownHostsPath string `json:"known_hosts_path,omitempty"`

	// ConnectTimeout bounds a single dial attempt.
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty"`

	// CommandTimeout bounds a single remote command.
	CommandTimeout time.Duration `json:"command_timeout,omitempty"`

	// Wait bounds the reachability loop: how long to keep re-dialing
	// before giving up on the host.
	Wait engine.WaitConfig `json:"wait,omitempty"`
}

// DefaultConfig returns an onboarding config for host with the standard
// timeouts and wait budget.
func DefaultConfig(host string) *Config {
	return &Config{
		Host:           host,
		Port:           DefaultPort,
		User:           DefaultUser,
		ConnectTimeout: DefaultConnectTimeout,
		CommandTimeout: DefaultCommandTimeout,
		Wait:           engine.DefaultWaitConfig(),
	}
}

// Normalize fills in defaults and validates the result.
func (c *Config) Normalize() error {
	if c.Host == "" {
		return engine.NewValidationError("onboarding host is required")
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 0 || c.Port > 65535 {
		return engine.NewValidationError(fmt.Sprintf("invalid ssh port %d", c.Port))
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.Wait == (engine.WaitConfig{}) {
		c.Wait = engine.DefaultWaitConfig()
	}
	if err := c.Wait.Validate(); err != nil {
		return err
	}
	if c.PrivateKeyPath == "" {
		c.PrivateKeyPath = findDefaultKey()
		if c.PrivateKeyPath == "" {
			return engine.NewValidationError("no ssh private key configured and no default key found")
		}
	}
	if _, err := os.Stat(c.PrivateKeyPath); err != nil {
		return engine.NewValidationError(fmt.Sprintf("ssh private key %s: %v", c.PrivateKeyPath, err))
	}
	return nil
}

// Address returns the host:port dial target.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// clientConfig builds the ssh.ClientConfig for this target.
func (c *Config) clientConfig() (*ssh.ClientConfig, error) {
	keyBytes, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	var signer ssh.Signer
	if c.PrivateKeyPassphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectTimeout,
	}, nil
}

func findDefaultKey() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		path := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
