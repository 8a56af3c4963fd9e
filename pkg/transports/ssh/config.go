// Package ssh connects to a freshly provisioned compute instance to push
// and run its bootstrap script.
package ssh

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config holds the SSH connection settings.
type Config struct {
	// Host is the remote hostname or IP address.
	Host string `validate:"required"`

	// Port is the SSH port. Defaults to 22.
	Port int

	// User is the SSH username.
	User string `validate:"required"`

	// PrivateKeyPath is the path to the private key file.
	PrivateKeyPath string `validate:"required"`

	// PrivateKeyPassphrase decrypts an encrypted key, when set.
	PrivateKeyPassphrase string

	// KnownHostsPath is the known_hosts file used to verify the host key.
	// Defaults to ~/.ssh/known_hosts.
	KnownHostsPath string

	// InsecureIgnoreHostKey disables host key verification. A just-created
	// instance has no known_hosts entry yet, so bootstrap runs usually
	// need this.
	InsecureIgnoreHostKey bool

	// ConnectTimeout bounds the TCP and handshake phase.
	ConnectTimeout time.Duration

	// CommandTimeout bounds one remote command.
	CommandTimeout time.Duration
}

func (c *Config) withDefaults() {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.KnownHostsPath == "" {
		c.KnownHostsPath = filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts")
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 5 * time.Minute
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("ssh config invalid: %w", err)
	}
	return nil
}

func (c *Config) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.InsecureIgnoreHostKey {
		//nolint:gosec
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(c.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return callback, nil
}

func (c *Config) authMethods() ([]ssh.AuthMethod, error) {
	key, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	var signer ssh.Signer
	if c.PrivateKeyPassphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(c.PrivateKeyPassphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}
