package ssh

import (
	"strings"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Host: "203.0.113.7", User: "root", PrivateKeyPath: "/tmp/key"}
	cfg.withDefaults()

	if cfg.Port != 22 {
		t.Errorf("port = %d, want 22", cfg.Port)
	}
	if cfg.ConnectTimeout != 30*time.Second {
		t.Errorf("connect timeout = %s", cfg.ConnectTimeout)
	}
	if cfg.CommandTimeout != 5*time.Minute {
		t.Errorf("command timeout = %s", cfg.CommandTimeout)
	}
	if !strings.HasSuffix(cfg.KnownHostsPath, ".ssh/known_hosts") {
		t.Errorf("known_hosts = %q", cfg.KnownHostsPath)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"complete", Config{Host: "h", User: "u", PrivateKeyPath: "/k"}, true},
		{"missing host", Config{User: "u", PrivateKeyPath: "/k"}, false},
		{"missing user", Config{Host: "h", PrivateKeyPath: "/k"}, false},
		{"missing key", Config{Host: "h", User: "u"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok && err != nil {
				t.Errorf("Validate: %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}

func TestInsecureHostKeyCallback(t *testing.T) {
	cfg := Config{InsecureIgnoreHostKey: true}
	cb, err := cfg.hostKeyCallback()
	if err != nil || cb == nil {
		t.Fatalf("hostKeyCallback: %v", err)
	}
}
