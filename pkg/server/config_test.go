package server

import (
	"net/http"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Address != ":8080" {
		t.Errorf("Address = %q, want %q", config.Address, ":8080")
	}
	if config.MailboxSize != 256 {
		t.Errorf("MailboxSize = %d, want 256", config.MailboxSize)
	}
	if config.MaxSessions != 0 {
		t.Errorf("MaxSessions = %d, want 0 (unlimited)", config.MaxSessions)
	}
	if config.SessionConfig == nil {
		t.Fatal("SessionConfig is nil")
	}
	if config.SessionConfig.ReadTimeout != 60*time.Second {
		t.Errorf("ReadTimeout = %v, want 60s", config.SessionConfig.ReadTimeout)
	}
	if config.SessionConfig.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", config.SessionConfig.HeartbeatInterval)
	}
}

func TestWithDefaultsFillsUnsetFields(t *testing.T) {
	config := &Config{
		Address: ":9000",
		SessionConfig: &SessionConfig{
			ReadTimeout: 5 * time.Second,
		},
	}
	config.withDefaults()

	if config.Address != ":9000" {
		t.Errorf("Address = %q, want explicit value kept", config.Address)
	}
	if config.SessionConfig.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want explicit value kept", config.SessionConfig.ReadTimeout)
	}
	if config.SessionConfig.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want default filled", config.SessionConfig.WriteTimeout)
	}
	if config.ReadBufferSize != 4096 {
		t.Errorf("ReadBufferSize = %d, want default filled", config.ReadBufferSize)
	}
	if config.CheckOrigin == nil {
		t.Error("CheckOrigin not filled")
	}
	if config.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default filled", config.ShutdownTimeout)
	}
}

func TestConfigCloneIsIndependent(t *testing.T) {
	config := DefaultConfig()
	clone := config.Clone()

	clone.Address = ":1234"
	clone.SessionConfig.ReadTimeout = time.Second

	if config.Address == clone.Address {
		t.Error("clone shares Address with original")
	}
	if config.SessionConfig.ReadTimeout == clone.SessionConfig.ReadTimeout {
		t.Error("clone shares SessionConfig with original")
	}
}

func TestSameOriginCheck(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin header", "", "example.com", true},
		{"matching host", "http://example.com", "example.com", true},
		{"matching host with port", "http://example.com:8080", "example.com:8080", true},
		{"different host", "http://evil.com", "example.com", false},
		{"different port", "http://example.com:9000", "example.com:8080", false},
		{"unparseable origin", "://bad", "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := http.NewRequest(http.MethodGet, "http://"+tt.host+"/ws", nil)
			if err != nil {
				t.Fatal(err)
			}
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := SameOriginCheck(r); got != tt.want {
				t.Errorf("SameOriginCheck(origin=%q, host=%q) = %v, want %v", tt.origin, tt.host, got, tt.want)
			}
		})
	}
}
