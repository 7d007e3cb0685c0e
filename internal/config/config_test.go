package config

import (
	"strings"
	"testing"
)

func TestParseServerAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"host with port", "192.168.1.100:9090", "192.168.1.100:9090"},
		{"host without port", "192.168.1.100", "192.168.1.100:8080"},
		{"hostname with port", "example.com:9090", "example.com:9090"},
		{"hostname without port", "example.com", "example.com:8080"},
		{"ipv6 with port", "[::1]:8080", "[::1]:8080"},
		{"empty", "", "127.0.0.1:8080"},
		{"whitespace only", "  ", "127.0.0.1:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseServerAddress(tt.in); got != tt.want {
				t.Errorf("ParseServerAddress(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateBufferSize(t *testing.T) {
	for _, size := range []int{1, 1024, 2048, 4096, 8192, 16384, 65536} {
		got, err := ValidateBufferSize(size)
		if err != nil {
			t.Errorf("ValidateBufferSize(%d): unexpected error %v", size, err)
		}
		if got != size {
			t.Errorf("ValidateBufferSize(%d) = %d, want input back", size, got)
		}
	}
	for _, size := range []int{0, -1, 65537, 100000} {
		if _, err := ValidateBufferSize(size); err == nil {
			t.Errorf("ValidateBufferSize(%d): expected error", size)
		}
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFromReader(t *testing.T) {
	yml := `
log_level: debug
receiver:
  host: 10.0.0.1
  port: 9000
  buffer_size: 8192
  microphone_name: studio_mic
  fifo_path: /run/netmic/pipe
`
	cfg, err := LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Receiver.Host != "10.0.0.1" || cfg.Receiver.Port != 9000 {
		t.Errorf("receiver address not applied: %+v", cfg.Receiver)
	}
	if cfg.Receiver.MicrophoneName != "studio_mic" {
		t.Errorf("microphone name = %q", cfg.Receiver.MicrophoneName)
	}
	// Unset sections keep their defaults.
	if cfg.Transmitter.ReconnectAttempts != 5 {
		t.Errorf("transmitter defaults lost: %+v", cfg.Transmitter)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("receiver:\n  listen_host: x\n")); err == nil {
		t.Fatal("unknown field should be rejected")
	}
}

func TestValidate_JoinsAllFailures(t *testing.T) {
	cfg := Default()
	cfg.Receiver.BufferSize = 0
	cfg.Receiver.MicrophoneName = ""
	cfg.Transmitter.ReconnectAttempts = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, want := range []string{"buffer size", "microphone_name", "reconnect_attempts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidate_LogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "chatty"
	if err := Validate(cfg); err == nil {
		t.Fatal("invalid log level should fail validation")
	}
}
