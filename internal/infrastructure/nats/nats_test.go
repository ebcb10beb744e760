package nats

import (
	"errors"
	"testing"
)

func TestPublisher_Subject(t *testing.T) {
	tests := []struct {
		prefix string
		name   string
		want   string
	}{
		{"tagwatch", "alarm", "tagwatch.alarm"},
		{"tagwatch.", "liveData", "tagwatch.liveData"},
		{"", "alarm", "alarm"},
	}

	for _, tt := range tests {
		p := &Publisher{prefix: normalizePrefix(tt.prefix)}
		if got := p.Subject(tt.name); got != tt.want {
			t.Errorf("Subject(%q) with prefix %q = %q, want %q", tt.name, tt.prefix, got, tt.want)
		}
	}
}

func TestPublisher_NotConnected(t *testing.T) {
	var p *Publisher
	if err := p.Publish("alarm", map[string]int{"id": 1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() on nil publisher error = %v, want ErrNotConnected", err)
	}
	if p.IsConnected() {
		t.Error("nil publisher should not report connected")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() on nil publisher error = %v", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(Config{URL: "nats://127.0.0.1:1"})
	if err == nil {
		t.Error("Connect() expected error for unreachable server")
	}
}
