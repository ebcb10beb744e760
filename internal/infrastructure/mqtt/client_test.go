package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/tagwatch-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "tagwatch-test",
		},
		QoS:         1,
		TopicPrefix: "tagwatch",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("plant7/")

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Live", topics.Live(3, 17), "plant7/live/3/17"},
		{"Alarm", topics.Alarm("critical"), "plant7/alarm/critical"},
		{"AlarmEmptySeverity", topics.Alarm(""), "plant7/alarm/unknown"},
		{"Event", topics.Event("sessionState"), "plant7/event/sessionState"},
		{"SystemStatus", topics.SystemStatus(), "plant7/system/status"},
		{"AllLive", topics.AllLive(), "plant7/live/#"},
		{"AllAlarms", topics.AllAlarms(), "plant7/alarm/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestTopics_DefaultPrefix(t *testing.T) {
	if got := NewTopics("").SystemStatus(); got != "tagwatch/system/status" {
		t.Errorf("NewTopics(\"\").SystemStatus() = %q", got)
	}
	if got := (Topics{}).Live(1, 2); got != "tagwatch/live/1/2" {
		t.Errorf("zero Topics Live() = %q", got)
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "relay", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "tagwatch-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "relay" {
		t.Errorf("Username = %q, want relay", opts.Username)
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig should be nil when TLS is disabled")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); got != "ssl://127.0.0.1:8883" {
		t.Errorf("broker = %q, want ssl://127.0.0.1:8883", got)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLSConfig should enforce the minimum TLS version")
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)
	configureLWT(opts, NewTopics("tagwatch"), cfg.Broker.ClientID)

	if opts.WillTopic != "tagwatch/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d, want retained QoS 1", opts.WillRetained, opts.WillQos)
	}
	if !strings.Contains(string(opts.WillPayload), "unexpected_disconnect") {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var online map[string]string
	if err := json.Unmarshal([]byte(buildStatusPayload("tw-1", "online", "")), &online); err != nil {
		t.Fatalf("online payload is not JSON: %v", err)
	}
	if online["status"] != "online" || online["client_id"] != "tw-1" {
		t.Errorf("online payload = %v", online)
	}
	if _, ok := online["reason"]; ok {
		t.Error("empty reason should be omitted")
	}

	var offline map[string]string
	if err := json.Unmarshal([]byte(buildStatusPayload("tw-1", "offline", "graceful_shutdown")), &offline); err != nil {
		t.Fatalf("offline payload is not JSON: %v", err)
	}
	if offline["reason"] != "graceful_shutdown" {
		t.Errorf("reason = %q", offline["reason"])
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func TestPublish_Validation(t *testing.T) {
	c := &Client{cfg: testConfig(), topics: NewTopics("tagwatch")}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"invalid qos", "tagwatch/live/1/1", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "tagwatch/live/1/1", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
		{"not connected", "tagwatch/live/1/1", []byte("x"), 0, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}
