package monitor

import (
	"context"
	"fmt"
	"time"
)

// ConnState is the transport's view of a client connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// SubscriptionParams are applied to every subscription group and its items.
type SubscriptionParams struct {
	PublishingInterval time.Duration
	SamplingInterval   time.Duration
	QueueSize          uint32
	DiscardOldest      bool
}

// DefaultSubscriptionParams keeps only the most recent sample per item.
func DefaultSubscriptionParams() SubscriptionParams {
	return SubscriptionParams{
		PublishingInterval: time.Second,
		SamplingInterval:   500 * time.Millisecond,
		QueueSize:          1,
		DiscardOldest:      true,
	}
}

// MonitoredItem asks for change notifications on one node. Handle is echoed
// back in every Sample for that item.
type MonitoredItem struct {
	Handle uint32
	NodeID string
}

// Sample is one data change notification.
type Sample struct {
	Handle     uint32
	Value      any
	SourceTime time.Time
	ServerTime time.Time
}

// Dialer opens client sessions against an endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (ClientConn, error)
}

// ClientConn is an open transport session.
type ClientConn interface {
	Subscribe(ctx context.Context, params SubscriptionParams) (Subscription, error)
	State() ConnState
	Close(ctx context.Context) error
}

// Subscription is a subscription group. Samples for all its items arrive on
// one channel, which is closed once the subscription is cancelled.
type Subscription interface {
	Monitor(ctx context.Context, item MonitoredItem) error
	Samples() <-chan Sample
	Cancel(ctx context.Context) error
}

// ToFloat converts a scalar sample value to float64. Booleans map to 0 and 1.
func ToFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}
