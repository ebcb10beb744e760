package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
)

// notifyBuffer sizes the channel between the gopcua publish loop and the
// sample pump.
const notifyBuffer = 64

// OPCUAOptions configures client sessions opened by OPCUADialer.
type OPCUAOptions struct {
	SecurityMode   string
	SecurityPolicy string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// OPCUADialer opens gopcua client sessions.
type OPCUADialer struct {
	opts OPCUAOptions
}

// NewOPCUADialer returns a Dialer for opc.tcp endpoints.
func NewOPCUADialer(opts OPCUAOptions) *OPCUADialer {
	return &OPCUADialer{opts: opts}
}

func (d *OPCUADialer) clientOptions() []opcua.Option {
	// Retry is owned by the manager's policy, not the library.
	opts := []opcua.Option{
		opcua.AutoReconnect(false),
	}
	if d.opts.SecurityMode != "" {
		opts = append(opts, opcua.SecurityModeString(d.opts.SecurityMode))
	}
	if d.opts.SecurityPolicy != "" {
		opts = append(opts, opcua.SecurityPolicy(d.opts.SecurityPolicy))
	}
	if d.opts.ConnectTimeout > 0 {
		opts = append(opts, opcua.DialTimeout(d.opts.ConnectTimeout))
	}
	if d.opts.RequestTimeout > 0 {
		opts = append(opts, opcua.RequestTimeout(d.opts.RequestTimeout))
	}
	return opts
}

// Dial implements Dialer.
func (d *OPCUADialer) Dial(ctx context.Context, endpoint string) (ClientConn, error) {
	c, err := opcua.NewClient(endpoint, d.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating opcua client for %s: %w", endpoint, err)
	}
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	return &opcuaConn{client: c}, nil
}

type opcuaConn struct {
	client *opcua.Client
}

func (c *opcuaConn) State() ConnState {
	switch c.client.State() {
	case opcua.Connected:
		return StateConnected
	case opcua.Connecting:
		return StateConnecting
	case opcua.Reconnecting:
		return StateReconnecting
	case opcua.Closed:
		return StateClosed
	default:
		return StateDisconnected
	}
}

func (c *opcuaConn) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

func (c *opcuaConn) Subscribe(ctx context.Context, params SubscriptionParams) (Subscription, error) {
	notify := make(chan *opcua.PublishNotificationData, notifyBuffer)
	sub, err := c.client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: params.PublishingInterval,
	}, notify)
	if err != nil {
		return nil, err
	}

	s := &opcuaSubscription{
		sub:     sub,
		params:  params,
		notify:  notify,
		samples: make(chan Sample, notifyBuffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

type opcuaSubscription struct {
	sub    *opcua.Subscription
	params SubscriptionParams

	notify  chan *opcua.PublishNotificationData
	samples chan Sample

	quitOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

// Monitor attaches one item reading the Value attribute, timestamps from
// both source and server.
func (s *opcuaSubscription) Monitor(ctx context.Context, item MonitoredItem) error {
	nodeID, err := ua.ParseNodeID(item.NodeID)
	if err != nil {
		return fmt.Errorf("parsing node id %q: %w", item.NodeID, err)
	}

	req := &ua.MonitoredItemCreateRequest{
		ItemToMonitor: &ua.ReadValueID{
			NodeID:       nodeID,
			AttributeID:  ua.AttributeIDValue,
			DataEncoding: &ua.QualifiedName{},
		},
		MonitoringMode: ua.MonitoringModeReporting,
		RequestedParameters: &ua.MonitoringParameters{
			ClientHandle:     item.Handle,
			SamplingInterval: float64(s.params.SamplingInterval / time.Millisecond),
			QueueSize:        s.params.QueueSize,
			DiscardOldest:    s.params.DiscardOldest,
		},
	}

	res, err := s.sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	if err != nil {
		return fmt.Errorf("monitoring %s: %w", item.NodeID, err)
	}
	if len(res.Results) == 0 {
		return fmt.Errorf("monitoring %s: empty response", item.NodeID)
	}
	if code := res.Results[0].StatusCode; code != ua.StatusOK {
		return fmt.Errorf("monitoring %s: %w", item.NodeID, code)
	}
	return nil
}

func (s *opcuaSubscription) Samples() <-chan Sample {
	return s.samples
}

// Cancel stops the pump, deletes the subscription on the server and closes
// the sample channel.
func (s *opcuaSubscription) Cancel(ctx context.Context) error {
	s.quitOnce.Do(func() { close(s.quit) })
	<-s.done
	return s.sub.Cancel(ctx)
}

func (s *opcuaSubscription) pump() {
	defer close(s.done)
	defer close(s.samples)

	for {
		select {
		case <-s.quit:
			return
		case n, ok := <-s.notify:
			if !ok {
				return
			}
			if n == nil || n.Error != nil {
				continue
			}
			change, ok := n.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			for _, item := range change.MonitoredItems {
				if item == nil || item.Value == nil || item.Value.Value == nil {
					continue
				}
				sample := Sample{
					Handle:     item.ClientHandle,
					Value:      item.Value.Value.Value(),
					SourceTime: item.Value.SourceTimestamp,
					ServerTime: item.Value.ServerTimestamp,
				}
				select {
				case s.samples <- sample:
				case <-s.quit:
					return
				}
			}
		}
	}
}

var _ Dialer = (*OPCUADialer)(nil)
