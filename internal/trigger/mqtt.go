package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roach88/friendsync/internal/ir"
)

// qos is the MQTT delivery level for notifications: at least once.
const qos = 1

// MQTTOptions configures a broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Dial connects to a broker. The session is persistent and incoming messages
// are acked manually, so a Subscriber can refuse a message by not acking it.
func Dial(ctx context.Context, o MQTTOptions, logger *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	opts.SetUsername(o.Username)
	opts.SetPassword(o.Password)
	opts.SetCleanSession(false)
	opts.SetAutoAckDisabled(true)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("connected to MQTT", "broker", o.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	}

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("connect %s: %w", o.Broker, err)
	}
	return client, nil
}

// Bridge publishes notifications to <prefix>/<record id> at QoS 1.
// It is a Handler: used with a Dispatcher, an outbox change is acked only
// once the broker has acknowledged the publish.
type Bridge struct {
	client mqtt.Client
	prefix string
}

// NewBridge creates a Bridge over a connected client.
func NewBridge(client mqtt.Client, prefix string) *Bridge {
	return &Bridge{client: client, prefix: strings.TrimSuffix(prefix, "/")}
}

// Client returns the underlying broker connection.
func (b *Bridge) Client() mqtt.Client {
	return b.client
}

// Topic returns the topic notifications for id are published on.
func (b *Bridge) Topic(id ir.RecordID) string {
	return b.prefix + "/" + string(id)
}

// Deliver publishes n and waits for the broker's acknowledgement.
func (b *Bridge) Deliver(ctx context.Context, n ir.Notification) error {
	payload, err := Encode(n)
	if err != nil {
		return err
	}
	if err := wait(ctx, b.client.Publish(b.Topic(n.RecordID), qos, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", n.EventID, err)
	}
	return nil
}

// Subscriber feeds notifications from <prefix>/+ to a Handler.
//
// A message is acked only after the handler succeeds. A failed message is
// left unacked so the broker redelivers it. Messages that cannot be decoded
// are acked and dropped, since redelivery cannot fix them.
type Subscriber struct {
	client  mqtt.Client
	prefix  string
	handler Handler
	logger  *slog.Logger
	timeout time.Duration
}

// NewSubscriber creates a Subscriber over a client dialed with Dial.
func NewSubscriber(client mqtt.Client, prefix string, handler Handler, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		handler: handler,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// Filter returns the subscription topic filter.
func (s *Subscriber) Filter() string {
	return s.prefix + "/+"
}

// Start subscribes. Handlers run with a context derived from ctx.
func (s *Subscriber) Start(ctx context.Context) error {
	token := s.client.Subscribe(s.Filter(), qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.onMessage(ctx, msg)
	})
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.Filter(), err)
	}
	s.logger.Info("subscribed", "filter", s.Filter())
	return nil
}

// Stop unsubscribes.
func (s *Subscriber) Stop(ctx context.Context) error {
	if err := wait(ctx, s.client.Unsubscribe(s.Filter())); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", s.Filter(), err)
	}
	return nil
}

func (s *Subscriber) onMessage(ctx context.Context, msg mqtt.Message) {
	n, err := Decode(msg.Payload())
	if err != nil {
		s.logger.Error("dropping undecodable message", "topic", msg.Topic(), "error", err)
		msg.Ack()
		deliveriesTotal.WithLabelValues(string(resultDead)).Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.handler.Deliver(ctx, n); err != nil {
		s.logger.Warn("delivery failed, leaving unacked",
			"topic", msg.Topic(),
			"record_id", n.RecordID,
			"event_id", n.EventID,
			"error", err,
		)
		deliveriesTotal.WithLabelValues(string(resultRetry)).Inc()
		return
	}
	msg.Ack()
	deliveriesTotal.WithLabelValues(string(resultOK)).Inc()
}

// wait blocks until token completes or ctx ends.
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
