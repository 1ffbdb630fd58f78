package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/catering/internal/config"
	"github.com/smallbiznis/catering/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const DefaultExchange = "notifications"

var (
	ErrPublisherDisabled = errors.New("outbox publisher disabled")
	ErrPublisherClosed   = errors.New("outbox publisher closed")
	ErrBrokerUnavailable = errors.New("outbox broker unavailable")
)

// Publisher delivers fan-out messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	// Enabled reports whether a broker is configured at all.
	Enabled() bool
	// Ready returns nil once a usable broker connection is held, redialing
	// after a disconnect.
	Ready() error
}

// RoutingKey is the topic routing key for an event type.
func RoutingKey(eventType string) string {
	return "notification." + eventType
}

type dialFunc func() (*amqp.Connection, *amqp.Channel, error)

type AMQPPublisher struct {
	mu       sync.Mutex
	dial     dialFunc
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	closed   bool
	log      *zap.Logger
}

// DialAMQP connects to url and declares a durable topic exchange. A dropped
// connection is redialed on the next Ready or Publish.
func DialAMQP(url, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultExchange
	}
	p := newAMQPPublisher(exchange, func() (*amqp.Connection, *amqp.Channel, error) {
		return dialExchange(url, exchange)
	}, log)
	if err := p.Ready(); err != nil {
		return nil, err
	}
	return p, nil
}

func newAMQPPublisher(exchange string, dial dialFunc, log *zap.Logger) *AMQPPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &AMQPPublisher{dial: dial, exchange: exchange, log: log}
}

func dialExchange(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) Enabled() bool {
	return p != nil
}

func (p *AMQPPublisher) Ready() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureLocked()
}

func (p *AMQPPublisher) ensureLocked() error {
	if p.closed {
		return ErrPublisherClosed
	}
	if p.conn != nil && !p.conn.IsClosed() && p.channel != nil && !p.channel.IsClosed() {
		return nil
	}
	reconnect := p.conn != nil
	p.releaseLocked()

	conn, ch, err := p.dial()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}
	p.conn = conn
	p.channel = ch
	p.watch(conn)
	if reconnect {
		p.log.Info("outbox.publisher.reconnected", zap.String("exchange", p.exchange))
	}
	return nil
}

// watch logs the broker closing the connection; the next Ready redials.
func (p *AMQPPublisher) watch(conn *amqp.Connection) {
	if conn == nil {
		return
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if amqpErr, ok := <-closed; ok && amqpErr != nil {
			p.log.Warn("outbox.publisher.connection_closed",
				zap.String("exchange", p.exchange),
				zap.Int("code", amqpErr.Code),
				zap.String("reason", amqpErr.Reason),
			)
		}
	}()
}

func (p *AMQPPublisher) releaseLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		_ = p.conn.Close()
	}
	p.channel = nil
	p.conn = nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLocked(); err != nil {
		return err
	}
	headers := amqp.Table{}
	tracing.InjectMessage(ctx, tracing.MessageHeaders(headers))
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			Headers:      headers,
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil && !p.conn.IsClosed() {
		errs = append(errs, p.conn.Close())
	}
	p.channel = nil
	p.conn = nil
	return errors.Join(errs...)
}

type disabledPublisher struct{}

func (disabledPublisher) Publish(context.Context, string, any) error { return ErrPublisherDisabled }
func (disabledPublisher) Enabled() bool                              { return false }
func (disabledPublisher) Ready() error                               { return ErrPublisherDisabled }

// NewPublisher dials the broker when AMQP_URL is set and returns a disabled
// publisher otherwise. The connection is closed on stop.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Publisher, error) {
	log = log.Named("notification.outbox")
	if cfg.AMQP.URL == "" {
		log.Info("outbox.publisher.disabled")
		return disabledPublisher{}, nil
	}

	pub, err := DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	if err != nil {
		return nil, err
	}
	log.Info("outbox.publisher.connected", zap.String("exchange", pub.exchange))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	return pub, nil
}
