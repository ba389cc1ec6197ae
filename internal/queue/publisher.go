package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ErrBrokerBackoff is returned while the publisher waits out the pause
// after a failed dial.
var ErrBrokerBackoff = errors.New("rabbitmq: waiting before redial")

// Publisher sends StatusChangedEvents to the status queue.  The broker
// connection is opened lazily and reopened after a failure.  A dial is
// bounded by dialTimeout, and after a failed one no redial happens for
// backoff, so an outage costs at most one short dial per backoff window.
type Publisher struct {
	url         string
	log         zerolog.Logger
	dialTimeout time.Duration
	backoff     time.Duration

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	nextDial time.Time
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, log zerolog.Logger) *Publisher {
	return &Publisher{
		url:         url,
		log:         log.With().Str("component", "publisher").Logger(),
		dialTimeout: 3 * time.Second,
		backoff:     10 * time.Second,
	}
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()
	if time.Now().Before(p.nextDial) {
		return nil, ErrBrokerBackoff
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
	if err != nil {
		p.nextDial = time.Now().Add(p.backoff)
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(StatusQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// PublishStatusChanged sends one persistent JSON message.  Errors are
// logged and returned; callers treat them as non-fatal.
func (p *Publisher) PublishStatusChanged(ctx context.Context, ev StatusChangedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		p.log.Warn().Err(err).Uint64("event_id", ev.EventID).Msg("rabbitmq unavailable")
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.MessageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", StatusQueueName, false, false, pub); err != nil {
		p.log.Warn().Err(err).Uint64("event_id", ev.EventID).Msg("publish failed")
		p.closeLocked()
		return err
	}
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Publisher) closeLocked() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	err := errors.Join(errs...)
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
