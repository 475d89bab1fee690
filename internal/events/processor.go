package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HandlerFunc processes a decoded payment confirmation. Returning an error
// abandons the message so the queue redelivers it.
type HandlerFunc func(ctx context.Context, ev PaymentSucceeded) error

// State of the inbound processor lifecycle.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

var ErrAlreadyStarted = errors.New("processor already started")

// ProcessorOptions configure the inbound subscription.
type ProcessorOptions struct {
	Queue         string
	MaxConcurrent int
	Prefetch      int
}

// Processor consumes payment-succeeded events with manual acknowledgment and
// bounded concurrency. It owns its channel for its lifetime.
type Processor struct {
	conn    *amqp.Connection
	opts    ProcessorOptions
	handler HandlerFunc
	logger  *slog.Logger

	state   atomic.Int32
	ch      *amqp.Channel
	wg      sync.WaitGroup
	release sync.Once
}

func NewProcessor(conn *amqp.Connection, opts ProcessorOptions, handler HandlerFunc, logger *slog.Logger) *Processor {
	return &Processor{
		conn:    conn,
		opts:    opts,
		handler: handler,
		logger:  logger,
	}
}

// State returns the current lifecycle state.
func (p *Processor) State() State {
	return State(p.state.Load())
}

// Start attaches the consumer and begins dispatching deliveries. It refuses
// to start with a missing queue name rather than consuming from nowhere.
func (p *Processor) Start(ctx context.Context) error {
	if p.opts.Queue == "" {
		return errors.New("payment queue name not configured")
	}
	if p.opts.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent must be at least 1, got %d", p.opts.MaxConcurrent)
	}
	if !p.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrAlreadyStarted
	}

	ch, err := p.conn.Channel()
	if err != nil {
		p.state.Store(int32(StateStopped))
		return fmt.Errorf("open channel: %w", err)
	}

	if err := declareQueue(ch, p.opts.Queue); err != nil {
		_ = ch.Close()
		p.state.Store(int32(StateStopped))
		return err
	}

	if err := ch.Qos(p.opts.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		p.state.Store(int32(StateStopped))
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		p.opts.Queue,
		consumerTag,
		false, // manual ack only
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		p.state.Store(int32(StateStopped))
		return fmt.Errorf("consume: %w", err)
	}

	p.ch = ch
	p.state.Store(int32(StateRunning))
	p.logger.Info("payment processor running",
		"queue", p.opts.Queue,
		"maxConcurrent", p.opts.MaxConcurrent,
		"prefetch", p.opts.Prefetch,
	)

	p.wg.Add(1)
	go p.dispatch(ctx, deliveries)

	return nil
}

// dispatch fans deliveries out to handler goroutines, at most MaxConcurrent
// in flight. Handlers share no in-process state.
func (p *Processor) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer p.wg.Done()

	sem := make(chan struct{}, p.opts.MaxConcurrent)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("payment processor dispatch stopping", "queue", p.opts.Queue)
			return
		case d, ok := <-deliveries:
			if !ok {
				p.logger.Warn("deliveries channel closed", "queue", p.opts.Queue)
				return
			}

			sem <- struct{}{}
			p.wg.Add(1)
			go func(d amqp.Delivery) {
				defer p.wg.Done()
				defer func() { <-sem }()
				p.handle(ctx, d)
			}(d)
		}
	}
}

func (p *Processor) handle(ctx context.Context, d amqp.Delivery) {
	var ev PaymentSucceeded
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		p.logger.Warn("malformed payment event, rejecting",
			"messageId", d.MessageId,
			"error", err,
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			p.logger.Error("critical: reject failed, message may be stuck until dead-lettering",
				"messageId", d.MessageId,
				"error", rejectErr,
			)
		}
		return
	}
	ev.MessageID = d.MessageId

	p.logger.Info("payment confirmed, processing",
		"messageId", d.MessageId,
		"correlationId", d.CorrelationId,
		"userId", ev.UserID,
		"gameId", ev.GameID,
	)

	if err := p.handler(ctx, ev); err != nil {
		p.logger.Error("process payment event",
			"messageId", d.MessageId,
			"error", err,
		)
		if nackErr := d.Nack(false, true); nackErr != nil {
			p.logger.Error("critical: abandon failed, message may be stuck until dead-lettering",
				"messageId", d.MessageId,
				"error", nackErr,
			)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		p.logger.Error("ack failed", "messageId", d.MessageId, "error", err)
		return
	}

	p.logger.Info("payment event completed", "messageId", d.MessageId)
}

// Stop drains in-flight handlers and releases the channel. The channel is
// released exactly once even if draining exceeds the context deadline.
func (p *Processor) Stop(ctx context.Context) error {
	for {
		switch State(p.state.Load()) {
		case StateStopped:
			return nil
		case StateStarting:
			// Start is mid-attach; wait for it to settle so the consumer
			// cannot outlive a Stop that raced it.
			select {
			case <-ctx.Done():
				return fmt.Errorf("stop while starting: %w", ctx.Err())
			case <-time.After(time.Millisecond):
			}
		case StateRunning:
			if p.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
				return p.drain(ctx)
			}
		case StateDraining:
			return p.drain(ctx)
		}
	}
}

func (p *Processor) drain(ctx context.Context) error {
	if p.ch != nil {
		// stop new deliveries while in-flight handlers finish
		if err := p.ch.Cancel(consumerTag, false); err != nil {
			p.logger.Warn("cancel consumer", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var drainErr error
	select {
	case <-done:
	case <-ctx.Done():
		drainErr = fmt.Errorf("drain interrupted: %w", ctx.Err())
	}

	p.release.Do(func() {
		if p.ch != nil {
			if err := p.ch.Close(); err != nil {
				p.logger.Warn("close channel", "error", err)
			}
		}
		p.state.Store(int32(StateStopped))
		p.logger.Info("payment processor stopped", "queue", p.opts.Queue)
	})

	return drainErr
}
