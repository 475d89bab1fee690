package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	rejects int
	requeue bool
	nackErr error
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	f.requeue = requeue
	return f.nackErr
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects++
	f.requeue = requeue
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(handler HandlerFunc) *Processor {
	return NewProcessor(nil, ProcessorOptions{
		Queue:         QueuePaymentSucceeded,
		MaxConcurrent: 2,
		Prefetch:      4,
	}, handler, discardLogger())
}

func delivery(ack *fakeAcknowledger, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		MessageId:    "msg-1",
		Body:         []byte(body),
	}
}

func TestHandleMalformedBodyRejectsWithoutInvokingHandler(t *testing.T) {
	invoked := false
	p := newTestProcessor(func(ctx context.Context, ev PaymentSucceeded) error {
		invoked = true
		return nil
	})

	ack := &fakeAcknowledger{}
	p.handle(context.Background(), delivery(ack, `{not json`))

	assert.False(t, invoked, "handler must not run for malformed payloads")
	assert.Equal(t, 1, ack.rejects)
	assert.False(t, ack.requeue, "malformed messages go to dead-letter policy, not requeue")
	assert.Zero(t, ack.acks)
	assert.Zero(t, ack.nacks)
}

func TestHandleSuccessAcks(t *testing.T) {
	userID, gameID := uuid.New(), uuid.New()

	var got PaymentSucceeded
	p := newTestProcessor(func(ctx context.Context, ev PaymentSucceeded) error {
		got = ev
		return nil
	})

	ack := &fakeAcknowledger{}
	p.handle(context.Background(), delivery(ack,
		`{"userId":"`+userID.String()+`","gameId":"`+gameID.String()+`"}`))

	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, gameID, got.GameID)
	assert.Equal(t, "msg-1", got.MessageID, "message id comes from the delivery")
}

func TestHandleProcessingErrorAbandonsForRedelivery(t *testing.T) {
	p := newTestProcessor(func(ctx context.Context, ev PaymentSucceeded) error {
		return errors.New("store timeout")
	})

	ack := &fakeAcknowledger{}
	p.handle(context.Background(), delivery(ack,
		`{"userId":"`+uuid.NewString()+`","gameId":"`+uuid.NewString()+`"}`))

	assert.Zero(t, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeue, "processing failures must be redelivered")
}

func TestHandleAbandonFailureDoesNotPanic(t *testing.T) {
	p := newTestProcessor(func(ctx context.Context, ev PaymentSucceeded) error {
		return errors.New("index unavailable")
	})

	ack := &fakeAcknowledger{nackErr: errors.New("channel gone")}
	p.handle(context.Background(), delivery(ack,
		`{"userId":"`+uuid.NewString()+`","gameId":"`+uuid.NewString()+`"}`))

	assert.Equal(t, 1, ack.nacks)
}

func TestStartRefusesMissingQueue(t *testing.T) {
	p := NewProcessor(nil, ProcessorOptions{MaxConcurrent: 1}, nil, discardLogger())

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateStopped, p.State())
}

func TestStartRefusesBadConcurrency(t *testing.T) {
	p := NewProcessor(nil, ProcessorOptions{Queue: "q", MaxConcurrent: 0}, nil, discardLogger())

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateStopped, p.State())
}

func TestStopWaitsForInFlightHandlers(t *testing.T) {
	started := make(chan struct{})
	finish := make(chan struct{})
	p := newTestProcessor(func(ctx context.Context, ev PaymentSucceeded) error {
		close(started)
		<-finish
		return nil
	})

	deliveries := make(chan amqp.Delivery)
	p.state.Store(int32(StateRunning))
	p.wg.Add(1)
	go p.dispatch(context.Background(), deliveries)

	ack := &fakeAcknowledger{}
	deliveries <- amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		MessageId:    "msg-drain",
		Body:         []byte(`{"userId":"` + uuid.NewString() + `","gameId":"` + uuid.NewString() + `"}`),
	}
	<-started
	close(deliveries)

	// two concurrent Stops: both must wait out the handler, neither may
	// release the channel twice
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			results <- p.Stop(ctx)
		}()
	}

	select {
	case err := <-results:
		t.Fatalf("Stop returned before the handler finished: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(finish)

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Stop did not return after the handler finished")
		}
	}

	assert.Equal(t, StateStopped, p.State())
	ack.mu.Lock()
	defer ack.mu.Unlock()
	assert.Equal(t, 1, ack.acks)
}

func TestStopDuringStartupWaitsForRunning(t *testing.T) {
	p := newTestProcessor(func(ctx context.Context, ev PaymentSucceeded) error { return nil })
	p.state.Store(int32(StateStarting))

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopped <- p.Stop(ctx)
	}()

	select {
	case err := <-stopped:
		t.Fatalf("Stop returned while the consumer was still attaching: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// startup settles: dispatch comes up with no pending deliveries
	deliveries := make(chan amqp.Delivery)
	close(deliveries)
	p.wg.Add(1)
	go p.dispatch(context.Background(), deliveries)
	p.state.Store(int32(StateRunning))

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop never drained after startup settled")
	}
	assert.Equal(t, StateStopped, p.State())
}

func TestStopBeforeStartIsNoOp(t *testing.T) {
	p := newTestProcessor(nil)

	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, StateStopped, p.State())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "draining", StateDraining.String())
}
