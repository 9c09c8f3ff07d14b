package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/logging"
	"github.com/dmitrijs2005/inboxview/internal/server/metrics"
)

// Dispatcher implements Mailer on top of a Transport and counts every
// delivery. Background sends are tracked so Close can wait for them.
type Dispatcher struct {
	transport Transport
	logger    logging.Logger
	timeout   time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(t Transport, l logging.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{transport: t, logger: l, timeout: timeout}
}

func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	err := d.transport.Send(ctx, msg)
	metrics.RecordEmail(string(msg.Kind), err)
	if err != nil {
		d.logger.Error(ctx, "email delivery failed", "kind", msg.Kind, "error", err)
	}
	return err
}

// SendAsync delivers msg on its own goroutine with a fresh timeout. After
// Close the message is dropped.
func (d *Dispatcher) SendAsync(msg Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Warn(context.Background(), "email dropped: dispatcher closed", "kind", msg.Kind)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		_ = d.Send(ctx, msg)
	}()
}

// Close stops accepting background sends and waits for in-flight ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
}
