package mailer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []Message
	delay time.Duration
	fail  error
}

func (r *recordingSender) Send(msg Message) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.fail != nil {
		return r.fail
	}
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestEnqueueDelivers(t *testing.T) {
	sender := &recordingSender{}
	m := New(sender, 2, 16, zap.NewNop())

	for i := 0; i < 5; i++ {
		m.Enqueue(Message{To: "voter@example.com", Subject: "Your code"})
	}
	m.Close()

	assert.Equal(t, 5, sender.count())
}

func TestEnqueueDoesNotBlockOnSlowSender(t *testing.T) {
	sender := &recordingSender{delay: 200 * time.Millisecond}
	m := New(sender, 1, 16, zap.NewNop())
	defer m.Close()

	start := time.Now()
	for i := 0; i < 5; i++ {
		m.Enqueue(Message{To: "voter@example.com"})
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestResizeDrainsOldPool(t *testing.T) {
	sender := &recordingSender{delay: 20 * time.Millisecond}
	m := New(sender, 1, 16, zap.NewNop())

	// Queue up work for the old pool, then resize while it is in flight.
	for i := 0; i < 5; i++ {
		m.Enqueue(Message{To: "a@example.com"})
	}
	m.Resize(4)
	require.Equal(t, 4, m.Workers())

	// New pool accepts and delivers new work.
	for i := 0; i < 3; i++ {
		m.Enqueue(Message{To: "b@example.com"})
	}

	// Everything enqueued before and after the resize completes.
	assert.Eventually(t, func() bool {
		return sender.count() == 8
	}, 2*time.Second, 10*time.Millisecond)

	m.Close()
}

func TestResizeClampsToOneWorker(t *testing.T) {
	m := New(&recordingSender{}, 2, 16, zap.NewNop())
	defer m.Close()

	m.Resize(0)
	assert.Equal(t, 1, m.Workers())
}

func TestSendFailureIsSwallowed(t *testing.T) {
	sender := &recordingSender{fail: assert.AnError}
	m := New(sender, 1, 16, zap.NewNop())

	m.Enqueue(Message{To: "voter@example.com"})
	m.Close()

	assert.Equal(t, 0, sender.count())
}

func TestEnqueueDuringResize(t *testing.T) {
	sender := &recordingSender{}
	m := New(sender, 2, 256, zap.NewNop())

	// Enqueuers race against repeated pool swaps; a send must never observe
	// the closed intake of a retired pool.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					m.Enqueue(Message{To: "voter@example.com", Subject: "Your code"})
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		m.Resize(1 + i%4)
	}
	close(stop)
	wg.Wait()
	m.Close()

	assert.Greater(t, sender.count(), 0)
}

func TestConcurrentEnqueue(t *testing.T) {
	sender := &recordingSender{}
	m := New(sender, 4, 256, zap.NewNop())

	var enqueued atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				m.Enqueue(Message{To: "voter@example.com"})
				enqueued.Add(1)
			}
		}()
	}
	wg.Wait()
	m.Close()

	assert.Equal(t, int(enqueued.Load()), sender.count())
}
