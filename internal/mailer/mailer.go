// Package mailer delivers notification email through a resizable pool of
// background workers, so request handlers never block on SMTP round trips.
package mailer

import (
	"sync"

	"go.uber.org/zap"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}

// Sender delivers a single message. Implementations must be safe for
// concurrent use by multiple workers.
type Sender interface {
	Send(msg Message) error
}

// pool is one generation of workers draining one queue. Resizing retires the
// whole generation and starts a new one.
type pool struct {
	jobs chan Message
	wg   sync.WaitGroup
}

func newPool(workers, queueSize int, sender Sender, logger *zap.Logger) *pool {
	p := &pool{jobs: make(chan Message, queueSize)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for msg := range p.jobs {
				if err := sender.Send(msg); err != nil {
					logger.Error("failed to send email",
						zap.String("to", msg.To),
						zap.String("subject", msg.Subject),
						zap.Error(err))
					continue
				}
				logger.Debug("email sent",
					zap.String("to", msg.To),
					zap.String("subject", msg.Subject))
			}
		}()
	}
	return p
}

// Mailer owns the current worker pool and hands messages to it.
type Mailer struct {
	sender    Sender
	logger    *zap.Logger
	queueSize int

	// mu guards the pool pointer. Enqueue holds it in read mode across the
	// channel send; Resize and Close take the write lock around swap and
	// close, so a send can never hit a closed intake channel.
	mu      sync.RWMutex
	current *pool
	workers int
}

// New creates a mailer with the given number of workers.
func New(sender Sender, workers, queueSize int, logger *zap.Logger) *Mailer {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	return &Mailer{
		sender:    sender,
		logger:    logger,
		queueSize: queueSize,
		current:   newPool(workers, queueSize, sender, logger),
		workers:   workers,
	}
}

// Enqueue hands a message to the pool and returns immediately. Delivery
// failures are logged by the workers, never surfaced to the caller. If the
// queue is full the message is dropped with a log entry rather than blocking
// the request path.
func (m *Mailer) Enqueue(msg Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	select {
	case m.current.jobs <- msg:
	default:
		m.logger.Warn("mail queue full, dropping message",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject))
	}
}

// Workers returns the size of the current pool.
func (m *Mailer) Workers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workers
}

// Resize replaces the pool with one of the given size. The old pool keeps
// running until it has drained its queue; messages already enqueued are never
// lost and Resize does not wait for them.
func (m *Mailer) Resize(workers int) {
	if workers < 1 {
		workers = 1
	}

	m.mu.Lock()
	old := m.current
	m.current = newPool(workers, m.queueSize, m.sender, m.logger)
	prev := m.workers
	m.workers = workers
	close(old.jobs)
	m.mu.Unlock()

	go old.wg.Wait()

	m.logger.Info("mailer pool resized",
		zap.Int("previous_workers", prev),
		zap.Int("workers", workers))
}

// Close stops the current pool after its queue drains.
func (m *Mailer) Close() {
	m.mu.Lock()
	p := m.current
	close(p.jobs)
	m.mu.Unlock()

	p.wg.Wait()
}
