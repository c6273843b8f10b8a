package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned by an async MultiLogger that cannot accept more events
var ErrQueueFull = errors.New("audit: queue full")

type queuedEvent struct {
	ctx   context.Context
	event *Event
}

// MultiLogger fans events out to several destinations. A synchronous logger
// writes to every destination before returning. An async logger hands events
// to a single worker through a bounded queue, so destination order is
// preserved and a slow destination never blocks a request.
type MultiLogger struct {
	loggers []Logger
	log     *logrus.Logger

	queue   chan queuedEvent
	done    chan struct{}
	closing sync.Once
	dropped atomic.Int64
}

// NewMultiLogger creates a synchronous fan-out logger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// NewAsyncMultiLogger creates a fan-out logger backed by a queue of size
// buffer. Destination failures are reported through log.
func NewAsyncMultiLogger(buffer int, log *logrus.Logger, loggers ...Logger) *MultiLogger {
	if buffer <= 0 {
		buffer = 1
	}
	if log == nil {
		log = logrus.New()
	}

	m := &MultiLogger{
		loggers: loggers,
		log:     log,
		queue:   make(chan queuedEvent, buffer),
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *MultiLogger) run() {
	defer close(m.done)
	for q := range m.queue {
		if err := m.fanOut(q.ctx, q.event); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{
				"event_id":   q.event.ID,
				"event_type": q.event.EventType,
			}).Error("audit write failed")
		}
	}
}

// fanOut writes to every destination, continuing past failures
func (m *MultiLogger) fanOut(ctx context.Context, event *Event) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log implements Logger. Async loggers detach ctx from cancellation and
// return ErrQueueFull instead of blocking.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	if m.queue == nil {
		return m.fanOut(ctx, event)
	}

	select {
	case m.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		m.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped returns the number of events rejected by a full queue
func (m *MultiLogger) Dropped() int64 {
	return m.dropped.Load()
}

// Close drains the queue and closes every destination. Log must not be
// called after Close.
func (m *MultiLogger) Close() error {
	m.closing.Do(func() {
		if m.queue != nil {
			close(m.queue)
			<-m.done
		}
	})

	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
