package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/keyexec-go/core/engine"
)

const (
	// DefaultKeyHeader carries the affinity key of a message.
	DefaultKeyHeader = "X-Affinity-Key"
	// StatusHeader is set on replies to requests the engine refused.
	StatusHeader  = "X-Dispatch-Status"
	StatusRefused = "refused"
)

var (
	ErrDispatcherClosed  = errors.New("dispatcher closed")
	ErrDispatcherStarted = errors.New("dispatcher already started")
	ErrSubjectRequired   = errors.New("subject is required")
)

// Handler processes one message on an engine worker.
type Handler func(ctx context.Context, msg *natsgo.Msg) error

type DispatcherConfig struct {
	Connect   Connector        // Connect opens the NATS connection. If nil, ConnectDefault() is used.
	Log       *slog.Logger     // Log for diagnostics (optional)
	Subject   string           // Subject to subscribe to, wildcards allowed
	Queue     string           // Queue group (optional)
	KeyHeader string           // KeyHeader names the affinity key header; the subject is used when absent
	Engine    engine.Submitter // Engine executes the handler
	Handler   Handler
}

// DispatcherStats are cumulative message counters.
type DispatcherStats struct {
	Dispatched uint64
	Refused    uint64
	Failed     uint64
}

// Dispatcher feeds messages of a NATS subscription into an engine, keyed by
// affinity header, so messages sharing a key are handled one at a time in
// arrival order while other keys proceed in parallel.
type Dispatcher struct {
	nc        *natsgo.Conn
	closeNc   closeFunc
	log       *slog.Logger
	subject   string
	queue     string
	keyHeader string
	engine    engine.Submitter
	handler   Handler

	mu  sync.Mutex
	sub *natsgo.Subscription

	done     chan struct{}
	watchWg  sync.WaitGroup
	watchers atomic.Int32

	closed     atomic.Bool
	dispatched atomic.Uint64
	refused    atomic.Uint64
	failed     atomic.Uint64
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Subject == "" {
		return nil, ErrSubjectRequired
	}
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("handler is required")
	}

	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	keyHeader := cfg.KeyHeader
	if keyHeader == "" {
		keyHeader = DefaultKeyHeader
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}

	return &Dispatcher{
		nc:        nc,
		closeNc:   closeNc,
		log:       log.With(slog.String("dispatcher", cfg.Subject)),
		subject:   cfg.Subject,
		queue:     cfg.Queue,
		keyHeader: keyHeader,
		engine:    cfg.Engine,
		handler:   cfg.Handler,
		done:      make(chan struct{}),
	}, nil
}

// Start subscribes to the configured subject. Handlers receive ctx; the
// subscription is removed when ctx ends or the dispatcher is closed.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return ErrDispatcherClosed
	}
	if d.sub != nil {
		return ErrDispatcherStarted
	}

	cb := func(msg *natsgo.Msg) { d.dispatch(ctx, msg) }
	var (
		sub *natsgo.Subscription
		err error
	)
	if d.queue != "" {
		sub, err = d.nc.QueueSubscribe(d.subject, d.queue, cb)
	} else {
		sub, err = d.nc.Subscribe(d.subject, cb)
	}
	if err != nil {
		return fmt.Errorf("nats: subscribe %s: %w", d.subject, err)
	}
	// the subscription must be live before publishers are told we started
	if err := d.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats: flush: %w", err)
	}
	d.sub = sub

	d.watchWg.Add(1)
	d.watchers.Add(1)
	go func() {
		defer d.watchWg.Done()
		defer d.watchers.Add(-1)
		select {
		case <-ctx.Done():
			d.unsubscribe()
		case <-d.done:
		}
	}()

	d.log.Info("dispatcher started", slog.String("queue", d.queue))
	return nil
}

// Key returns the affinity key of msg.
func (d *Dispatcher) Key(msg *natsgo.Msg) string {
	if msg.Header != nil {
		if k := msg.Header.Get(d.keyHeader); k != "" {
			return k
		}
	}
	return msg.Subject
}

func (d *Dispatcher) dispatch(ctx context.Context, msg *natsgo.Msg) {
	key := d.Key(msg)
	ok := d.engine.Submit(key, func() {
		if err := d.handler(ctx, msg); err != nil {
			d.failed.Add(1)
			d.log.Error("handler failed", slog.String("key", key), slog.String("subject", msg.Subject), slog.Any("error", err))
		}
	})
	if ok {
		d.dispatched.Add(1)
		return
	}

	d.refused.Add(1)
	d.log.Warn("message refused by engine", slog.String("key", key), slog.String("subject", msg.Subject))
	if msg.Reply != "" {
		reply := natsgo.NewMsg(msg.Reply)
		reply.Header.Set(StatusHeader, StatusRefused)
		if err := msg.RespondMsg(reply); err != nil {
			d.log.Error("failed to publish refusal", slog.Any("error", err))
		}
	}
}

// Stats returns the current message counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Dispatched: d.dispatched.Load(),
		Refused:    d.refused.Load(),
		Failed:     d.failed.Load(),
	}
}

func (d *Dispatcher) unsubscribe() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sub != nil {
		_ = d.sub.Drain()
		d.sub = nil
	}
}

// Close stops receiving messages and releases the connection. Items already
// handed to the engine are not affected; stop the engine separately.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed.Swap(true) {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	close(d.done)
	d.mu.Unlock()

	d.watchWg.Wait()
	d.unsubscribe()
	d.closeNc()
	d.log.Info("dispatcher closed", slog.Any("stats", d.Stats()))
	return nil
}
