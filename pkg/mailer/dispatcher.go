package mailer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DispatcherConfig tunes the async delivery pool.
type DispatcherConfig struct {
	Workers     int
	BufferSize  int
	SendTimeout time.Duration
	Logger      *zap.Logger

	// OnDispatch, when set, is invoked for every successfully enqueued
	// message.
	OnDispatch func(Message)
}

// Dispatcher delivers messages asynchronously on a small worker pool.
// Enqueueing never fails the caller: domain writes are already committed by
// the time a notification is dispatched, so delivery errors are logged and
// swallowed.
type Dispatcher struct {
	sender      Sender
	workers     int
	sendTimeout time.Duration
	logger      *zap.Logger
	onDispatch  func(Message)

	messages chan Message
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
}

// NewDispatcher builds a dispatcher around the given sender.
func NewDispatcher(sender Sender, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 8
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Dispatcher{
		sender:      sender,
		workers:     cfg.Workers,
		sendTimeout: cfg.SendTimeout,
		logger:      cfg.Logger,
		onDispatch:  cfg.OnDispatch,
		messages:    make(chan Message, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.started = true
	d.logger.Sugar().Infow("mail dispatcher started", "workers", d.workers)
}

// Stop cancels workers and waits for them to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.mu.Unlock()
	d.wg.Wait()
	d.logger.Sugar().Infow("mail dispatcher stopped")
}

// Dispatch enqueues a message for delivery. Drops the message (with a log
// line) when the dispatcher is stopped or the buffer is full.
func (d *Dispatcher) Dispatch(msg Message) {
	d.mu.Lock()
	ctx := d.ctx
	started := d.started
	d.mu.Unlock()

	if !started {
		d.logger.Warn("mail dispatcher not started, dropping message", zap.String("to", msg.To))
		return
	}

	select {
	case <-ctx.Done():
		d.logger.Warn("mail dispatcher stopped, dropping message", zap.String("to", msg.To))
	case d.messages <- msg:
		if d.onDispatch != nil {
			d.onDispatch(msg)
		}
	default:
		d.logger.Warn("mail buffer full, dropping message", zap.String("to", msg.To))
	}
}

// Send delivers synchronously through the dispatcher's sender. Implements
// Sender so services can be wired with or without the async pool.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	return d.sender.Send(ctx, msg)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case msg := <-d.messages:
			ctx, cancel := context.WithTimeout(d.ctx, d.sendTimeout)
			if err := d.sender.Send(ctx, msg); err != nil {
				d.logger.Warn("mail delivery failed",
					zap.String("to", msg.To),
					zap.String("subject", msg.Subject),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}
