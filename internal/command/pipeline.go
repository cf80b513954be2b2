package command

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ablyth/sensi-core/internal/device"
	"github.com/ablyth/sensi-core/internal/infrastructure/config"
)

// Logger defines the logging interface used by the pipeline.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Emitter delivers acked events to the cloud. Satisfied by the transport
// client.
type Emitter interface {
	EmitWithAck(ctx context.Context, event string, data any, timeout time.Duration) (json.RawMessage, error)
}

// Result is the asynchronous outcome of an accepted command. It resolves
// to nil on confirmed delivery, ErrCommandFailed after exhausted retries,
// or ErrShutdown when the pipeline stops first.
type Result struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

func (r *Result) resolve(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done returns a channel closed when the outcome is known.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the outcome is known or the context ends.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pipeline validates, optimistically applies, and delivers commands.
type Pipeline struct {
	store   *device.Store
	emitter Emitter
	cfg     config.CommandConfig
	logger  Logger

	pending *pendingSet
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// New creates a command pipeline writing through the given emitter.
func New(store *device.Store, emitter Emitter, cfg config.CommandConfig) *Pipeline {
	return &Pipeline{
		store:   store,
		emitter: emitter,
		cfg:     cfg,
		logger:  noopLogger{},
		pending: newPendingSet(),
		done:    make(chan struct{}),
	}
}

// SetLogger sets the logger for the pipeline.
func (p *Pipeline) SetLogger(logger Logger) {
	p.logger = logger
}

// Submit runs the validation chain and, on acceptance, applies the write
// optimistically and starts delivery. Validation failures return a
// synchronous error with nothing mutated and nothing sent.
func (p *Pipeline) Submit(ctx context.Context, deviceID string, spec Spec) (*Result, error) {
	if p.isClosed() {
		return nil, ErrShutdown
	}

	snap, err := p.store.Snapshot(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	if err := validate(spec, snap); err != nil {
		return nil, err
	}

	pl := compile(deviceID, spec, snap)
	cmdID := uuid.NewString()

	// Optimistic apply. The prior state feeds the per-field rollback.
	var prior device.State
	if _, err := p.store.Apply(deviceID, func(d *device.Device) []string {
		prior = d.State
		pl.mutate(&d.State)
		return pl.paths
	}); err != nil {
		return nil, err
	}

	w := &pendingWrite{
		id:        cmdID,
		deviceID:  deviceID,
		paths:     pl.paths,
		confirmed: make(chan struct{}),
	}
	p.pending.register(w)

	p.logger.Debug("command accepted",
		"command", cmdID, "device", deviceID, "intent", spec.describe())

	res := newResult()
	p.wg.Add(1)
	go p.deliver(cmdID, pl, prior, w, res)
	return res, nil
}

// OnServerUpdate feeds server-confirmed field updates into the pipeline.
// Wire it to the reconciliation engine's update callback.
func (p *Pipeline) OnServerUpdate(deviceID string, paths []string) {
	p.pending.confirmPaths(deviceID, paths)
}

// Shutdown stops delivery, rolls back unconfirmed optimistic writes, and
// resolves their results with ErrShutdown.
func (p *Pipeline) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// deliver sends the plan's emits with bounded retries. It resolves the
// result on ack, on server confirmation, or with a rollback when every
// attempt fails.
func (p *Pipeline) deliver(cmdID string, pl plan, prior device.State, w *pendingWrite, res *Result) {
	defer p.wg.Done()

	attempts := p.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(p.cfg.GetRetryBackoff())
			select {
			case <-timer.C:
			case <-w.confirmed:
				timer.Stop()
			case <-p.done:
				timer.Stop()
			}
		}

		select {
		case <-w.confirmed:
			p.finish(w, res, nil)
			return
		case <-p.done:
			p.abort(cmdID, pl, prior, w, res, ErrShutdown)
			return
		default:
		}

		if err := p.sendAll(pl); err != nil {
			lastErr = err
			p.logger.Warn("command delivery attempt failed",
				"command", cmdID, "device", w.deviceID,
				"attempt", attempt, "error", err)
			continue
		}

		p.logger.Debug("command acknowledged", "command", cmdID, "device", w.deviceID)
		p.finish(w, res, nil)
		return
	}

	// Retries exhausted. A server update covering the fields in the
	// meantime is authoritative and counts as success.
	select {
	case <-w.confirmed:
		p.finish(w, res, nil)
	default:
		p.abort(cmdID, pl, prior, w, res,
			fmt.Errorf("%w: %v", ErrCommandFailed, lastErr))
	}
}

// sendAll delivers every emit of the plan, each with its own ack wait.
func (p *Pipeline) sendAll(pl plan) error {
	for _, e := range pl.emits {
		data, err := p.emitter.EmitWithAck(context.Background(),
			e.event, e.payload, p.cfg.GetAckTimeout())
		if err != nil {
			return err
		}
		if err := ackError(data); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) finish(w *pendingWrite, res *Result, err error) {
	p.pending.remove(w)
	res.resolve(err)
}

// abort rolls the optimistic fields back, unless a server update or a
// newer command has taken them over since.
func (p *Pipeline) abort(cmdID string, pl plan, prior device.State, w *pendingWrite, res *Result, cause error) {
	if p.pending.owns(w) {
		_, err := p.store.Apply(w.deviceID, func(d *device.Device) []string {
			pl.restore(&d.State, prior)
			return pl.paths
		})
		if err != nil {
			p.logger.Error("rollback failed",
				"command", cmdID, "device", w.deviceID, "error", err)
		} else {
			p.logger.Info("optimistic write rolled back",
				"command", cmdID, "device", w.deviceID, "paths", pl.paths)
		}
	}

	p.finish(w, res, cause)
}

// ackError inspects an ack payload for a server-side rejection. Acks
// arrive as a JSON array; an element carrying an "error" object marks the
// command as refused.
func ackError(data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}

	var elems []map[string]json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil
	}
	for _, el := range elems {
		if raw, ok := el["error"]; ok {
			return fmt.Errorf("%w: server rejected command: %s", ErrCommandFailed, raw)
		}
	}
	return nil
}
