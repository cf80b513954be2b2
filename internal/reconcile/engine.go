package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/ablyth/sensi-core/internal/capability"
	"github.com/ablyth/sensi-core/internal/device"
	"github.com/ablyth/sensi-core/internal/transport"
)

// Logger defines the logging interface used by the engine.
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

// Engine merges inbound cloud payloads into the device store.
type Engine struct {
	store  *device.Store
	logger Logger

	listenerMu sync.RWMutex
	listener   func(deviceID string, paths []string)
}

// New creates an engine writing into the given store.
func New(store *device.Store) *Engine {
	return &Engine{
		store:  store,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// OnServerUpdate registers the callback invoked with the changed field
// paths of every accepted server merge. The command pipeline uses it to
// retire pending optimistic writes.
func (e *Engine) OnServerUpdate(fn func(deviceID string, paths []string)) {
	e.listenerMu.Lock()
	e.listener = fn
	e.listenerMu.Unlock()
}

// Run consumes the transport event stream until the context is cancelled
// or the stream closes. It is the single consumer of the stream.
func (e *Engine) Run(ctx context.Context, events <-chan transport.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handle(ev)
		}
	}
}

func (e *Engine) handle(ev transport.Event) {
	switch ev.Type {
	case transport.EventConnected:
		e.store.SetDegraded(false)
	case transport.EventDegraded:
		e.store.SetDegraded(true)
	case transport.EventDisconnected:
		e.logger.Debug("push channel disconnected", "error", ev.Err)
	case transport.EventMessage:
		e.dispatch(ev.Name, ev.Data)
	}
}

func (e *Engine) dispatch(name string, data json.RawMessage) {
	var err error
	switch name {
	case "state":
		err = e.handleState(data)
	case "capabilities":
		err = e.handleCapabilities(data)
	case "info":
		err = e.handleInfo(data)
	default:
		e.logger.Debug("ignoring event", "event", name)
		return
	}

	if err != nil {
		e.logger.Warn("payload dropped", "event", name, "error", err)
	}
}

// handleState processes a "state" event: an array of per-device updates,
// each optionally carrying registration and state sub-documents.
func (e *Engine) handleState(data json.RawMessage) error {
	var updates []deviceUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var firstErr error
	for _, upd := range updates {
		if err := e.applyUpdate(upd); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// applyUpdate merges one device's update. Validation against the device's
// capability bounds happens inside the store's critical section, before
// any field is written, so a rejected payload leaves no trace.
func (e *Engine) applyUpdate(upd deviceUpdate) error {
	if upd.ICDID == "" {
		return fmt.Errorf("%w: update missing icd_id", ErrMalformedPayload)
	}

	if created, err := e.store.Ensure(upd.ICDID); err != nil {
		return err
	} else if created {
		e.logger.Info("discovered device", "device", upd.ICDID)
	}

	var rejected error
	changed, err := e.store.Apply(upd.ICDID, func(d *device.Device) []string {
		if upd.State != nil {
			if err := validateState(upd.State, d.Capabilities); err != nil {
				rejected = err
				return nil
			}
		}

		var paths []string
		if upd.Registration != nil && *upd.Registration != d.Registration {
			d.Registration = *upd.Registration
			d.RegistrationUpdatedAt = time.Now().UTC()
			paths = append(paths, "registration")
		}
		if upd.State != nil {
			paths = append(paths, mergeState(&d.State, upd.State)...)
		}
		return paths
	})
	if err != nil {
		return err
	}
	if rejected != nil {
		return rejected
	}

	e.notify(upd.ICDID, changed)
	return nil
}

// handleCapabilities processes a "capabilities" event: the raw document is
// kept and its resolved set replaces the previous one wholesale.
func (e *Engine) handleCapabilities(data json.RawMessage) error {
	var upd capabilitiesUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if upd.ICDID == "" {
		return fmt.Errorf("%w: capabilities missing icd_id", ErrMalformedPayload)
	}

	if _, err := e.store.Ensure(upd.ICDID); err != nil {
		return err
	}

	resolved := capability.Resolve(upd.Document)
	changed, err := e.store.Apply(upd.ICDID, func(d *device.Device) []string {
		same := reflect.DeepEqual(d.CapabilitiesDoc, upd.Document)
		d.CapabilitiesDoc = upd.Document
		d.Capabilities = resolved
		d.CapabilitiesUpdatedAt = time.Now().UTC()
		if same {
			return nil
		}
		return []string{"capabilities"}
	})
	if err != nil {
		return err
	}

	e.notify(upd.ICDID, changed)
	return nil
}

// handleInfo processes an "info" event carrying hardware details.
func (e *Engine) handleInfo(data json.RawMessage) error {
	var upd infoUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if upd.ICDID == "" {
		return fmt.Errorf("%w: info missing icd_id", ErrMalformedPayload)
	}

	if _, err := e.store.Ensure(upd.ICDID); err != nil {
		return err
	}

	changed, err := e.store.Apply(upd.ICDID, func(d *device.Device) []string {
		if upd.Info == d.Info {
			return nil
		}
		d.Info = upd.Info
		return []string{"info"}
	})
	if err != nil {
		return err
	}

	e.notify(upd.ICDID, changed)
	return nil
}

func (e *Engine) notify(deviceID string, paths []string) {
	if len(paths) == 0 {
		return
	}

	e.listenerMu.RLock()
	fn := e.listener
	e.listenerMu.RUnlock()

	if fn != nil {
		fn(deviceID, paths)
	}
}
