package runtime

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/internal/idtable"
	"github.com/wippyai/fibre-go/native"
	"github.com/wippyai/fibre-go/signal"
)

// FoundFunc receives objects reported by a discovery session. It runs on its
// own goroutine, so it may block and call into the object.
type FoundFunc func(obj *Object) error

type discovery struct {
	id      idtable.ID
	handle  native.Handle
	path    string
	onFound FoundFunc
	cancel  *signal.Event
	sub     signal.Subscription
}

func (d *discovery) detach() {
	if d.cancel != nil {
		d.cancel.Unsubscribe(d.sub)
	}
}

// StartDiscovery begins searching path. Setting cancel stops the session.
func (c *Client) StartDiscovery(path string, onFound FoundFunc, cancel *signal.Event) error {
	if !c.loop.InLoop() {
		var err error
		if perr := c.loop.Await(func() { err = c.StartDiscovery(path, onFound, cancel) }); perr != nil {
			return errors.Wrap(errors.PhaseDiscovery, errors.KindObjectLost, perr, "reactor stopped")
		}
		return err
	}
	if c.closed {
		return errors.ObjectLost(errors.PhaseDiscovery)
	}

	d := &discovery{path: path, onFound: onFound, cancel: cancel}
	d.id = c.discoveries.Insert(d)
	c.metrics.setDiscoveries(c.discoveries.Len())

	if cancel != nil {
		// Stop runs as a separate reactor task, after d.handle is assigned
		// even when the token is already set.
		d.sub = cancel.Subscribe(func() {
			err := c.loop.Post(func() { c.stopDiscovery(d) })
			if err != nil {
				c.log.Debug("discovery cancelled after reactor stop", zap.String("path", path))
			}
		})
	}

	c.log.Info("discovery started", zap.String("path", path), zap.Uint64("session", uint64(d.id)))
	d.handle = c.engine.StartDiscovery(path, c, uint64(d.id))
	return nil
}

func (c *Client) stopDiscovery(d *discovery) {
	if c.closed {
		return
	}
	if cur, ok := c.discoveries.Get(d.id); !ok || cur != d {
		return
	}
	c.engine.StopDiscovery(d.handle)
}

// OnFoundObject implements native.DiscoveryHandler.
func (c *Client) OnFoundObject(ctx uint64, obj native.Handle) {
	d, ok := c.discoveries.Get(idtable.ID(ctx))
	if !ok {
		c.log.Warn("object found by unknown discovery", zap.Uint64("session", ctx))
		return
	}
	o, ok := c.objects[obj]
	if !ok {
		c.log.Error("discovered object was never constructed", zap.Uint64("object", uint64(obj)))
		return
	}
	go c.deliver(d, o)
}

func (c *Client) deliver(d *discovery, o *Object) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("discovery callback panicked",
				zap.String("path", d.path),
				zap.Any("panic", r))
		}
	}()
	if err := d.onFound(o); err != nil {
		c.log.Error("discovery callback failed",
			zap.String("path", d.path),
			zap.Stringer("object", o),
			zap.Error(err))
	}
}

// OnDiscoveryStopped implements native.DiscoveryHandler.
func (c *Client) OnDiscoveryStopped(ctx uint64, status native.Status) {
	d, ok := c.discoveries.Remove(idtable.ID(ctx))
	if !ok {
		c.log.Warn("stop for unknown discovery", zap.Uint64("session", ctx))
		return
	}
	d.detach()
	c.metrics.setDiscoveries(c.discoveries.Len())

	switch status {
	case native.StatusOK, native.StatusCancelled:
		c.log.Info("discovery stopped", zap.String("path", d.path), zap.Stringer("status", status))
	default:
		c.log.Warn("discovery stopped", zap.String("path", d.path), zap.Error(statusError(errors.PhaseDiscovery, status)))
	}
}

// UnknownSerialNumber is reported for objects without a serial_number.
const UnknownSerialNumber = "[unknown serial number]"

// SerialNumber is the default IdentityFunc. It reads the object's
// serial_number property and renders integers as upper-case hex.
func SerialNumber(ctx context.Context, obj *Object) (string, error) {
	v, err := obj.Get(ctx, "serial_number")
	if stderrors.Is(err, errors.ErrNotFound) {
		return UnknownSerialNumber, nil
	}
	if err != nil {
		return "", err
	}
	switch n := v.(type) {
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		return fmt.Sprintf("%X", n), nil
	default:
		return fmt.Sprint(v), nil
	}
}
