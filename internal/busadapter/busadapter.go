// Package busadapter exports the daemon's D-Bus surface: the
// de.tahifi.FileTransfer interface at /de/tahifi/DBusDL under the
// well-known name de.tahifi.DBusDL. It is the only component that
// touches godbus/dbus/v5 directly, translating Download/Cancel method
// calls into events.InboundEvent values and draining the outbound
// queue into Progress/Done signals — the bus binding layer the
// distilled spec names but leaves external to the core.
package busadapter

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/TplusA/DBusDL/internal/errcode"
	"github.com/TplusA/DBusDL/internal/events"
	"github.com/TplusA/DBusDL/internal/registry"
	"github.com/TplusA/DBusDL/pkg/logger"
)

const (
	busName       = "de.tahifi.DBusDL"
	objectPath    = dbus.ObjectPath("/de/tahifi/DBusDL")
	interfaceName = "de.tahifi.FileTransfer"
)

// Conn is the subset of *dbus.Conn the adapter depends on, narrowed so
// tests can exercise Export/drain logic against a fake bus.
type Conn interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
	Close() error
}

var _ Conn = (*dbus.Conn)(nil)

// Adapter owns the bus connection and the registry/channel pair it
// bridges to bus calls and signals.
type Adapter struct {
	conn Conn
	reg  *registry.Registry
	ch   *events.Channel
	log  logger.Logger

	wake chan struct{}
	stop chan struct{}
}

// New builds an unexported Adapter. Call Export before Run.
func New(conn Conn, reg *registry.Registry, ch *events.Channel, log logger.Logger) *Adapter {
	a := &Adapter{
		conn: conn,
		reg:  reg,
		ch:   ch,
		log:  log,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	ch.SetWakeCallback(a.scheduleDrain)
	return a
}

// Export publishes the FileTransfer object and requests the
// well-known bus name. Per spec.md §7, failures here are fatal at
// startup.
func (a *Adapter) Export() error {
	if err := a.conn.Export(a, objectPath, interfaceName); err != nil {
		return fmt.Errorf("busadapter: exporting %s: %w", interfaceName, err)
	}

	reply, err := a.conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("busadapter: requesting name %s: %w", busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("busadapter: name %s already owned (reply %v)", busName, reply)
	}
	return nil
}

// Download is the exported de.tahifi.FileTransfer.Download method: it
// allocates an item and queues a StartDownload event, replying
// synchronously with the new item's id.
func (a *Adapter) Download(url string, ticks uint32) (uint32, *dbus.Error) {
	if url == "" {
		return 0, dbus.MakeFailedError(fmt.Errorf("url must not be empty"))
	}

	item := a.reg.Allocate(url, ticks)
	a.log.Info("queued download of %q as item %d", url, item.ID)
	a.ch.SendInbound(events.NewStartDownload(item))
	return item.ID, nil
}

// Cancel is the exported de.tahifi.FileTransfer.Cancel method: it
// queues a Cancel event for itemID. A Cancel for an item that is not
// currently executing is silently discarded by the worker, not here.
func (a *Adapter) Cancel(itemID uint32) *dbus.Error {
	if itemID == 0 {
		return dbus.MakeFailedError(fmt.Errorf("item_id must not be 0"))
	}

	a.ch.SendInbound(events.NewCancel(itemID))
	return nil
}

// scheduleDrain is the events.Channel wake callback: it requests a
// drain without blocking the sender (the worker goroutine) even if a
// drain is already pending.
func (a *Adapter) scheduleDrain() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Run drives the bus event loop: it drains any outbound events queued
// before Run started, then waits for wake notifications (or Stop)
// until told to stop. Run is meant to be called from the goroutine
// that owns the bus connection; it returns once Stop is called.
func (a *Adapter) Run() {
	a.drain()
	for {
		select {
		case <-a.stop:
			return
		case <-a.wake:
			a.drain()
		}
	}
}

// Stop asks Run to return. Safe to call once.
func (a *Adapter) Stop() {
	close(a.stop)
}

// drain re-emits every currently queued OutboundEvent as a bus signal.
func (a *Adapter) drain() {
	for {
		ev, ok := a.ch.RecvOutbound(false)
		if !ok {
			return
		}

		switch ev.Kind {
		case events.OutboundProgress:
			if err := a.conn.Emit(objectPath, interfaceName+".Progress", ev.Item.ID, ev.Tick, ev.Item.TotalTicks); err != nil {
				a.log.Error("failed emitting Progress signal for item %d: %v", ev.Item.ID, err)
			}

		case events.OutboundDone:
			path := ev.Item.DestFilePath
			if ev.Error != errcode.Ok {
				path = ""
			}
			if err := a.conn.Emit(objectPath, interfaceName+".Done", ev.Item.ID, uint32(ev.Error), path); err != nil {
				a.log.Error("failed emitting Done signal for item %d: %v", ev.Item.ID, err)
			}
		}
	}
}

// Close closes the underlying bus connection.
func (a *Adapter) Close() error {
	return a.conn.Close()
}
