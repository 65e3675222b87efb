package busadapter

import (
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/afero"

	"github.com/TplusA/DBusDL/internal/errcode"
	"github.com/TplusA/DBusDL/internal/events"
	"github.com/TplusA/DBusDL/internal/registry"
	"github.com/TplusA/DBusDL/pkg/logger"
)

type emittedSignal struct {
	path   dbus.ObjectPath
	name   string
	values []interface{}
}

// fakeConn is a Conn test double recording Export/RequestName/Emit
// calls instead of touching a real session bus.
type fakeConn struct {
	mu               sync.Mutex
	exportedPath     dbus.ObjectPath
	exportedIface    string
	requestedName    string
	requestNameReply dbus.RequestNameReply
	signals          []emittedSignal
	closed           bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{requestNameReply: dbus.RequestNameReplyPrimaryOwner}
}

func (f *fakeConn) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	f.exportedPath = path
	f.exportedIface = iface
	return nil
}

func (f *fakeConn) RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error) {
	f.requestedName = name
	return f.requestNameReply, nil
}

func (f *fakeConn) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, emittedSignal{path: path, name: name, values: values})
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func (f *fakeConn) snapshot() []emittedSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emittedSignal, len(f.signals))
	copy(out, f.signals)
	return out
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeConn, *registry.Registry, *events.Channel) {
	t.Helper()
	fs := afero.NewMemMapFs()
	reg := registry.New(fs, "/downloads", true, logger.NewNopLogger())
	ch := events.NewChannel()
	conn := newFakeConn()
	a := New(conn, reg, ch, logger.NewNopLogger())
	return a, conn, reg, ch
}

func TestExportPublishesObjectAndRequestsName(t *testing.T) {
	a, conn, _, _ := newTestAdapter(t)
	if err := a.Export(); err != nil {
		t.Fatalf("Export() = %v", err)
	}
	if conn.exportedPath != objectPath || conn.exportedIface != interfaceName {
		t.Errorf("exported %s on %s, want %s on %s", conn.exportedIface, conn.exportedPath, interfaceName, objectPath)
	}
	if conn.requestedName != busName {
		t.Errorf("requested name %q, want %q", conn.requestedName, busName)
	}
}

func TestExportFailsWhenNameNotOwned(t *testing.T) {
	a, conn, _, _ := newTestAdapter(t)
	conn.requestNameReply = dbus.RequestNameReplyExists
	if err := a.Export(); err == nil {
		t.Fatal("Export() = nil, want an error when the name is already owned")
	}
}

func TestDownloadAllocatesAndQueuesStartDownload(t *testing.T) {
	a, _, _, ch := newTestAdapter(t)

	id, derr := a.Download("http://example.test/a", 100)
	if derr != nil {
		t.Fatalf("Download() error = %v", derr)
	}
	if id == 0 {
		t.Fatal("Download() returned id 0")
	}

	ev, ok := ch.RecvInbound(false)
	if !ok || ev.Kind != events.InboundStartDownload || ev.Item.ID != id {
		t.Fatalf("inbound event = %+v, ok=%v", ev, ok)
	}
}

func TestDownloadRejectsEmptyURL(t *testing.T) {
	a, _, _, _ := newTestAdapter(t)
	if _, derr := a.Download("", 10); derr == nil {
		t.Fatal("Download(\"\") = nil error, want a bus error")
	}
}

func TestCancelRejectsZeroID(t *testing.T) {
	a, _, _, _ := newTestAdapter(t)
	if derr := a.Cancel(0); derr == nil {
		t.Fatal("Cancel(0) = nil error, want a bus error")
	}
}

func TestCancelQueuesCancelEvent(t *testing.T) {
	a, _, _, ch := newTestAdapter(t)
	if derr := a.Cancel(42); derr != nil {
		t.Fatalf("Cancel() error = %v", derr)
	}
	ev, ok := ch.RecvInbound(false)
	if !ok || ev.Kind != events.InboundCancel || ev.ItemID != 42 {
		t.Fatalf("inbound event = %+v, ok=%v", ev, ok)
	}
}

func TestRunDrainsOutboundEventsIntoSignals(t *testing.T) {
	a, conn, _, ch := newTestAdapter(t)

	runDone := make(chan struct{})
	go func() {
		a.Run()
		close(runDone)
	}()

	item := &registry.Item{ID: 5, TotalTicks: 10, DestFilePath: "/downloads/0000000005.dbusdl"}
	ch.SendOutbound(events.NewProgress(item, 3))
	ch.SendOutbound(events.NewDone(item, errcode.Ok))

	deadline := time.After(2 * time.Second)
	for {
		if len(conn.snapshot()) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for signals to be emitted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	signals := conn.snapshot()
	if signals[0].name != interfaceName+".Progress" {
		t.Errorf("first signal = %s, want Progress", signals[0].name)
	}
	if signals[1].name != interfaceName+".Done" {
		t.Errorf("second signal = %s, want Done", signals[1].name)
	}

	a.Stop()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestDoneSignalCarriesEmptyPathOnError(t *testing.T) {
	a, conn, _, ch := newTestAdapter(t)
	go a.Run()
	defer a.Stop()

	item := &registry.Item{ID: 6, TotalTicks: 10, DestFilePath: "/downloads/0000000006.dbusdl"}
	ch.SendOutbound(events.NewDone(item, errcode.NetIO))

	deadline := time.After(2 * time.Second)
	for {
		if len(conn.snapshot()) >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the Done signal")
		case <-time.After(5 * time.Millisecond):
		}
	}

	signal := conn.snapshot()[0]
	if path := signal.values[2].(string); path != "" {
		t.Errorf("path = %q, want empty on error", path)
	}
}
