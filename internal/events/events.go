// Package events implements the two unbounded FIFO queues that connect
// the bus-event-loop goroutine to the worker goroutine, plus the tagged
// event types they carry. It is the Go counterpart of events.c/.h from
// the original implementation: the GAsyncQueue pair becomes a
// mutex+slice queue guarded by a sync.Cond (the blocking-receive
// analogue of g_async_queue_pop / g_async_queue_try_pop), and the
// union-typed EventFromUser/EventToUser structs become two tagged Go
// structs.
//
// Ownership of an Item travels with the event that carries it: once an
// Item is sent across the channel, the sender must not touch it again.
// Go's garbage collector reclaims values that are no longer
// referenced, so there is no free_inbound/free_outbound pair here the
// way the C original needs one — but the *discipline* those functions
// encoded (exactly one owner at a time, Progress borrows, Done owns)
// is still the contract this package's callers must honor, and is
// exercised by the tests in this package and in internal/worker.
package events

import (
	"sync"

	"github.com/TplusA/DBusDL/internal/errcode"
	"github.com/TplusA/DBusDL/internal/registry"
)

// InboundKind tags the variant of an InboundEvent.
type InboundKind int

const (
	// InboundShutdown carries no payload.
	InboundShutdown InboundKind = iota
	// InboundStartDownload owns Item.
	InboundStartDownload
	// InboundCancel carries only ItemID.
	InboundCancel
)

// InboundEvent flows from the bus-event-loop goroutine to the worker.
type InboundEvent struct {
	Kind InboundKind
	// Item is populated (and owned by the event) only when Kind is
	// InboundStartDownload.
	Item *registry.Item
	// ItemID is populated only when Kind is InboundCancel.
	ItemID uint32
}

// OutboundKind tags the variant of an OutboundEvent.
type OutboundKind int

const (
	// OutboundProgress borrows Item for read only.
	OutboundProgress OutboundKind = iota
	// OutboundDone owns Item.
	OutboundDone
)

// OutboundEvent flows from the worker to the bus-event-loop goroutine.
type OutboundEvent struct {
	Kind OutboundKind
	Item *registry.Item
	// Tick is populated only when Kind is OutboundProgress.
	Tick uint32
	// Error is populated only when Kind is OutboundDone.
	Error errcode.Code
}

// NewStartDownload builds an InboundEvent that takes ownership of item.
func NewStartDownload(item *registry.Item) InboundEvent {
	return InboundEvent{Kind: InboundStartDownload, Item: item}
}

// NewCancel builds an InboundEvent requesting cancellation of itemID.
func NewCancel(itemID uint32) InboundEvent {
	return InboundEvent{Kind: InboundCancel, ItemID: itemID}
}

// NewShutdown builds an InboundEvent requesting worker termination.
func NewShutdown() InboundEvent {
	return InboundEvent{Kind: InboundShutdown}
}

// NewProgress builds an OutboundEvent borrowing item for a progress
// report at the given tick.
func NewProgress(item *registry.Item, tick uint32) OutboundEvent {
	return OutboundEvent{Kind: OutboundProgress, Item: item, Tick: tick}
}

// NewDone builds an OutboundEvent that takes ownership of item to
// report the terminal outcome of its transfer.
func NewDone(item *registry.Item, code errcode.Code) OutboundEvent {
	return OutboundEvent{Kind: OutboundDone, Item: item, Error: code}
}

// queue is a generic unbounded FIFO with blocking and non-blocking
// receive, the shape shared by both directions of Channel. Modeled
// after the mutex-protected slice queue in
// _examples/warpdl-warpdl/pkg/warplib/queue.go, extended with a
// sync.Cond so a blocking receiver can park instead of busy-polling.
type queue[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []T
}

func newQueue[T any]() *queue[T] {
	q := &queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue[T]) send(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.cond.Signal()
}

// recv returns the next event. When blocking is false it returns
// (zero, false) immediately if the queue is empty; when blocking is
// true it parks the caller until an event arrives.
func (q *queue[T]) recv(blocking bool) (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if !blocking {
			return v, false
		}
		q.cond.Wait()
	}

	v = q.items[0]
	q.items = q.items[1:]
	return v, true
}

// Channel is the pair of FIFO queues connecting the bus-event-loop
// goroutine (producer of InboundEvent, consumer of OutboundEvent) and
// the worker goroutine (consumer of InboundEvent, producer of
// OutboundEvent). Events sent by a single producer are observed by a
// single consumer in send order; no ordering is guaranteed across the
// two queues.
type Channel struct {
	inbound  *queue[InboundEvent]
	outbound *queue[OutboundEvent]

	wakeMu sync.Mutex
	wake   func()
}

// NewChannel creates an empty, unwired Channel.
func NewChannel() *Channel {
	return &Channel{
		inbound:  newQueue[InboundEvent](),
		outbound: newQueue[OutboundEvent](),
	}
}

// SetWakeCallback registers the function invoked at most once per
// SendOutbound call, after the event has been queued. It is the Go
// analogue of events_init's to_user_queue_notification: the bus
// adapter uses it to schedule a drain of the outbound queue. Passing
// nil disables the notification.
func (c *Channel) SetWakeCallback(fn func()) {
	c.wakeMu.Lock()
	defer c.wakeMu.Unlock()
	c.wake = fn
}

// SendInbound enqueues ev for the worker to observe.
func (c *Channel) SendInbound(ev InboundEvent) {
	c.inbound.send(ev)
}

// RecvInbound dequeues the next InboundEvent, blocking if requested.
func (c *Channel) RecvInbound(blocking bool) (InboundEvent, bool) {
	return c.inbound.recv(blocking)
}

// SendOutbound enqueues ev for the bus adapter to observe, then fires
// the registered wake callback, if any.
func (c *Channel) SendOutbound(ev OutboundEvent) {
	c.outbound.send(ev)

	c.wakeMu.Lock()
	wake := c.wake
	c.wakeMu.Unlock()
	if wake != nil {
		wake()
	}
}

// RecvOutbound dequeues the next OutboundEvent, blocking if requested.
func (c *Channel) RecvOutbound(blocking bool) (OutboundEvent, bool) {
	return c.outbound.recv(blocking)
}
