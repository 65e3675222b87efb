// Package worker implements the single background executor that
// drives one download at a time: the Go counterpart of xferthread.c
// from the original implementation. It consumes InboundEvent values,
// performs the transfer through a fetcher.Fetcher, and emits
// OutboundEvent progress/done notifications, reacting to cancel,
// superseding start, and shutdown requests that arrive mid-transfer.
package worker

import (
	"context"
	"errors"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/TplusA/DBusDL/internal/errcode"
	"github.com/TplusA/DBusDL/internal/events"
	"github.com/TplusA/DBusDL/internal/fetcher"
	"github.com/TplusA/DBusDL/internal/registry"
	"github.com/TplusA/DBusDL/pkg/logger"
)

// sentinelTick is the initial "previously sent" tick value: larger
// than any legal tick, so even a first tick of 0 is emitted. Matches
// UINT32_MAX in the original implementation's ProgressCallbackData.
const sentinelTick uint32 = 0xFFFFFFFF

// Worker is the single-threaded download executor. It must be run from
// exactly one goroutine (see Run); nothing in Worker is safe to call
// concurrently from elsewhere.
type Worker struct {
	ch       *events.Channel
	reg      *registry.Registry
	fetch    fetcher.Fetcher
	fs       afero.Fs
	log      logger.Logger
	fetchOps fetcher.Options
}

// New creates a Worker wired to ch for events, reg for the temp file
// path, fs for filesystem access, and fetch for performing
// transfers. fetchOpts is applied to every Fetch call except
// OnProgress, which Worker always overrides with its own cancellation
// logic.
func New(ch *events.Channel, reg *registry.Registry, fetch fetcher.Fetcher, fs afero.Fs, log logger.Logger, fetchOpts fetcher.Options) *Worker {
	return &Worker{
		ch:       ch,
		reg:      reg,
		fetch:    fetch,
		fs:       fs,
		log:      log,
		fetchOps: fetchOpts,
	}
}

// Run executes the worker's main loop until a Shutdown event is
// observed or carried forward. It is meant to be run on its own
// goroutine; Run returns once the worker has terminated.
func (w *Worker) Run() {
	var pending *events.InboundEvent

	for {
		var ev events.InboundEvent
		if pending != nil {
			ev = *pending
			pending = nil
		} else {
			var ok bool
			ev, ok = w.ch.RecvInbound(true)
			if !ok {
				continue
			}
		}

		switch ev.Kind {
		case events.InboundShutdown:
			return

		case events.InboundStartDownload:
			pending = w.download(ev.Item)

		case events.InboundCancel:
			w.log.Warning("spurious cancel for item %d, no transfer in flight", ev.ItemID)
		}
	}
}

// download takes ownership of item and attempts to transfer it,
// regularly checking the inbound queue for a request to interrupt.
// It returns the superseding StartDownload or Shutdown that caused
// interruption (to be carried into the next loop iteration), or nil if
// the download ran to completion or was stopped by a matching Cancel.
func (w *Worker) download(item *registry.Item) *events.InboundEvent {
	w.log.Info("start downloading URL %q, ID %d", item.URL, item.ID)

	tempPath := w.reg.TempFilePath()
	file, err := w.fs.Create(tempPath)
	if err != nil {
		w.log.Error("failed creating temporary file %q: %v", tempPath, err)
		w.sendDone(item, errcode.PhysicalMediaIO)
		return nil
	}

	state := &progressState{prevTick: sentinelTick}
	opts := w.fetchOps
	opts.OnProgress = w.makeProgressCallback(item, state)

	fetchErr := w.fetch.Fetch(context.Background(), item.URL, file, opts)
	_ = file.Close()

	code, carried := w.finish(item, fetchErr, state)
	w.sendDone(item, code)
	return carried
}

// progressState carries the mutable bookkeeping a single download's
// progress callback needs across invocations: the last tick reported,
// the cumulative bytes seen (for human-readable logging only), and the
// event (if any) that asked the transfer to abort.
type progressState struct {
	prevTick   uint32
	bytesNow   int64
	bytesTotal int64
	carried    *events.InboundEvent
}

// makeProgressCallback builds the fetcher.ProgressFunc for item. On
// each invocation it first drains one inbound event non-blockingly;
// if that event demands cancellation, it returns true so the fetcher
// aborts, recording a superseding StartDownload or a Shutdown in
// state.carried (a matching Cancel is not recorded). Otherwise it
// computes and, if warranted, emits the current progress tick.
func (w *Worker) makeProgressCallback(item *registry.Item, state *progressState) fetcher.ProgressFunc {
	return func(bytesNow, bytesTotal int64) bool {
		if ev, ok := w.ch.RecvInbound(false); ok {
			if mustCancel(ev, item.ID) {
				// A matching Cancel is consumed here; only a superseding
				// StartDownload or a Shutdown is carried forward.
				if ev.Kind != events.InboundCancel {
					state.carried = &ev
				}
				return true
			}
			// A Cancel for some other, not-currently-executing item:
			// discard it silently, per the cancel semantics in
			// spec.md §4.3.
		}

		state.bytesNow, state.bytesTotal = bytesNow, bytesTotal

		tick := computeTick(item.TotalTicks, bytesNow, bytesTotal)
		if tick <= item.TotalTicks && (tick > state.prevTick || state.prevTick == sentinelTick) {
			w.sendProgress(item, tick, bytesNow, bytesTotal)
			state.prevTick = tick
		}

		return false
	}
}

// mustCancel implements the cancel predicate from spec.md §4.3: a
// Cancel matching the item currently executing, a superseding
// StartDownload, or a Shutdown all demand abort; a Cancel for any
// other id does not.
func mustCancel(ev events.InboundEvent, currentItemID uint32) bool {
	switch ev.Kind {
	case events.InboundStartDownload, events.InboundShutdown:
		return true
	case events.InboundCancel:
		return ev.ItemID == currentItemID
	default:
		return false
	}
}

// computeTick maps cumulative bytes into [0, totalTicks], returning 0
// when the total size is unknown (bytesTotal <= 0).
func computeTick(totalTicks uint32, bytesNow, bytesTotal int64) uint32 {
	if bytesTotal <= 0 {
		return 0
	}
	return uint32((uint64(totalTicks) * uint64(bytesNow)) / uint64(bytesTotal))
}

// finish interprets the fetcher's outcome, performs the atomic publish
// or temp-file cleanup it implies, and returns the Done error code plus
// any carried-forward event recorded by the progress callback.
func (w *Worker) finish(item *registry.Item, fetchErr error, state *progressState) (errcode.Code, *events.InboundEvent) {
	if fetchErr == nil {
		if state.prevTick != item.TotalTicks {
			w.sendProgress(item, item.TotalTicks, state.bytesNow, state.bytesTotal)
		}

		tempPath := w.reg.TempFilePath()
		if err := w.fs.Rename(tempPath, item.DestFilePath); err != nil {
			w.log.Error("failed publishing %q as %q: %v", tempPath, item.DestFilePath, err)
			w.removeTemp()
			return errcode.PhysicalMediaIO, state.carried
		}

		w.log.Info("finished downloading %q to %q", item.URL, item.DestFilePath)
		return errcode.Ok, state.carried
	}

	if errors.Is(fetchErr, fetcher.ErrAbortedByCallback) {
		w.log.Info("download canceled as requested (item %d)", item.ID)
		w.removeTemp()
		return errcode.Interrupted, state.carried
	}

	w.log.Error("failed downloading %q: %v", item.URL, fetchErr)
	w.removeTemp()
	return errcode.Classify(fetchErr), state.carried
}

func (w *Worker) removeTemp() {
	tempPath := w.reg.TempFilePath()
	if err := w.fs.Remove(tempPath); err != nil && !errors.Is(err, afero.ErrFileNotFound) {
		w.log.Error("failed deleting temporary file %q: %v", tempPath, err)
	}
}

func (w *Worker) sendProgress(item *registry.Item, tick uint32, bytesNow, bytesTotal int64) {
	if bytesTotal > 0 {
		w.log.Info("download progress %d/%d (%s / %s)", tick, item.TotalTicks,
			humanize.Bytes(uint64(bytesNow)), humanize.Bytes(uint64(bytesTotal)))
	} else {
		w.log.Info("download progress %d/%d (%s)", tick, item.TotalTicks, humanize.Bytes(uint64(bytesNow)))
	}
	w.ch.SendOutbound(events.NewProgress(item, tick))
}

func (w *Worker) sendDone(item *registry.Item, code errcode.Code) {
	w.ch.SendOutbound(events.NewDone(item, code))
}
