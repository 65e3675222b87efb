// Package supervisor starts and stops the worker goroutine and tears
// down the resources it held, the Go counterpart of the start_worker /
// stop_worker pair in the original implementation's main.c.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/TplusA/DBusDL/internal/events"
	"github.com/TplusA/DBusDL/internal/fetcher"
	"github.com/TplusA/DBusDL/internal/registry"
	"github.com/TplusA/DBusDL/internal/worker"
	"github.com/TplusA/DBusDL/pkg/logger"
)

// joinTimeout bounds how long Stop waits for the worker goroutine to
// notice Shutdown and return before giving up on joining it.
const joinTimeout = 5 * time.Second

// closer is implemented by fetchers that hold process-wide resources
// (connection pools) needing an explicit teardown step.
type closer interface {
	Close()
}

// Supervisor owns the worker goroutine's lifecycle: exactly one Start,
// exactly one Stop.
type Supervisor struct {
	ch    *events.Channel
	reg   *registry.Registry
	fs    afero.Fs
	fetch fetcher.Fetcher
	log   logger.Logger
	w     *worker.Worker

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// New builds a Supervisor around a freshly constructed Worker wired to
// ch, reg, fetch and fs.
func New(ch *events.Channel, reg *registry.Registry, fetch fetcher.Fetcher, fs afero.Fs, log logger.Logger, fetchOpts fetcher.Options) *Supervisor {
	return &Supervisor{
		ch:    ch,
		reg:   reg,
		fs:    fs,
		fetch: fetch,
		log:   log,
		w:     worker.New(ch, reg, fetch, fs, log, fetchOpts),
		done:  make(chan struct{}),
	}
}

// Start launches the worker's main loop on its own goroutine. Start
// must be called at most once per Supervisor.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		panic("supervisor: Start called twice")
	}
	s.started = true

	go func() {
		s.w.Run()
		close(s.done)
	}()
}

// Stop requests the worker to shut down, waits for it to do so (or for
// joinTimeout to elapse), and tears down fetcher-global state.
//
// The original implementation retries constructing the Shutdown event
// up to 10 times if allocation fails, then detaches without joining.
// Go's queue send cannot fail short of the allocator panicking on
// exhaustion, so there is nothing to retry: sending is unconditional.
// What can genuinely still happen is the worker taking longer than
// expected to notice the event (for instance, stuck inside a
// misbehaving Fetch call); joinTimeout bounds that wait the way the
// retry budget bounded the original's, and Stop logs and detaches
// rather than blocking forever if it's exceeded.
//
// Stop does not drain remaining outbound events; that is the bus
// adapter's responsibility, and any events left in the queue after the
// adapter has stopped are acceptable leakage at shutdown.
func (s *Supervisor) Stop() error {
	s.ch.SendInbound(events.NewShutdown())

	select {
	case <-s.done:
	case <-time.After(joinTimeout):
		s.log.Critical("worker did not terminate within %s, detaching without joining", joinTimeout)
	}

	return s.teardown()
}

func (s *Supervisor) teardown() error {
	var result *multierror.Error

	if c, ok := s.fetch.(closer); ok {
		c.Close()
	}

	tempPath := s.reg.TempFilePath()
	if err := s.fs.Remove(tempPath); err != nil && !errors.Is(err, afero.ErrFileNotFound) && !os.IsNotExist(err) {
		result = multierror.Append(result, fmt.Errorf("removing stray temp file %q: %w", tempPath, err))
	}

	if result != nil {
		return result
	}
	return nil
}
