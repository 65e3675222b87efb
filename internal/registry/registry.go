// Package registry allocates transfer items and the filesystem paths
// they are written to and published under. It is the Go counterpart of
// xferitem.c/.h from the original implementation: a single-threaded
// allocator used only from the bus-event-loop goroutine (see spec.md
// §5), plus the Item value type that flows through the event channel.
package registry

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/TplusA/DBusDL/pkg/logger"
)

// Item is a single queued download: its id, URL, progress scale, and
// destination path. Once allocated, none of its fields change; it is
// handed off between goroutines via channels rather than shared and
// mutated, so no synchronization is needed on the value itself.
type Item struct {
	// ID is unique and non-zero for the lifetime of the process.
	ID uint32
	// TotalTicks is the caller-chosen progress granularity.
	TotalTicks uint32
	// URL is the source to fetch.
	URL string
	// DestFilePath is the final path this item's bytes are published
	// to, deterministic in (download dir, ID).
	DestFilePath string
}

// destFileNameWidth is the zero-padded decimal width of published file
// names: ten digits, wide enough for any uint32 and lexicographically
// sortable.
const destFileNameWidth = 10

const fileSuffix = ".dbusdl"

// Registry allocates Items and owns the two path-construction facts a
// download needs: the destination directory and the singleton temp
// file shared by sequential downloads (item ID 0 is reserved for it
// and never issued to a real transfer).
type Registry struct {
	fs           afero.Fs
	downloadDir  string
	tempFilePath string
	nextFreeID   uint32
}

// New creates a Registry rooted at downloadDir. If createDir is true,
// the directory is created with mode 0770; failure to create it is
// logged but does not fail New, matching xferitem_init's behavior of
// logging at error level and continuing (the directory may already
// exist, or may be created out-of-band before the first download).
func New(fs afero.Fs, downloadDir string, createDir bool, log logger.Logger) *Registry {
	r := &Registry{
		fs:           fs,
		downloadDir:  downloadDir,
		tempFilePath: buildPath(downloadDir, 0),
		nextFreeID:   1,
	}

	if createDir {
		if err := fs.MkdirAll(downloadDir, 0770); err != nil {
			log.Error("failed creating directory %q: %v", downloadDir, err)
		}
	}

	return r
}

func buildPath(dir string, id uint32) string {
	return filepath.Join(dir, fmt.Sprintf("%0*d%s", destFileNameWidth, id, fileSuffix))
}

// nextID returns the next free id, skipping 0 on wraparound so that id
// 0 is never issued to a real item (it stays reserved for the temp
// file name).
func (r *Registry) nextID() uint32 {
	id := r.nextFreeID
	r.nextFreeID++
	if r.nextFreeID == 0 {
		r.nextFreeID++
	}
	return id
}

// Allocate issues a fresh Item for url with the given progress
// granularity. Unlike the C original there is no allocation failure
// path to report: Go's allocator does not return nil on exhaustion, it
// panics, so Allocate always succeeds.
func (r *Registry) Allocate(url string, ticks uint32) *Item {
	id := r.nextID()
	return &Item{
		ID:           id,
		TotalTicks:   ticks,
		URL:          url,
		DestFilePath: buildPath(r.downloadDir, id),
	}
}

// TempFilePath returns the cached scratch file path shared by every
// sequential download.
func (r *Registry) TempFilePath() string {
	return r.tempFilePath
}

// DownloadDir returns the directory new items are published into.
func (r *Registry) DownloadDir() string {
	return r.downloadDir
}
