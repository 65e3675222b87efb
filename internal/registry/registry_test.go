package registry

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/TplusA/DBusDL/pkg/logger"
)

func TestAllocateIDsAreSequentialNonZero(t *testing.T) {
	r := New(afero.NewMemMapFs(), "/downloads", false, logger.NewNopLogger())

	first := r.Allocate("http://example.test/a", 100)
	second := r.Allocate("http://example.test/b", 50)

	if first.ID == 0 || second.ID == 0 {
		t.Fatalf("allocated ids must be non-zero, got %d and %d", first.ID, second.ID)
	}
	if second.ID != first.ID+1 {
		t.Errorf("ids should be sequential, got %d then %d", first.ID, second.ID)
	}
}

func TestAllocateSkipsZeroOnWraparound(t *testing.T) {
	r := New(afero.NewMemMapFs(), "/downloads", false, logger.NewNopLogger())
	r.nextFreeID = 0xFFFFFFFF

	last := r.Allocate("http://example.test/a", 1)
	wrapped := r.Allocate("http://example.test/b", 1)

	if last.ID != 0xFFFFFFFF {
		t.Errorf("expected last pre-wrap id 0xFFFFFFFF, got %#x", last.ID)
	}
	if wrapped.ID == 0 {
		t.Error("id 0 must never be issued")
	}
	if wrapped.ID != 1 {
		t.Errorf("expected wraparound to land on 1, got %d", wrapped.ID)
	}
}

func TestDestFilePathIsDeterministicAndZeroPadded(t *testing.T) {
	r := New(afero.NewMemMapFs(), "/downloads", false, logger.NewNopLogger())
	item := r.Allocate("http://example.test/a", 1)

	want := "/downloads/0000000001.dbusdl"
	if item.DestFilePath != want {
		t.Errorf("DestFilePath = %q, want %q", item.DestFilePath, want)
	}
}

func TestTempFilePathIsReservedForIDZero(t *testing.T) {
	r := New(afero.NewMemMapFs(), "/downloads", false, logger.NewNopLogger())

	want := "/downloads/0000000000.dbusdl"
	if got := r.TempFilePath(); got != want {
		t.Errorf("TempFilePath() = %q, want %q", got, want)
	}

	for i := 0; i < 3; i++ {
		if item := r.Allocate("http://example.test/x", 1); item.ID == 0 {
			t.Fatalf("Allocate() issued reserved id 0")
		}
	}
}

func TestNewCreatesDirectoryWhenRequested(t *testing.T) {
	fs := afero.NewMemMapFs()
	New(fs, "/downloads", true, logger.NewNopLogger())

	info, err := fs.Stat("/downloads")
	if err != nil {
		t.Fatalf("Stat(/downloads) = %v, want directory to exist", err)
	}
	if !info.IsDir() {
		t.Error("/downloads should be a directory")
	}
}

func TestNewLogsButDoesNotFailOnMkdirError(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	log := logger.NewMockLogger()

	r := New(fs, "/downloads", true, log)

	if r == nil {
		t.Fatal("New() returned nil")
	}
	if len(log.ErrorCalls) == 0 {
		t.Error("expected mkdir failure to be logged at error level")
	}
}
