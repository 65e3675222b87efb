package errcode

import (
	"errors"
	"net"
	"os"
	"testing"

	"github.com/TplusA/DBusDL/internal/fetcher"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil is Ok", nil, Ok},
		{"aborted by callback", fetcher.ErrAbortedByCallback, Interrupted},
		{"abort text without wrapping", errors.New("wrap: " + fetcher.ErrAbortedByCallback.Error()), Internal},
		{"status error", &fetcher.StatusError{StatusCode: 404, Status: "404 Not Found"}, Protocol},
		{"too many redirects", fetcher.ErrTooManyRedirects, Protocol},
		{"path error", &os.PathError{Op: "open", Path: "/tmp/x", Err: os.ErrPermission}, PhysicalMediaIO},
		{"dns error", &net.DNSError{Err: "no such host", Name: "example.invalid"}, NetIO},
		{"generic", errors.New("mystery failure"), Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCodeString(t *testing.T) {
	if Ok.String() != "Ok" {
		t.Errorf("Ok.String() = %q", Ok.String())
	}
	if Code(99).String() != "Unknown" {
		t.Errorf("Code(99).String() = %q", Code(99).String())
	}
}
