package errcode

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"os"

	"github.com/TplusA/DBusDL/internal/fetcher"
)

// Classify maps a transport failure returned by the fetcher into the
// pinned error taxonomy, mirroring the CURLcode switch in
// xferthread.c:map_curl_error_to_list_error from the original
// implementation. A nil error classifies as Ok.
func Classify(err error) Code {
	if err == nil {
		return Ok
	}

	if errors.Is(err, fetcher.ErrAbortedByCallback) {
		return Interrupted
	}

	var statusErr *fetcher.StatusError
	if errors.As(err, &statusErr) {
		return Protocol
	}
	if errors.Is(err, fetcher.ErrTooManyRedirects) {
		return Protocol
	}

	var tlsErr tls.RecordHeaderError
	if errors.As(err, &tlsErr) {
		return Authentication
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return Authentication
	}
	var x509Err x509.CertificateInvalidError
	if errors.As(err, &x509Err) {
		return Authentication
	}
	var x509UnknownAuth x509.UnknownAuthorityError
	if errors.As(err, &x509UnknownAuth) {
		return Authentication
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return PhysicalMediaIO
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NetIO
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NetIO
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NetIO
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NetIO
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Classify(urlErr.Unwrap())
	}

	return Internal
}
