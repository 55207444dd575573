package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid input: missing field"), false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped explicit", fmt.Errorf("call: %w", NewTransientError(errors.New("slow down"), 429)), true},
		{"conn reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"deadline", fmt.Errorf("generate: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"broken pipe text", errors.New("write: broken pipe"), true},
		{"tls text", errors.New("net/http: TLS handshake timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to not be transient", code)
		}
	}
}

func TestHTTPError(t *testing.T) {
	err := HTTPError("wikipedia", 503, []byte("  maintenance  "))
	if !IsTransient(err) {
		t.Fatalf("503 should be transient: %v", err)
	}
	if !strings.Contains(err.Error(), "wikipedia: unexpected status 503: maintenance") {
		t.Errorf("unexpected message %q", err.Error())
	}

	err = HTTPError("commons", 404, []byte(strings.Repeat("x", 500)))
	if IsTransient(err) {
		t.Error("404 should not be transient")
	}
	if len(err.Error()) > 260 {
		t.Errorf("body should be truncated, got %d chars", len(err.Error()))
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(HTTPError("cagematch", 429, nil)) {
		t.Error("429 should be rate limited")
	}
	if IsRateLimited(HTTPError("cagematch", 500, nil)) {
		t.Error("500 should not be rate limited")
	}
	if IsRateLimited(errors.New("boom")) {
		t.Error("plain error should not be rate limited")
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	if !errors.Is(te, inner) {
		t.Error("TransientError should unwrap to the inner error")
	}
	if te.Error() != "root cause" {
		t.Errorf("expected inner message, got %q", te.Error())
	}
}
