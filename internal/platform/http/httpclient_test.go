package http

import (
	"net/http"
	"testing"
	"time"
)

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	c := NewHTTPClient(7 * time.Second)

	if c.Timeout != 7*time.Second {
		t.Errorf("expected timeout 7s, got %v", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", c.Transport)
	}
	if tr.MaxIdleConnsPerHost != 4 {
		t.Errorf("expected MaxIdleConnsPerHost 4, got %d", tr.MaxIdleConnsPerHost)
	}
	if tr.Proxy == nil {
		t.Error("expected proxy from environment to be configured")
	}
}
