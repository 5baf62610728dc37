package media

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedHost drives the callback contract from the test.
type scriptedHost struct {
	mu        sync.Mutex
	url       string
	err       error
	delay     time.Duration
	cancelled bool
}

func (h *scriptedHost) Upload(localPath string, onSuccess func(string), onError func(error)) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(h.delay):
		case <-done:
			return
		}
		h.mu.Lock()
		url, err := h.url, h.err
		h.mu.Unlock()
		if err != nil {
			onError(err)
			return
		}
		onSuccess(url)
	}()
	return func() {
		h.mu.Lock()
		h.cancelled = true
		h.mu.Unlock()
		close(done)
	}
}

func (h *scriptedHost) wasCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func TestUploadSuccess(t *testing.T) {
	host := &scriptedHost{url: "https://cdn.example.com/a.jpg"}
	svc := NewService(host, time.Second, nil)

	url, err := svc.Upload(context.Background(), "/tmp/a.jpg")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if url != "https://cdn.example.com/a.jpg" {
		t.Errorf("URL = %q", url)
	}
}

func TestUploadError(t *testing.T) {
	hostErr := errors.New("quota exceeded")
	host := &scriptedHost{err: hostErr}
	svc := NewService(host, time.Second, nil)

	_, err := svc.Upload(context.Background(), "/tmp/a.jpg")
	if !errors.Is(err, hostErr) {
		t.Errorf("Expected wrapped host error, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "/tmp/a.jpg") {
		t.Errorf("Error should name the file: %v", err)
	}
}

func TestUploadTimeoutAborts(t *testing.T) {
	host := &scriptedHost{url: "late", delay: time.Hour}
	svc := NewService(host, 20*time.Millisecond, nil)

	_, err := svc.Upload(context.Background(), "/tmp/a.jpg")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if !host.wasCancelled() {
		t.Error("Timed-out upload must abort the underlying transfer")
	}
}

func TestUploadHonorsCallerCancel(t *testing.T) {
	host := &scriptedHost{url: "late", delay: time.Hour}
	svc := NewService(host, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := svc.Upload(ctx, "/tmp/a.jpg")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if !host.wasCancelled() {
		t.Error("Cancelled upload must abort the underlying transfer")
	}
}

func TestZeroTimeoutUsesDefault(t *testing.T) {
	svc := NewService(&scriptedHost{url: "u"}, 0, nil)
	if svc.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", svc.timeout, DefaultTimeout)
	}
}
