// Package media adapts the third-party image host's callback API into a
// single-result awaitable operation with explicit cancellation.
//
// The host SDK reports completion through callbacks. Service bridges that to
// a blocking call that honors context cancellation and applies a strict
// end-to-end timeout, so a stuck upload fails fast instead of hanging the
// surrounding create flow.
package media

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Host is the callback-based upload API exposed by the media SDK. Exactly
// one of the callbacks fires per upload. The returned cancel func aborts the
// transfer; after cancellation no callback may fire.
type Host interface {
	Upload(localPath string, onSuccess func(remoteURL string), onError func(err error)) (cancel func())
}

// DefaultTimeout is the end-to-end bound for one upload.
const DefaultTimeout = 30 * time.Second

// Service wraps a Host into an awaitable uploader.
type Service struct {
	host    Host
	timeout time.Duration
	log     *zap.Logger
}

// NewService creates the adapter. timeout <= 0 uses DefaultTimeout.
func NewService(host Host, timeout time.Duration, log *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{host: host, timeout: timeout, log: log}
}

type uploadResult struct {
	url string
	err error
}

// Upload sends a local image to the host and returns its remote URL. The
// call returns early when ctx is cancelled or the timeout elapses, aborting
// the underlying transfer.
func (s *Service) Upload(ctx context.Context, localPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Buffered so a late callback never blocks the host's callback thread.
	done := make(chan uploadResult, 1)

	abort := s.host.Upload(localPath,
		func(remoteURL string) {
			done <- uploadResult{url: remoteURL}
		},
		func(err error) {
			done <- uploadResult{err: err}
		},
	)

	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("upload %s: %w", localPath, res.err)
		}
		s.log.Debug("image uploaded",
			zap.String("local", localPath), zap.String("url", res.url))
		return res.url, nil
	case <-ctx.Done():
		if abort != nil {
			abort()
		}
		return "", fmt.Errorf("upload %s: %w", localPath, ctx.Err())
	}
}
