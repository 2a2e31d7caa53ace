// Package ocr acquires line-oriented text from images through remote OCR
// providers.
package ocr

import (
	"context"
	"time"
)

// Reader is the asynchronous submit-then-poll contract of an OCR provider
type Reader interface {
	// Submit sends the image for analysis and returns a handle to the operation
	Submit(ctx context.Context, img Image) (Handle, error)
	// Poll waits until the operation is terminal and returns the succeeded document
	Poll(ctx context.Context, handle Handle) (*Document, error)
}

// Analyzer turns an image into a succeeded result document
type Analyzer interface {
	// Analyze runs a full OCR pass over the image
	Analyze(ctx context.Context, img Image) (*Document, error)
	// Name identifies the provider in logs and stored analyses
	Name() string
	// Close releases provider resources
	Close() error
}

// DefaultPollInterval is the wait between status queries of a running operation
const DefaultPollInterval = time.Second

// analyze composes Submit and Poll
func analyze(ctx context.Context, r Reader, img Image) (*Document, error) {
	handle, err := r.Submit(ctx, img)
	if err != nil {
		return nil, err
	}
	return r.Poll(ctx, handle)
}

// wait suspends for d or until ctx is done
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
