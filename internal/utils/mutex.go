package utils

import "context"

var gdalSem = make(chan struct{}, 1)

type clockKey struct{}

// WithDeferredClock attaches start to ctx. WithGDAL calls it once the lock is
// held, so a time budget tied to start does not count the wait in the queue.
func WithDeferredClock(ctx context.Context, start func()) context.Context {
	return context.WithValue(ctx, clockKey{}, start)
}

// WithGDAL serializes access to GDAL handles, which are not safe to share
// between goroutines. Waiting for the lock stops when ctx is done.
func WithGDAL(ctx context.Context, fn func() error) error {
	select {
	case gdalSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-gdalSem }()

	if start, ok := ctx.Value(clockKey{}).(func()); ok {
		start()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}
