package utils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type row struct {
	name  string
	value float64
}

func TestSortDesc(t *testing.T) {
	rows := []row{{"b", 1}, {"c", 5}, {"a", 1}}
	SortDesc(rows, func(r row) float64 { return r.value }, func(r row) string { return r.name })
	assert.Equal(t, []row{{"c", 5}, {"a", 1}, {"b", 1}}, rows)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 9.0, Round2(9.0000001))
	assert.Equal(t, 1.24, Round2(1.2351))
}

func TestWithGDALSerializes(t *testing.T) {
	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = WithGDAL(context.Background(), func() error {
				active++
				if active > maxSeen {
					maxSeen = active
				}
				active--
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)

	sentinel := errors.New("boom")
	assert.ErrorIs(t, WithGDAL(context.Background(), func() error { return sentinel }), sentinel)
}

func TestWithGDALStopsWaitingOnCancel(t *testing.T) {
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = WithGDAL(context.Background(), func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := WithGDAL(ctx, func() error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestWithGDALStartsClockOnceHeld(t *testing.T) {
	var order []string
	ctx := WithDeferredClock(context.Background(), func() { order = append(order, "clock") })
	err := WithGDAL(ctx, func() error {
		order = append(order, "work")
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"clock", "work"}, order)
}
