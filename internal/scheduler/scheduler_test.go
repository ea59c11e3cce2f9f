package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAlignment(t *testing.T) {
	now := time.Date(2025, time.December, 29, 10, 20, 30, 0, time.UTC)

	aligned := New(Options{Interval: time.Hour, AlignToInterval: true}, zerolog.Nop())
	if got := aligned.nextTick(now); !got.Equal(time.Date(2025, time.December, 29, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("对齐模式应取整点: %s", got)
	}

	onBoundary := time.Date(2025, time.December, 29, 11, 0, 0, 0, time.UTC)
	if got := aligned.nextTick(onBoundary); !got.Equal(onBoundary.Add(time.Hour)) {
		t.Fatalf("恰在边界时应取下一个边界: %s", got)
	}

	free := New(Options{Interval: time.Hour}, zerolog.Nop())
	if got := free.nextTick(now); !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("非对齐模式应为当前时间加间隔: %s", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sched := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	ticked := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx, func(context.Context, time.Time) error {
			select {
			case ticked <- struct{}{}:
			default:
			}
			cancel()
			return nil
		})
	}()

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("超时未收到 tick")
	}

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("取消后应返回 context.Canceled: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("取消后循环未退出")
	}
}
