package async_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"authmsg/internal/async"
)

func TestFuture_ResolvesOnce(t *testing.T) {
	f := async.New[int]()
	if !f.Resolve(1, nil) {
		t.Fatal("first resolve should win")
	}
	if f.Resolve(2, errors.New("late")) {
		t.Fatal("second resolve should be ignored")
	}
	v, err := f.Await(context.Background())
	if err != nil || v != 1 {
		t.Fatalf("got (%d, %v), want (1, nil)", v, err)
	}
}

func TestFuture_ConcurrentResolversDeliverOneOutcome(t *testing.T) {
	f := async.New[int]()
	var wg sync.WaitGroup
	wins := make(chan int, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f.Resolve(i, nil) {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)
	if n := len(wins); n != 1 {
		t.Fatalf("want exactly one winner, got %d", n)
	}
}

func TestGo_DeliversResult(t *testing.T) {
	f := async.Go(context.Background(), func(ctx context.Context) (string, error) {
		return "bound", nil
	})
	v, err := f.Await(context.Background())
	if err != nil || v != "bound" {
		t.Fatalf("got (%q, %v)", v, err)
	}
}

func TestGo_CancelResolvesAndStopsProducer(t *testing.T) {
	stopped := make(chan struct{})
	f := async.Go(context.Background(), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(stopped)
		return 0, ctx.Err()
	})
	f.Cancel()

	_, err := f.Await(context.Background())
	if !errors.Is(err, async.ErrCancelled) {
		t.Fatalf("want ErrCancelled, got %v", err)
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("producer context was not cancelled")
	}
}

func TestAwait_ContextEndLeavesFutureUnresolved(t *testing.T) {
	f := async.New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if _, _, ok := f.Result(); ok {
		t.Fatal("future should still be unresolved")
	}
}

func TestFailed_IsResolved(t *testing.T) {
	boom := errors.New("boom")
	f := async.Failed[int](boom)
	_, err, ok := f.Result()
	if !ok || !errors.Is(err, boom) {
		t.Fatalf("got ok=%v err=%v", ok, err)
	}
}
