package governor

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu  sync.Mutex
	got []string
}

func (r *recordingSink) Deliver(ctx context.Context, chatID string, msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, chatID)
	return nil
}

func TestAcquireFetchTokenRespectsCapacity(t *testing.T) {
	g := New(&recordingSink{}, nil)
	ctx := context.Background()

	for i := 0; i < FetchBucketCapacity; i++ {
		if err := g.AcquireFetchToken(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := g.AcquireFetchToken(ctx2); err == nil {
		t.Fatal("expected capacity exhaustion to block past deadline")
	}
}

func TestAbandonedAcquireDoesNotConsumeToken(t *testing.T) {
	g := New(&recordingSink{}, nil)

	for i := 0; i < FetchBucketCapacity; i++ {
		if err := g.AcquireFetchToken(context.Background()); err != nil {
			t.Fatalf("drain: %v", err)
		}
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_ = g.AcquireFetchToken(cancelled) // abandoned mid-acquire

	time.Sleep(250 * time.Millisecond) // allow ~1 refill tick
	ctx, cancel2 := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel2()
	if err := g.AcquireFetchToken(ctx); err != nil {
		t.Fatalf("expected a refilled token to be available, got %v", err)
	}
}

func TestIsCongestedAboveThreshold(t *testing.T) {
	sink := &recordingSink{}
	g := New(sink, nil)

	for i := 0; i < CongestionDepth+1; i++ {
		if err := g.Enqueue(context.Background(), Notification{ChatID: "c"}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	if !g.IsCongested() {
		t.Fatalf("expected congestion at depth %d", g.QueueDepth())
	}
}

func TestDrainerDeliversAtCadence(t *testing.T) {
	sink := &recordingSink{}
	g := New(sink, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	g.StartDrainer(ctx)

	if err := g.Enqueue(context.Background(), Notification{ChatID: "chat1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.After(400 * time.Millisecond)
	for {
		sink.mu.Lock()
		n := len(sink.got)
		sink.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("notification was not delivered within cadence window")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
