// Package governor implements the Global Governor: two independent rate
// primitives (a fetch token bucket and a notification leaky bucket) plus a
// shared congestion signal the Patrol Engine consults before each cycle.
package governor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FetchBucketCapacity and FetchBucketRefillPerSecond are the fixed values
// for the outbound fetch token bucket.
const (
	FetchBucketCapacity        = 5
	FetchBucketRefillPerSecond = 5
)

// NotificationQueueCapacity is the hard capacity of the notification leaky
// bucket; Enqueue blocks only once this many messages are buffered.
const NotificationQueueCapacity = 1000

// NotificationDrainPerSecond is the outbound notification drain rate, kept
// below the 30 msg/s external cap the chat layer must additionally honour.
const NotificationDrainPerSecond = 25

// CongestionDepth is the queue-depth threshold past which is_congested
// reports true.
const CongestionDepth = 50

// Notification is one item flowing through the leaky bucket to a Sink.
type Notification struct {
	ChatID string
	Msg    any
}

// Sink receives drained notifications. notify.Notifier satisfies this.
type Sink interface {
	Deliver(ctx context.Context, chatID string, msg any) error
}

// Governor owns the fetch token bucket and the notification leaky bucket.
type Governor struct {
	fetchLimiter *rate.Limiter

	queue  chan Notification
	depth  atomicInt
	sink   Sink
	logger *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Governor. Call StartDrainer to begin delivering enqueued
// notifications to sink.
func New(sink Sink, logger *slog.Logger) *Governor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Governor{
		fetchLimiter: rate.NewLimiter(rate.Limit(FetchBucketRefillPerSecond), FetchBucketCapacity),
		queue:        make(chan Notification, NotificationQueueCapacity),
		sink:         sink,
		logger:       logger,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// AcquireFetchToken blocks cooperatively until a fetch token is available.
// If ctx is cancelled while waiting, no token is consumed.
func (g *Governor) AcquireFetchToken(ctx context.Context) error {
	return g.fetchLimiter.Wait(ctx)
}

// Enqueue adds a notification to the leaky bucket. It blocks only when the
// queue is at hard capacity.
func (g *Governor) Enqueue(ctx context.Context, n Notification) error {
	select {
	case g.queue <- n:
		g.depth.add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsCongested reports whether the notification queue depth exceeds
// CongestionDepth. The Patrol Engine must skip a cycle entirely when true.
func (g *Governor) IsCongested() bool {
	return g.depth.load() > CongestionDepth
}

// QueueDepth returns the current notification queue depth (for metrics).
func (g *Governor) QueueDepth() int {
	return g.depth.load()
}

// StartDrainer launches the dedicated drainer task that pulls notifications
// at the fixed drain cadence and hands each to the sink.
func (g *Governor) StartDrainer(ctx context.Context) {
	go g.runDrainer(ctx)
}

func (g *Governor) runDrainer(ctx context.Context) {
	defer close(g.done)
	ticker := time.NewTicker(time.Second / NotificationDrainPerSecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stop:
			return
		case <-ticker.C:
			select {
			case n := <-g.queue:
				g.depth.add(-1)
				if err := g.sink.Deliver(ctx, n.ChatID, n.Msg); err != nil {
					g.logger.Warn("governor: notification delivery failed",
						"chat_id", n.ChatID, "error", err)
				}
			default:
				// Nothing queued this tick.
			}
		}
	}
}

// Stop halts the drainer and waits for it to exit.
func (g *Governor) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
	<-g.done
}

// atomicInt is a tiny mutex-guarded counter; the depth gauge is read far
// more often than it is written from concurrent goroutines, but contention
// here is never meaningful enough to justify sync/atomic's int32 dance
// across every call site.
type atomicInt struct {
	mu  sync.Mutex
	val int
}

func (a *atomicInt) add(delta int) {
	a.mu.Lock()
	a.val += delta
	a.mu.Unlock()
}

func (a *atomicInt) load() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.val
}
