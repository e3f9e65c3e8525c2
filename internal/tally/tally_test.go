package tally

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jaydahhei/reviewer2/internal/domain"
)

type fakeRepo struct {
	mu       sync.Mutex
	counters map[string]int64
	incErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{counters: make(map[string]int64)}
}

func (f *fakeRepo) GetQuota(_ context.Context, _ string) (*domain.QuotaState, error) {
	return nil, nil
}

func (f *fakeRepo) UpsertQuota(_ context.Context, _ *domain.QuotaState) error {
	return nil
}

func (f *fakeRepo) IncrementCounter(_ context.Context, counter string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incErr != nil {
		return 0, f.incErr
	}
	f.counters[counter]++
	return f.counters[counter], nil
}

func (f *fakeRepo) GetCounter(_ context.Context, counter string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[counter], nil
}

func (f *fakeRepo) GetTally(_ context.Context) (*domain.Tally, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &domain.Tally{
		Submissions: f.counters[domain.CounterSubmissions],
		Accepted:    f.counters[domain.CounterAccepted],
		Rejected:    f.counters[domain.CounterRejected],
	}, nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return nil }
func (f *fakeRepo) Close() error                 { return nil }

func TestIncrementBroadcastsNewValue(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeRepo())
	updates, cancel := svc.Subscribe()
	defer cancel()

	ctx := context.Background()
	svc.Increment(ctx, domain.CounterSubmissions)
	svc.Increment(ctx, domain.CounterSubmissions)

	first := <-updates
	if first.Counter != domain.CounterSubmissions || first.Value != 1 {
		t.Errorf("first update = %+v, want submissions=1", first)
	}
	second := <-updates
	if second.Value != 2 {
		t.Errorf("second update value = %d, want 2", second.Value)
	}
}

func TestIncrementSwallowsStoreFailure(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.incErr = errors.New("disk full")
	svc := NewService(repo)
	updates, cancel := svc.Subscribe()
	defer cancel()

	// Must not panic or surface the error, and must not broadcast.
	svc.Increment(context.Background(), domain.CounterAccepted)

	select {
	case update := <-updates:
		t.Errorf("unexpected broadcast after failed increment: %+v", update)
	default:
	}
}

func TestSnapshotReflectsCounters(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeRepo())
	ctx := context.Background()
	svc.Increment(ctx, domain.CounterSubmissions)
	svc.Increment(ctx, domain.CounterSubmissions)
	svc.Increment(ctx, domain.CounterAccepted)
	svc.Increment(ctx, domain.CounterRejected)

	tally, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if tally.Submissions != 2 || tally.Accepted != 1 || tally.Rejected != 1 {
		t.Errorf("tally = %+v, want {2 1 1}", tally)
	}
}

func TestHubDoesNotBlockOnSlowSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	_, cancel := hub.Subscribe()
	defer cancel()

	// Never read from the channel; broadcasts past the buffer must drop
	// instead of blocking.
	for i := 0; i < subscriberBuffer*2; i++ {
		hub.Broadcast(Update{Counter: domain.CounterSubmissions, Value: int64(i)})
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ch, cancel := hub.Subscribe()
	if hub.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.SubscriberCount())
	}

	cancel()
	cancel()

	if hub.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.SubscriberCount())
	}
	if _, open := <-ch; open {
		t.Error("expected subscriber channel closed after cancel")
	}

	// Broadcast after cancel must not reach the closed channel.
	hub.Broadcast(Update{Counter: domain.CounterAccepted, Value: 1})
}
