package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"ridecore/internal/domain"
	"ridecore/internal/redis"
	"ridecore/internal/repository"
)

type flakyReleaser struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (f *flakyReleaser) Release(ctx context.Context, driverID, rideID string, outcome domain.ReleaseOutcome, fare domain.Money) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return false, repository.Unavailable("release driver", errors.New("connection refused"))
	}
	return true, nil
}

func (f *flakyReleaser) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func hasLog(env *testEnv, msg string) bool {
	for _, e := range env.logs.AllEntries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func TestReconciler_SweepRepairsStaleViews(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ride := newRequestingRide(t, env, domain.VehicleTypeCar)

	// A stray status entry left by a crashed writer.
	if err := env.client.ZAdd(ctx, "rides:status:completed", goredis.Z{Score: 1, Member: ride.ID}).Err(); err != nil {
		t.Fatalf("ZAdd failed: %v", err)
	}
	if ok, _ := env.rides.Verify(ctx, ride.ID); ok {
		t.Fatal("expected views to be stale before the sweep")
	}

	rec := NewReconciler(env.rides, env.logger, ReconcileConfig{BatchSize: 10})
	n, err := rec.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 repair, got %d", n)
	}
	if ok, err := env.rides.Verify(ctx, ride.ID); err != nil || !ok {
		t.Errorf("views still stale after sweep: %v, %v", ok, err)
	}
	if !hasLog(env, "ride views repaired") {
		t.Error("expected the repair to be logged")
	}

	// A second sweep finds nothing to do.
	if n, _ := rec.Sweep(ctx); n != 0 {
		t.Errorf("expected no repairs on a clean store, got %d", n)
	}
}

func TestReconciler_RepairPendingRetriesRelease(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	releaser := &flakyReleaser{fail: true}
	store := redis.NewRideStore(env.client, releaser)
	ride := newRequestingRide(t, env, domain.VehicleTypeCar)

	if _, err := store.Transition(ctx, ride.ID, repository.TransitionRequest{
		Expected: domain.RideStatusRequesting,
		To:       domain.RideStatusAccepted,
		DriverID: "d-1",
	}); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	cancelled, err := store.Cancel(ctx, ride.ID, domain.RideStatusAccepted, domain.ActorDriver, "flat tyre")
	var viewErr *repository.ViewError
	if !errors.As(err, &viewErr) || !errors.Is(err, repository.ErrViewsStale) {
		t.Fatalf("expected a ViewError, got %v", err)
	}
	if cancelled == nil || cancelled.Status != domain.RideStatusCancelled {
		t.Fatalf("the record write should stand, got %+v", cancelled)
	}

	rec := NewReconciler(store, env.logger, ReconcileConfig{BatchSize: 10})

	// Still failing: the ride stays queued.
	if n, err := rec.RepairPending(ctx); err != nil || n != 0 {
		t.Fatalf("expected no repairs while release fails, got %d, %v", n, err)
	}
	if ids, _ := store.PendingRepairs(ctx, 10); len(ids) != 1 {
		t.Fatalf("expected ride to stay queued, got %v", ids)
	}

	releaser.setFail(false)
	n, err := rec.RepairPending(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 repair, got %d, %v", n, err)
	}
	if ids, _ := store.PendingRepairs(ctx, 10); len(ids) != 0 {
		t.Errorf("queue should be empty, got %v", ids)
	}
}

func TestReconciler_DropsMissingRide(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	if err := env.client.SAdd(ctx, "rides:reconcile", "ghost").Err(); err != nil {
		t.Fatalf("SAdd failed: %v", err)
	}

	rec := NewReconciler(env.rides, env.logger, ReconcileConfig{})
	if n, err := rec.RepairPending(ctx); err != nil || n != 0 {
		t.Fatalf("expected nothing repaired, got %d, %v", n, err)
	}
	if ids, _ := env.rides.PendingRepairs(ctx, 10); len(ids) != 0 {
		t.Errorf("missing ride should leave the queue, got %v", ids)
	}
	if !hasLog(env, "dropped repair for missing ride") {
		t.Error("expected the dropped repair to be logged")
	}
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	rec := NewReconciler(env.rides, env.logger, ReconcileConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
