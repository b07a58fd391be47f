package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Jayphen/lazytask/internal/types"
)

// setupTestRedis creates a test Redis client with miniredis
func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	client := &Client{rdb: rdb}
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestSetAndGetStatus(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  *types.StatusRecord
	}{
		{
			name: "tui instance",
			rec: &types.StatusRecord{
				Instance:   "laptop:4242",
				PID:        4242,
				Command:    "tui",
				Timestamp:  time.Now().UnixMilli(),
				Generation: 7,
				Tasks:      120,
				Source:     "direct",
			},
		},
		{
			name: "failing sync",
			rec: &types.StatusRecord{
				Instance:     "server:17",
				Command:      "watch",
				Timestamp:    time.Now().UnixMilli(),
				Generation:   3,
				Source:       "command",
				SyncEnabled:  true,
				SyncFailures: 4,
				LastSyncErr:  "sync authentication failed",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.SetStatus(ctx, tt.rec); err != nil {
				t.Fatalf("SetStatus failed: %v", err)
			}

			got, err := client.GetStatus(ctx, tt.rec.Instance)
			if err != nil {
				t.Fatalf("GetStatus failed: %v", err)
			}
			if got == nil {
				t.Fatal("GetStatus returned nil")
			}
			if *got != *tt.rec {
				t.Errorf("GetStatus = %+v, want %+v", got, tt.rec)
			}
		})
	}
}

func TestGetStatus_NotFound(t *testing.T) {
	client, _ := setupTestRedis(t)

	rec, err := client.GetStatus(context.Background(), "nobody:1")
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected nil status, got %+v", rec)
	}
}

func TestGetStatuses(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	for i := range 3 {
		rec := &types.StatusRecord{Instance: fmt.Sprintf("host:%d", i), Generation: uint64(i + 1)}
		if err := client.SetStatus(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	// Garbage under the prefix is ignored.
	mr.Set(StatusKeyPrefix+"broken", "{not json")

	statuses, err := client.GetStatuses(ctx)
	if err != nil {
		t.Fatalf("GetStatuses failed: %v", err)
	}
	if len(statuses) != 3 {
		t.Errorf("got %d statuses, want 3", len(statuses))
	}
	if statuses["host:2"] == nil || statuses["host:2"].Generation != 3 {
		t.Errorf("host:2 = %+v", statuses["host:2"])
	}
}

func TestDeleteStatus(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	rec := &types.StatusRecord{Instance: "host:1"}
	if err := client.SetStatus(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := client.DeleteStatus(ctx, rec.Instance); err != nil {
		t.Fatalf("DeleteStatus failed: %v", err)
	}
	if got, _ := client.GetStatus(ctx, rec.Instance); got != nil {
		t.Errorf("status still present after delete: %+v", got)
	}
}

func TestGenerationOnlyRises(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	if gen, err := client.GetGeneration(ctx); err != nil || gen != 0 {
		t.Fatalf("initial generation = %d, %v", gen, err)
	}

	for _, g := range []uint64{5, 9, 4} {
		if err := client.SetStatus(ctx, &types.StatusRecord{Instance: "a", Generation: g}); err != nil {
			t.Fatal(err)
		}
	}
	gen, err := client.GetGeneration(ctx)
	if err != nil {
		t.Fatalf("GetGeneration failed: %v", err)
	}
	if gen != 9 {
		t.Errorf("generation = %d, want 9", gen)
	}
}

func TestStatusExpiration(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := client.SetStatus(ctx, &types.StatusRecord{Instance: "host:1"}); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(StatusKeyPrefix + "host:1"); ttl != StatusTTL {
		t.Errorf("TTL = %v, want %v", ttl, StatusTTL)
	}

	mr.FastForward(StatusTTL + time.Second)
	if got, _ := client.GetStatus(ctx, "host:1"); got != nil {
		t.Errorf("status should have expired, got %+v", got)
	}
}

func TestEvents(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	for i := range MaxEvents + 5 {
		ev := &types.SyncEvent{Instance: "host:1", Timestamp: int64(i), OK: i%2 == 0}
		if err := client.PushEvent(ctx, ev); err != nil {
			t.Fatalf("PushEvent failed: %v", err)
		}
	}

	events, err := client.GetEvents(ctx, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != MaxEvents {
		t.Fatalf("got %d events, want %d", len(events), MaxEvents)
	}
	if events[0].Timestamp != MaxEvents+4 {
		t.Errorf("newest event timestamp = %d, want %d", events[0].Timestamp, MaxEvents+4)
	}

	recent, err := client.GetEvents(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Errorf("got %d events, want 3", len(recent))
	}
}

func TestMirror(t *testing.T) {
	client, _ := setupTestRedis(t)
	m := NewMirror(client)

	// Only the newest of several queued records is kept.
	for g := uint64(1); g <= 5; g++ {
		m.Offer(&types.StatusRecord{Instance: "host:9", Generation: g})
	}
	m.Event(&types.SyncEvent{Instance: "host:9", OK: true, Generation: 5})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		m.Run(ctx, "host:9")
		close(stopped)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, _ := client.GetStatus(context.Background(), "host:9")
		events, _ := client.GetEvents(context.Background(), 10)
		if rec != nil && len(events) == 1 {
			if rec.Generation != 5 {
				t.Errorf("mirrored generation = %d, want 5", rec.Generation)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("mirror never wrote status and event")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-stopped
	if rec, _ := client.GetStatus(context.Background(), "host:9"); rec != nil {
		t.Error("status not removed at shutdown")
	}
}

func TestDetermineSyncHealth(t *testing.T) {
	tests := []struct {
		name string
		rec  *types.StatusRecord
		want types.SyncHealth
	}{
		{"nil record", nil, types.SyncDisabled},
		{"sync off", &types.StatusRecord{}, types.SyncDisabled},
		{"healthy", &types.StatusRecord{SyncEnabled: true}, types.SyncHealthy},
		{"one failure", &types.StatusRecord{SyncEnabled: true, SyncFailures: 1}, types.SyncDegraded},
		{"streak", &types.StatusRecord{SyncEnabled: true, SyncFailures: 3}, types.SyncFailing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := types.DetermineSyncHealth(tt.rec, 3); got != tt.want {
				t.Errorf("DetermineSyncHealth = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetermineInstanceStatus(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		age  time.Duration
		want types.InstanceStatus
	}{
		{"fresh", 10 * time.Second, types.InstanceLive},
		{"stale", 2 * time.Minute, types.InstanceStale},
		{"gone", 10 * time.Minute, types.InstanceGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &types.StatusRecord{Timestamp: now.Add(-tt.age).UnixMilli()}
			if got := types.DetermineInstanceStatus(rec, now); got != tt.want {
				t.Errorf("DetermineInstanceStatus = %v, want %v", got, tt.want)
			}
		})
	}
	if got := types.DetermineInstanceStatus(nil, now); got != types.InstanceGone {
		t.Errorf("nil record = %v, want gone", got)
	}
}
