package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/gocompress/internal/domain/model"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	return client, mr
}

func testJob() *model.Job {
	now := time.Now().UTC().Truncate(time.Microsecond)
	rotation := 90
	return &model.Job{
		ID:        uuid.New(),
		SourceKey: "sources/a/clip.mp4",
		OutputKey: "outputs/a/clip.mp4",
		Tier:      model.TierMedium,
		Codec:     model.CodecHEVC,
		Options: model.Options{
			AutoOrient:       true,
			MonoAudio:        true,
			RotationOverride: &rotation,
		},
		CustomWidth:        640,
		CustomAudioBitrate: 96000,
		Status:             model.StatusCompleted,
		Attempts:           2,
		Progress:           1,
		Result: &model.CompressionResult{
			OutputPath: "outputs/a/clip.mp4",
			OutputSize: 1234,
			Ratio:      0.25,
			Tier:       model.TierLow,
			Attempts:   2,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRedisJobCache_SetGet(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewRedisJobCache(client)
	ctx := context.Background()
	job := testJob()

	if err := cache.Set(ctx, job, 5*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := cache.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected job, got nil")
	}

	if got.ID != job.ID || got.Tier != job.Tier || got.Codec != job.Codec || got.Status != job.Status {
		t.Errorf("Get() = %+v, want %+v", got, job)
	}
	if got.CustomWidth != 640 || got.CustomAudioBitrate != 96000 || got.Attempts != 2 || got.Progress != 1 {
		t.Errorf("numeric fields not preserved: %+v", got)
	}
	if got.Options.RotationOverride == nil || *got.Options.RotationOverride != 90 || !got.Options.MonoAudio {
		t.Errorf("Options = %+v", got.Options)
	}
	if got.Result == nil || got.Result.OutputSize != 1234 || got.Result.Tier != model.TierLow {
		t.Errorf("Result = %+v", got.Result)
	}
	if !got.CreatedAt.Equal(job.CreatedAt) || !got.UpdatedAt.Equal(job.UpdatedAt) {
		t.Errorf("timestamps = %v/%v, want %v", got.CreatedAt, got.UpdatedAt, job.CreatedAt)
	}
}

func TestRedisJobCache_Get_CacheMiss(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewRedisJobCache(client)

	got, err := cache.Get(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on miss, got %+v", got)
	}
}

func TestRedisJobCache_Get_CorruptEntry(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewRedisJobCache(client)
	id := uuid.New()

	if err := mr.Set(jobKeyPrefix+id.String(), "{not json"); err != nil {
		t.Fatal(err)
	}

	if _, err := cache.Get(context.Background(), id); err == nil {
		t.Error("expected error for corrupt entry")
	}
}

func TestRedisJobCache_TTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewRedisJobCache(client)
	ctx := context.Background()
	job := testJob()

	if err := cache.Set(ctx, job, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("expected entry to expire")
	}
}

func TestRedisJobCache_Delete(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewRedisJobCache(client)
	ctx := context.Background()
	job := testJob()

	_ = cache.Set(ctx, job, time.Minute)
	if err := cache.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := cache.Get(ctx, job.ID); got != nil {
		t.Error("expected job to be deleted")
	}

	// Deleting a missing key is not an error.
	if err := cache.Delete(ctx, uuid.New()); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func TestRedisJobCache_ConnectionError(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewRedisJobCache(client)
	mr.Close()

	if _, err := cache.Get(context.Background(), uuid.New()); err == nil {
		t.Error("expected Get error with closed server")
	}
	if err := cache.Set(context.Background(), testJob(), time.Minute); err == nil {
		t.Error("expected Set error with closed server")
	}
}

func TestRedisProgressStore_Progress(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisProgressStore(client, time.Hour)
	ctx := context.Background()
	id := uuid.New()

	if _, ok, err := store.GetProgress(ctx, id); err != nil || ok {
		t.Fatalf("GetProgress before set: ok=%v err=%v", ok, err)
	}

	if err := store.SetProgress(ctx, id, 0.4235); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}

	got, ok, err := store.GetProgress(ctx, id)
	if err != nil || !ok {
		t.Fatalf("GetProgress: ok=%v err=%v", ok, err)
	}
	if got != 0.4235 {
		t.Errorf("progress = %v, want 0.4235", got)
	}
}

func TestRedisProgressStore_Cancel(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisProgressStore(client, time.Hour)
	ctx := context.Background()
	id := uuid.New()

	requested, err := store.CancelRequested(ctx, id)
	if err != nil || requested {
		t.Fatalf("CancelRequested before request: %v %v", requested, err)
	}

	if err := store.RequestCancel(ctx, id); err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}
	if requested, _ := store.CancelRequested(ctx, id); !requested {
		t.Error("expected cancellation to be requested")
	}
	if ttl := mr.TTL(cancelKeyPrefix + id.String()); ttl != time.Hour {
		t.Errorf("cancel flag TTL = %v, want 1h", ttl)
	}
}

func TestRedisProgressStore_Clear(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisProgressStore(client, time.Hour)
	ctx := context.Background()
	id := uuid.New()

	_ = store.SetProgress(ctx, id, 0.5)
	_ = store.RequestCancel(ctx, id)

	if err := store.Clear(ctx, id); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if mr.Exists(progressKeyPrefix+id.String()) || mr.Exists(cancelKeyPrefix+id.String()) {
		t.Error("expected keys to be removed")
	}
}
