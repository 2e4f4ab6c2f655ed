package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/redis/go-redis/v9"

	"itinerary-planner/internal/models"
)

func sampleCompleted() models.Job {
	created := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	job := models.NewProcessingJob("job-42", "Kyoto", 2, created)
	return job.Complete(models.Itinerary{
		json.RawMessage(`{"day":1,"theme":"Temples","activities":[{"time":"09:00","description":"Kinkaku-ji","location":"Kita"}]}`),
		json.RawMessage(`{"day":"2","theme":"Gardens","activities":[],"notes":"rain plan: Nishiki market"}`),
	}, created.Add(40*time.Second))
}

func runKVContract(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()
	jobs := NewJobStore(kv, "itinerary:")

	if _, err := jobs.Get(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	processing := models.NewProcessingJob("job-42", "Kyoto", 2, time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC))
	if err := jobs.Put(ctx, processing); err != nil {
		t.Fatalf("put processing: %v", err)
	}
	got, err := jobs.Get(ctx, "job-42")
	if err != nil {
		t.Fatalf("get processing: %v", err)
	}
	if !reflect.DeepEqual(got, processing) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, processing)
	}

	completed := sampleCompleted()
	if err := jobs.Put(ctx, completed); err != nil {
		t.Fatalf("put completed: %v", err)
	}
	got, err = jobs.Get(ctx, "job-42")
	if err != nil {
		t.Fatalf("get completed: %v", err)
	}
	if got.Status != models.StatusCompleted || len(got.Itinerary) != 2 || got.CompletedAt == nil {
		t.Fatalf("unexpected completed record: %+v", got)
	}
	if !got.CompletedAt.Equal(*completed.CompletedAt) {
		t.Fatalf("completedAt mismatch")
	}
	if string(got.Itinerary[1]) != string(completed.Itinerary[1]) {
		t.Fatalf("day entry not stored verbatim: %s", got.Itinerary[1])
	}

	first, err := jobs.GetRaw(ctx, "job-42")
	if err != nil {
		t.Fatalf("get raw: %v", err)
	}
	second, _ := jobs.GetRaw(ctx, "job-42")
	if !bytes.Equal(first, second) {
		t.Fatalf("repeated reads of a terminal record differ")
	}
}

func TestMemoryKVContract(t *testing.T) {
	runKVContract(t, NewMemoryKV())
}

func TestRedisKVContract(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	runKVContract(t, NewRedisKV(client, 0))
	if !mr.Exists("itinerary:job-42") {
		t.Fatalf("expected prefixed key in redis")
	}
}

func TestRedisKVExpiresRecords(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	jobs := NewJobStore(NewRedisKV(client, time.Hour), "itinerary:")
	ctx := context.Background()
	if err := jobs.Put(ctx, sampleCompleted()); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(2 * time.Hour)
	if _, err := jobs.Get(ctx, "job-42"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected expired record to be gone, got %v", err)
	}
}

func TestJobStoreRefusesInvalidRecords(t *testing.T) {
	kv := NewMemoryKV()
	jobs := NewJobStore(kv, "")
	bad := models.NewProcessingJob("job-1", "Paris", 1, time.Now())
	bad.Status = models.StatusCompleted
	if err := jobs.Put(context.Background(), bad); err == nil {
		t.Fatalf("expected invariant violation to be rejected")
	}
	if err := jobs.Put(context.Background(), models.Job{Status: models.StatusProcessing}); err == nil {
		t.Fatalf("expected missing id to be rejected")
	}
	if kv.Len() != 0 {
		t.Fatalf("nothing should have been written")
	}
}

type fakeObjects struct {
	objects map[string][]byte
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3KVContract(t *testing.T) {
	fake := &fakeObjects{objects: map[string][]byte{}}
	runKVContract(t, &S3KV{client: fake, bucket: "itineraries"})
	if _, ok := fake.objects["itineraries/itinerary:job-42"]; !ok {
		t.Fatalf("expected object under bucket/key")
	}
}
