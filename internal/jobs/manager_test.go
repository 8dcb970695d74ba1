package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task"}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type dirSource string

func (d dirSource) Path(key string) (string, error) {
	return filepath.Join(string(d), filepath.FromSlash(key)), nil
}

type countingRecorder struct{ n int }

func (r *countingRecorder) JobEnqueued(string) { r.n++ }

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

func newTestManager(t *testing.T, client *fakeEnqueuer) (*Manager, *Store, string) {
	t.Helper()
	store, _ := newTestStore(t, time.Hour)
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newManager(client, store, dirSource(dir), logger, &countingRecorder{}), store, dir
}

func TestEnqueueAndRunInspection(t *testing.T) {
	client := &fakeEnqueuer{}
	m, store, dir := newTestManager(t, client)
	ctx := context.Background()
	writePNG(t, filepath.Join(dir, "photos", "g1", "a.png"), 64, 48)

	jobID, err := m.EnqueueInspect(ctx, "photos/g1/a.png")
	if err != nil {
		t.Fatalf("EnqueueInspect returned error: %v", err)
	}
	if len(client.tasks) != 1 || client.tasks[0].Type() != TaskTypeInspect {
		t.Fatalf("unexpected tasks: %v", client.tasks)
	}
	if rec, _ := store.Get(ctx, jobID); rec == nil || rec.Status != StatusQueued {
		t.Fatalf("expected queued record, got %+v", rec)
	}
	if m.recorder.(*countingRecorder).n != 1 {
		t.Fatal("enqueue was not recorded")
	}

	var payload TaskPayload
	if err := json.Unmarshal(client.tasks[0].Payload(), &payload); err != nil || payload.JobID != jobID {
		t.Fatalf("unexpected payload: %s (%v)", client.tasks[0].Payload(), err)
	}

	if err := m.handleInspectTask(ctx, client.tasks[0]); err != nil {
		t.Fatalf("handleInspectTask returned error: %v", err)
	}
	rec, err := m.GetRecord(ctx, jobID)
	if err != nil {
		t.Fatalf("GetRecord returned error: %v", err)
	}
	if rec.Status != StatusSucceeded || rec.Media == nil {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Media.Width != 64 || rec.Media.Height != 48 || rec.Media.Format != "png" || rec.Media.Bytes == 0 {
		t.Fatalf("unexpected media info: %+v", rec.Media)
	}
}

func TestInspectionMarksUnreadableFilesFailed(t *testing.T) {
	client := &fakeEnqueuer{}
	m, _, dir := newTestManager(t, client)
	ctx := context.Background()

	path := filepath.Join(dir, "photos", "g1", "notes.png")
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	_ = os.WriteFile(path, []byte("definitely not an image"), 0o644)

	jobID, err := m.EnqueueInspect(ctx, "photos/g1/notes.png")
	if err != nil {
		t.Fatalf("EnqueueInspect returned error: %v", err)
	}
	if err := m.handleInspectTask(ctx, client.tasks[0]); err != nil {
		t.Fatalf("handleInspectTask returned error: %v", err)
	}
	rec, _ := m.GetRecord(ctx, jobID)
	if rec.Status != StatusFailed || rec.Error == nil || rec.Error.Code != "UNSUPPORTED_MEDIA" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestEnqueueFailureIsRecorded(t *testing.T) {
	client := &fakeEnqueuer{err: errors.New("redis down")}
	m, store, _ := newTestManager(t, client)

	if _, err := m.EnqueueInspect(context.Background(), "photos/g1/a.png"); err == nil {
		t.Fatal("expected enqueue error")
	}
	keys, _ := store.rdb.Keys(context.Background(), "job:*").Result()
	if len(keys) != 1 {
		t.Fatalf("expected one job record, got %v", keys)
	}
	rec, _ := store.Get(context.Background(), keys[0][len("job:"):])
	if rec.Status != StatusFailed || rec.Error.Code != "ENQUEUE_FAILED" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestHandleInspectTaskRejectsBadPayload(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeEnqueuer{})
	err := m.handleInspectTask(context.Background(), asynq.NewTask(TaskTypeInspect, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}
