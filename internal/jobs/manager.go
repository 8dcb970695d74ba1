package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// TaskTypeInspect はアップロード画像の寸法を調べるタスクです。
	TaskTypeInspect = "media:inspect"

	queueName = "media"
)

// MediaSource は保存済みオブジェクトのローカルパスを解決します。
type MediaSource interface {
	Path(key string) (string, error)
}

// Recorder はジョブ投入を計測します。
type Recorder interface {
	JobEnqueued(taskType string)
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	client   enqueuer
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    *Store
	media    MediaSource
	logger   *slog.Logger
	recorder Recorder
}

// TaskPayload はメディア検査ジョブのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
	Key   string `json:"key"`
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, store *Store, media MediaSource, logger *slog.Logger, recorder Recorder) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if media == nil {
		return nil, errors.New("media source is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueName: 1,
			},
			Logger: newAsynqLogger(logger),
		},
	)
	m := newManager(asynq.NewClient(opt), store, media, logger, recorder)
	m.server = server
	return m, nil
}

func newManager(client enqueuer, store *Store, media MediaSource, logger *slog.Logger, recorder Recorder) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		client:   client,
		mux:      asynq.NewServeMux(),
		store:    store,
		media:    media,
		logger:   logger,
		recorder: recorder,
	}
	m.mux.HandleFunc(TaskTypeInspect, m.handleInspectTask)
	return m
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	if m.server == nil {
		return
	}
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error("asynq server stopped with error", "error", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(_ context.Context) error {
	if m.server != nil {
		m.server.Shutdown()
	}
	return m.client.Close()
}

// EnqueueInspect は保存済み画像の検査ジョブを投入し、ジョブ ID を返します。
func (m *Manager) EnqueueInspect(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	payload := TaskPayload{JobID: uuid.NewString(), Key: key}

	if err := m.store.Upsert(ctx, &Record{
		JobID:  payload.JobID,
		Type:   TaskTypeInspect,
		Key:    key,
		Status: StatusQueued,
		Progress: ProgressInfo{
			Percent: 0,
			Stage:   "queued",
		},
	}); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	task := asynq.NewTask(TaskTypeInspect, body, asynq.Queue(queueName))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(1), asynq.TaskID(payload.JobID)); err != nil {
		_ = m.failJob(ctx, payload.JobID, "ENQUEUE_FAILED", "ジョブの投入に失敗しました")
		return "", fmt.Errorf("enqueue %s: %w", TaskTypeInspect, err)
	}
	if m.recorder != nil {
		m.recorder.JobEnqueued(TaskTypeInspect)
	}
	return payload.JobID, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleInspectTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" || payload.Key == "" {
		return fmt.Errorf("missing jobId or key in payload: %w", asynq.SkipRetry)
	}

	if err := m.store.MarkRunning(ctx, payload.JobID); err != nil {
		return err
	}

	path, err := m.media.Path(payload.Key)
	if err != nil {
		return m.failJob(ctx, payload.JobID, "INVALID_KEY", err.Error())
	}
	info, err := InspectImage(path)
	if err != nil {
		m.logger.Warn("media inspection failed", "job", payload.JobID, "key", payload.Key, "error", err)
		if errors.Is(err, ErrUnsupportedImage) {
			return m.failJob(ctx, payload.JobID, "UNSUPPORTED_MEDIA", "画像として読み込めませんでした")
		}
		return m.failJob(ctx, payload.JobID, "INTERNAL_ERROR", "メディアの読み込みに失敗しました")
	}

	m.logger.Info("media inspected", "job", payload.JobID, "key", payload.Key, "width", info.Width, "height", info.Height)
	return m.store.MarkDone(ctx, payload.JobID, info)
}

func (m *Manager) failJob(ctx context.Context, jobID, code, message string) error {
	return m.store.MarkFailed(ctx, jobID, &ErrorInfo{
		Code:    code,
		Message: message,
	})
}
