// Package media は写真・動画のアップロードと配信を扱います。
package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/photolog/internal/config"
	"github.com/yourusername/photolog/internal/storage"
)

// 動画として受け付ける形式
var videoTypes = []string{"video/mp4", "video/quicktime", "video/webm"}

// Storage はメディアの保存先です。
type Storage interface {
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(key string) (*os.File, os.FileInfo, error)
	PublicURL(key string) string
}

// Scheduler はアップロード後の画像検査ジョブを投入します。
type Scheduler interface {
	EnqueueInspect(ctx context.Context, key string) (string, error)
}

// Handler はメディアのアップロードと配信を行います。
type Handler struct {
	storage   Storage
	scheduler Scheduler
	env       config.Environment
	maxBytes  int64
	logger    *slog.Logger
}

// Option は Handler の設定を変更します。
type Option func(*Handler)

// WithScheduler は検査ジョブの投入先を指定します。未指定の場合ジョブは作りません。
func WithScheduler(s Scheduler) Option {
	return func(h *Handler) {
		h.scheduler = s
	}
}

// NewHandler は Handler を作成します。
func NewHandler(store Storage, env config.Environment, maxBytes int64, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		storage:  store,
		env:      env,
		maxBytes: maxBytes,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// uploadItem は検証済みのアップロードファイルです。
type uploadItem struct {
	header *multipart.FileHeader
	kind   storage.Kind
	key    string
}

// jobRef はアップロード応答に含める検査ジョブの参照です。
type jobRef struct {
	Key   string `json:"key"`
	JobID string `json:"jobId"`
}

// Upload は POST /api/media のハンドラーです。
// すべてのファイルの形式とサイズを確認してから保存するため、途中で拒否された場合は何も保存されません。
func (h *Handler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_INPUT", "multipart/form-data でファイルを送信してください")
		return
	}
	defer form.RemoveAll()

	headers := collectFiles(form)
	if len(headers) == 0 {
		respondError(c, http.StatusBadRequest, "INVALID_INPUT", "アップロードされたファイルが見つかりません")
		return
	}

	groupID := uuid.NewString()
	if v := form.Value["postId"]; len(v) > 0 && strings.TrimSpace(v[0]) != "" {
		groupID = strings.TrimSpace(v[0])
	}

	items := make([]uploadItem, 0, len(headers))
	for _, fh := range headers {
		item, status, code, msg := h.inspect(fh, groupID)
		if status != 0 {
			respondError(c, status, code, msg)
			return
		}
		items = append(items, item)
	}

	ctx := c.Request.Context()
	urls := make([]string, 0, len(items))
	jobs := make([]jobRef, 0)
	for _, item := range items {
		if err := h.save(ctx, item); err != nil {
			h.logger.Error("media save failed", "key", item.key, "error", err)
			_ = c.Error(err)
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "ファイルの保存に失敗しました")
			return
		}
		urls = append(urls, h.storage.PublicURL(item.key))

		if item.kind == storage.KindPhoto && h.scheduler != nil {
			jobID, err := h.scheduler.EnqueueInspect(ctx, item.key)
			if err != nil {
				// 検査は補助的な処理なのでアップロード自体は成功とする
				h.logger.Warn("media inspection enqueue failed", "key", item.key, "error", err)
				continue
			}
			jobs = append(jobs, jobRef{Key: item.key, JobID: jobID})
		}
	}

	h.logger.Info("media uploaded", "group", groupID, "files", len(items), "jobs", len(jobs))
	c.JSON(http.StatusOK, gin.H{
		"postId": groupID,
		"urls":   urls,
		"jobs":   jobs,
	})
}

// inspect はサイズと内容を確認して保存キーを決めます。問題があれば HTTP ステータスとエラー内容を返します。
func (h *Handler) inspect(fh *multipart.FileHeader, groupID string) (uploadItem, int, string, string) {
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		return uploadItem{}, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "ファイルサイズが上限を超えています: " + fh.Filename
	}

	f, err := fh.Open()
	if err != nil {
		return uploadItem{}, http.StatusBadRequest, "INVALID_INPUT", "ファイルを読み込めませんでした: " + fh.Filename
	}
	mtype, err := mimetype.DetectReader(f)
	f.Close()
	if err != nil {
		return uploadItem{}, http.StatusBadRequest, "INVALID_INPUT", "ファイルを読み込めませんでした: " + fh.Filename
	}

	kind, ok := classify(mtype)
	if !ok {
		return uploadItem{}, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "対応していない形式です: " + fh.Filename
	}

	key, err := storage.ObjectKey(h.env, fh.Filename, groupID, kind)
	if err != nil {
		return uploadItem{}, http.StatusBadRequest, "INVALID_INPUT", "ファイル名または postId が不正です"
	}
	return uploadItem{header: fh, kind: kind, key: key}, 0, "", ""
}

func (h *Handler) save(ctx context.Context, item uploadItem) error {
	f, err := item.header.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = h.storage.Save(ctx, item.key, f)
	return err
}

// classify は検出した MIME タイプから写真か動画かを判定します。
// SVG はスクリプトを含められるため画像として扱いません。
func classify(m *mimetype.MIME) (storage.Kind, bool) {
	for _, v := range videoTypes {
		if m.Is(v) {
			return storage.KindVideo, true
		}
	}
	if strings.HasPrefix(m.String(), "image/") && !m.Is("image/svg+xml") {
		return storage.KindPhoto, true
	}
	return "", false
}

// collectFiles はフォーム内のすべてのファイルをフィールド名順に集めます。
func collectFiles(form *multipart.Form) []*multipart.FileHeader {
	names := make([]string, 0, len(form.File))
	for name := range form.File {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []*multipart.FileHeader
	for _, name := range names {
		out = append(out, form.File[name]...)
	}
	return out
}

// Serve は GET /media/*key のハンドラーです。Range リクエストにも対応します。
func (h *Handler) Serve(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	f, info, err := h.storage.Open(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "ファイルが見つかりません")
			return
		}
		h.logger.Error("media open failed", "key", key, "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "ファイルの読み込みに失敗しました")
		return
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		h.logger.Error("media sniff failed", "key", key, "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "ファイルの読み込みに失敗しました")
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "ファイルの読み込みに失敗しました")
		return
	}

	c.Header("Content-Type", mtype.String())
	c.Header("Cache-Control", "public, max-age=86400")
	c.Header("X-Content-Type-Options", "nosniff")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
