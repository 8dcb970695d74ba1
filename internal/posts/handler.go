package posts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/photolog/internal/auth"
)

// Handler は /api/posts 系のハンドラーです。
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(store Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Register はルートを登録します。認可は Gate が担うため、ここでは区別しません。
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/metadata", h.Metadata)
	rg.GET("/:id", h.Get)
	rg.POST("", h.Create)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}

type postRequest struct {
	ID          string       `json:"id"`
	Date        *time.Time   `json:"date"`
	Author      string       `json:"author"`
	Description *string      `json:"description"`
	Photos      []PhotoAsset `json:"photos"`
	Videos      []string     `json:"videos"`
}

// List は GET /api/posts のハンドラーです。
func (h *Handler) List(c *gin.Context) {
	opts, err := listOptionsFromQuery(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	list, err := h.store.List(c.Request.Context(), opts)
	if err != nil {
		if errors.Is(err, ErrInvalidDateFilter) {
			respondError(c, http.StatusBadRequest, "INVALID_INPUT", "date_filter は YYYY, YYYY-MM, YYYY-MM-DD のいずれかで指定してください")
			return
		}
		h.internalError(c, "list posts failed", err)
		return
	}

	body := gin.H{"posts": list}
	if len(list) > 0 {
		// nextCursor は古いページ、prevCursor は新しいページの取得に使う
		body["nextCursor"] = list[len(list)-1].Date.Format(time.RFC3339Nano)
		body["prevCursor"] = list[0].Date.Format(time.RFC3339Nano)
	}
	c.JSON(http.StatusOK, body)
}

// Metadata は GET /api/posts/metadata のハンドラーです。
func (h *Handler) Metadata(c *gin.Context) {
	meta, err := h.store.DateMetadata(c.Request.Context())
	if err != nil {
		h.internalError(c, "post metadata failed", err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// Get は GET /api/posts/:id のハンドラーです。
func (h *Handler) Get(c *gin.Context) {
	p, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, "get post failed", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Create は POST /api/posts のハンドラーです。投稿者は Gate が設定した識別子を優先します。
func (h *Handler) Create(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_INPUT", "JSON の形式が正しくありません")
		return
	}

	author, ok := auth.UserFromContext(c)
	if !ok {
		author = strings.TrimSpace(req.Author)
	}
	in := CreateInput{
		ID:     strings.TrimSpace(req.ID),
		Author: author,
		Photos: req.Photos,
		Videos: req.Videos,
	}
	if req.Date != nil {
		in.Date = *req.Date
	}
	if req.Description != nil {
		in.Description = *req.Description
	}

	p, err := h.store.Create(c.Request.Context(), in)
	if err != nil {
		h.storeError(c, "create post failed", err)
		return
	}
	h.logger.Info("post created", "id", p.ID, "author", p.Author, "photos", len(p.Photos), "videos", len(p.Videos))
	c.JSON(http.StatusCreated, p)
}

// Update は PUT /api/posts/:id のハンドラーです。
func (h *Handler) Update(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_INPUT", "JSON の形式が正しくありません")
		return
	}

	p, err := h.store.Update(c.Request.Context(), c.Param("id"), UpdateInput{
		Description: req.Description,
		Photos:      req.Photos,
		Videos:      req.Videos,
	})
	if err != nil {
		h.storeError(c, "update post failed", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete は DELETE /api/posts/:id のハンドラーです。
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		h.storeError(c, "delete post failed", err)
		return
	}
	h.logger.Info("post deleted", "id", id)
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func listOptionsFromQuery(c *gin.Context) (ListOptions, error) {
	opts := ListOptions{DateFilter: strings.TrimSpace(c.Query("date_filter"))}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return opts, errors.New("limit は整数で指定してください")
		}
		opts.Limit = n
	}
	for _, cursor := range []struct {
		name string
		dst  **time.Time
	}{{"before", &opts.Before}, {"after", &opts.After}} {
		raw := c.Query(cursor.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return opts, errors.New(cursor.name + " は RFC3339 形式の日時で指定してください")
		}
		*cursor.dst = &t
	}
	return opts, nil
}

func (h *Handler) storeError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respondError(c, http.StatusNotFound, "POST_NOT_FOUND", "指定された投稿は存在しません")
	case errors.Is(err, ErrNoMedia):
		respondError(c, http.StatusBadRequest, "INVALID_INPUT", "写真または動画を 1 つ以上指定してください")
	case errors.Is(err, ErrConflict):
		respondError(c, http.StatusConflict, "POST_EXISTS", "同じ ID の投稿が既に存在します")
	default:
		h.internalError(c, msg, err)
	}
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "error", err)
	_ = c.Error(err)
	respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "サーバー内部でエラーが発生しました")
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
