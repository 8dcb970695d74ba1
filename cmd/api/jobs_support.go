package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/photolog/internal/config"
	"github.com/yourusername/photolog/internal/jobs"
	"github.com/yourusername/photolog/internal/metrics"
	"github.com/yourusername/photolog/internal/storage"
)

func setupJobs(cfg *config.Config, rdb *redis.Client, local *storage.Local, log *slog.Logger, m *metrics.Metrics) (*jobs.Manager, error) {
	store := jobs.NewStore(rdb, cfg.JobTTL())
	return jobs.NewManager(cfg.RedisURL, store, local, log, m)
}

type recordGetter interface {
	GetRecord(ctx context.Context, jobID string) (*jobs.Record, error)
}

func jobStatusHandler(manager recordGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		payload := gin.H{
			"jobId":  record.JobID,
			"type":   record.Type,
			"key":    record.Key,
			"status": record.Status,
			"progress": gin.H{
				"percent": record.Progress.Percent,
				"stage":   record.Progress.Stage,
			},
			"updatedAt": record.UpdatedAt,
		}
		if record.Media != nil {
			payload["media"] = record.Media
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}
