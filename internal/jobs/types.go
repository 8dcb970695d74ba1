// Package jobs はアップロード後のメディア検査を非同期ジョブとして実行します。
package jobs

import "time"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// ProgressInfo は進捗の補足情報を表します。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MediaInfo は検査で得た画像の情報です。
type MediaInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Bytes  int64  `json:"bytes"`
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID     string       `json:"jobId"`
	Type      string       `json:"type"`
	Key       string       `json:"key"`
	Status    Status       `json:"status"`
	Progress  ProgressInfo `json:"progress"`
	Media     *MediaInfo   `json:"media,omitempty"`
	Error     *ErrorInfo   `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
}
