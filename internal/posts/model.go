// Package posts は写真投稿の保存と API を提供します。
package posts

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// 寸法が分からない写真に使う既定のサイズ
const (
	DefaultPhotoWidth  = 800
	DefaultPhotoHeight = 600
)

var (
	// ErrNotFound は投稿が存在しないことを表します。
	ErrNotFound = errors.New("post not found")
	// ErrConflict は同じ ID の投稿が既に存在することを表します。
	ErrConflict = errors.New("post already exists")
	// ErrNoMedia は写真も動画も含まない投稿を作ろうとしたことを表します。
	ErrNoMedia = errors.New("at least one photo or video is required")
	// ErrInvalidDateFilter は date_filter の形式が不正であることを表します。
	ErrInvalidDateFilter = errors.New("invalid date filter")
)

// PhotoAsset は投稿に含まれる写真です。
type PhotoAsset struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// UnmarshalJSON は URL だけの文字列も受け付け、その場合は既定の寸法を補います。
func (p *PhotoAsset) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var url string
		if err := json.Unmarshal(data, &url); err != nil {
			return err
		}
		*p = PhotoAsset{URL: url, Width: DefaultPhotoWidth, Height: DefaultPhotoHeight}
		return nil
	}
	type plain PhotoAsset
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = PhotoAsset(v)
	return nil
}

// Post は 1 件の投稿です。
type Post struct {
	ID          string       `json:"id"`
	Date        time.Time    `json:"date"`
	Author      string       `json:"author,omitempty"`
	Description string       `json:"description,omitempty"`
	Photos      []PhotoAsset `json:"photos"`
	Videos      []string     `json:"videos,omitempty"`
}

// CreateInput は投稿作成時の入力です。ID と Date は省略時に生成されます。
type CreateInput struct {
	ID          string
	Date        time.Time
	Author      string
	Description string
	Photos      []PhotoAsset
	Videos      []string
}

// UpdateInput は投稿更新時の入力です。nil のフィールドは変更しません。
type UpdateInput struct {
	Description *string
	Photos      []PhotoAsset
	Videos      []string
}

func (in UpdateInput) apply(p Post) Post {
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Photos != nil {
		p.Photos = in.Photos
	}
	if in.Videos != nil {
		p.Videos = in.Videos
	}
	return p
}

// hasMedia は投稿が写真か動画を 1 つ以上持つかを返します。作成・更新の両方で要求します。
func hasMedia(p Post) bool {
	return len(p.Photos) > 0 || len(p.Videos) > 0
}

// DateMetadata は絞り込み UI 向けの年月ごとの投稿数です。
type DateMetadata struct {
	AvailableYears  []int          `json:"availableYears"`
	MonthsWithPosts map[int][]int  `json:"monthsWithPosts"`
	PostCounts      map[string]int `json:"postCounts"`
}
