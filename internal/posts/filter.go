package posts

import (
	"fmt"
	"time"
)

const (
	// DefaultLimit は一覧の既定件数です。
	DefaultLimit = 20
	// MaxLimit は一覧で一度に返す最大件数です。
	MaxLimit = 100
)

// ListOptions は一覧取得の条件です。
//
// Before を指定すると、その日時より古い投稿（次のページ）を返します。
// After を指定すると、その日時より新しい投稿（前のページ）を返します。
// どちらの場合も結果は新しい順に並びます。
type ListOptions struct {
	Limit      int
	Before     *time.Time
	After      *time.Time
	DateFilter string
}

// limit は既定値と上限を適用した件数を返します。
func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return DefaultLimit
	case o.Limit > MaxLimit:
		return MaxLimit
	default:
		return o.Limit
	}
}

// ParseDateFilter は "YYYY"・"YYYY-MM"・"YYYY-MM-DD" を UTC の半開区間 [start, end) に変換します。
func ParseDateFilter(filter string) (start, end time.Time, err error) {
	switch len(filter) {
	case len("2006"):
		start, err = time.Parse("2006", filter)
		end = start.AddDate(1, 0, 0)
	case len("2006-01"):
		start, err = time.Parse("2006-01", filter)
		end = start.AddDate(0, 1, 0)
	case len("2006-01-02"):
		start, err = time.Parse("2006-01-02", filter)
		end = start.AddDate(0, 0, 1)
	default:
		err = fmt.Errorf("unsupported length %d", len(filter))
	}
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFilter, filter)
	}
	return start.UTC(), end.UTC(), nil
}

// matches はメモリストアでの絞り込みに使います。
func (o ListOptions) matches(p Post, start, end time.Time) bool {
	if !start.IsZero() && (p.Date.Before(start) || !p.Date.Before(end)) {
		return false
	}
	if o.Before != nil && !p.Date.Before(*o.Before) {
		return false
	}
	if o.After != nil && !p.Date.After(*o.After) {
		return false
	}
	return true
}
