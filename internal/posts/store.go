package posts

import (
	"context"
	"sort"
	"strconv"
)

// Store は投稿の永続化を抽象化します。
type Store interface {
	List(ctx context.Context, opts ListOptions) ([]Post, error)
	Get(ctx context.Context, id string) (Post, error)
	Create(ctx context.Context, in CreateInput) (Post, error)
	Update(ctx context.Context, id string, in UpdateInput) (Post, error)
	Delete(ctx context.Context, id string) error
	DateMetadata(ctx context.Context) (DateMetadata, error)
}

// buildMetadata は日付の一覧から DateMetadata を集計します。
func buildMetadata(years map[int]int, months map[[2]int]int) DateMetadata {
	meta := DateMetadata{
		AvailableYears:  []int{},
		MonthsWithPosts: map[int][]int{},
		PostCounts:      map[string]int{},
	}
	for y, n := range years {
		meta.AvailableYears = append(meta.AvailableYears, y)
		meta.PostCounts[strconv.Itoa(y)] = n
	}
	sort.Sort(sort.Reverse(sort.IntSlice(meta.AvailableYears)))

	for ym, n := range months {
		y, m := ym[0], ym[1]
		meta.MonthsWithPosts[y] = append(meta.MonthsWithPosts[y], m)
		meta.PostCounts[yearMonthKey(y, m)] = n
	}
	for y := range meta.MonthsWithPosts {
		sort.Ints(meta.MonthsWithPosts[y])
	}
	return meta
}

func yearMonthKey(y, m int) string {
	mm := strconv.Itoa(m)
	if m < 10 {
		mm = "0" + mm
	}
	return strconv.Itoa(y) + "-" + mm
}
