package posts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore はプロセス内に投稿を保持する Store です。DATABASE_URL 未設定時とテストで使います。
type MemoryStore struct {
	mu    sync.RWMutex
	posts map[string]Post
	now   func() time.Time
}

// NewMemoryStore は空の MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts: make(map[string]Post),
		now:   time.Now,
	}
}

// List は条件に合う投稿を新しい順に返します。
func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]Post, error) {
	var start, end time.Time
	if opts.DateFilter != "" {
		var err error
		if start, end, err = ParseDateFilter(opts.DateFilter); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	matched := make([]Post, 0, len(s.posts))
	for _, p := range s.posts {
		if opts.matches(p, start, end) {
			matched = append(matched, clonePost(p))
		}
	}
	s.mu.RUnlock()

	// After 指定時はカーソルに近い側から limit 件を取るため、古い順で切り出してから反転する
	ascending := opts.After != nil
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Date.Equal(b.Date) {
			if ascending {
				return a.ID < b.ID
			}
			return a.ID > b.ID
		}
		if ascending {
			return a.Date.Before(b.Date)
		}
		return a.Date.After(b.Date)
	})
	if limit := opts.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	if ascending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	return matched, nil
}

// Get は ID で投稿を取得します。
func (s *MemoryStore) Get(_ context.Context, id string) (Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return clonePost(p), nil
}

// Create は投稿を保存します。
func (s *MemoryStore) Create(_ context.Context, in CreateInput) (Post, error) {
	p, err := newPost(in, s.now)
	if err != nil {
		return Post{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.posts[p.ID]; exists {
		return Post{}, fmt.Errorf("%w: %s", ErrConflict, p.ID)
	}
	s.posts[p.ID] = p
	return clonePost(p), nil
}

// Update は投稿の説明・写真・動画を更新します。
func (s *MemoryStore) Update(_ context.Context, id string, in UpdateInput) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	p = in.apply(p)
	if !hasMedia(p) {
		return Post{}, ErrNoMedia
	}
	s.posts[id] = p
	return clonePost(p), nil
}

// Delete は投稿を削除します。
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

// DateMetadata は年・年月ごとの投稿数を返します。
func (s *MemoryStore) DateMetadata(_ context.Context) (DateMetadata, error) {
	years := map[int]int{}
	months := map[[2]int]int{}

	s.mu.RLock()
	for _, p := range s.posts {
		d := p.Date.UTC()
		years[d.Year()]++
		months[[2]int{d.Year(), int(d.Month())}]++
	}
	s.mu.RUnlock()

	return buildMetadata(years, months), nil
}

// newPost は入力を検証し、ID と日時を補った Post を返します。
func newPost(in CreateInput, now func() time.Time) (Post, error) {
	p := Post{
		ID:          in.ID,
		Date:        in.Date,
		Author:      in.Author,
		Description: in.Description,
		Photos:      in.Photos,
		Videos:      in.Videos,
	}
	if !hasMedia(p) {
		return Post{}, ErrNoMedia
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Date.IsZero() {
		p.Date = now()
	}
	p.Date = p.Date.UTC()
	if p.Photos == nil {
		p.Photos = []PhotoAsset{}
	}
	return p, nil
}

func clonePost(p Post) Post {
	p.Photos = append([]PhotoAsset(nil), p.Photos...)
	if p.Photos == nil {
		p.Photos = []PhotoAsset{}
	}
	if p.Videos != nil {
		p.Videos = append([]string(nil), p.Videos...)
	}
	return p
}
