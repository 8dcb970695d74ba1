package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id          TEXT PRIMARY KEY,
	date        TIMESTAMPTZ NOT NULL,
	author      TEXT,
	description TEXT,
	photos      JSONB NOT NULL DEFAULT '[]'::jsonb,
	videos      JSONB
);
CREATE INDEX IF NOT EXISTS posts_date_idx ON posts (date DESC);
`

const postColumns = `id, date, author, description, photos, videos`

// NewPool は接続プールを作成し、疎通を確認します。
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PostgresStore は PostgreSQL に投稿を保存する Store です。
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore は PostgresStore を作成します。
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// Migrate は posts テーブルが無ければ作成します。
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate posts: %w", err)
	}
	return nil
}

// List は条件に合う投稿を新しい順に返します。
func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]Post, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if opts.DateFilter != "" {
		start, end, err := ParseDateFilter(opts.DateFilter)
		if err != nil {
			return nil, err
		}
		where = append(where, "date >= "+arg(start)+" AND date < "+arg(end))
	}
	if opts.Before != nil {
		where = append(where, "date < "+arg(*opts.Before))
	}
	if opts.After != nil {
		where = append(where, "date > "+arg(*opts.After))
	}

	query := "SELECT " + postColumns + " FROM posts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	ascending := opts.After != nil
	if ascending {
		query += " ORDER BY date ASC, id ASC"
	} else {
		query += " ORDER BY date DESC, id DESC"
	}
	query += " LIMIT " + arg(opts.limit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	if ascending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if out == nil {
		out = []Post{}
	}
	return out, nil
}

// Get は ID で投稿を取得します。
func (s *PostgresStore) Get(ctx context.Context, id string) (Post, error) {
	return getPost(ctx, s.pool, id, false)
}

// Create は投稿を保存します。
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Post, error) {
	p, err := newPost(in, s.now)
	if err != nil {
		return Post{}, err
	}
	photos, videos, err := encodeMedia(p)
	if err != nil {
		return Post{}, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO posts (id, date, author, description, photos, videos)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Date, nullIfEmpty(p.Author), nullIfEmpty(p.Description), photos, videos)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Post{}, fmt.Errorf("%w: %s", ErrConflict, p.ID)
		}
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	return p, nil
}

// Update は行ロックを取ってから投稿を更新します。
func (s *PostgresStore) Update(ctx context.Context, id string, in UpdateInput) (Post, error) {
	var updated Post
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := getPost(ctx, tx, id, true)
		if err != nil {
			return err
		}
		updated = in.apply(p)
		if !hasMedia(updated) {
			return ErrNoMedia
		}
		photos, videos, err := encodeMedia(updated)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE posts SET description = $1, photos = $2, videos = $3 WHERE id = $4
		`, nullIfEmpty(updated.Description), photos, videos, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoMedia) {
			return Post{}, err
		}
		return Post{}, fmt.Errorf("update post: %w", err)
	}
	return updated, nil
}

// Delete は投稿を削除します。
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DateMetadata は年・年月ごとの投稿数を返します。
func (s *PostgresStore) DateMetadata(ctx context.Context) (DateMetadata, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			EXTRACT(YEAR FROM date AT TIME ZONE 'UTC')::int AS y,
			EXTRACT(MONTH FROM date AT TIME ZONE 'UTC')::int AS m,
			COUNT(*)::int
		FROM posts
		GROUP BY y, m
	`)
	if err != nil {
		return DateMetadata{}, fmt.Errorf("post metadata: %w", err)
	}
	defer rows.Close()

	years := map[int]int{}
	months := map[[2]int]int{}
	for rows.Next() {
		var y, m, n int
		if err := rows.Scan(&y, &m, &n); err != nil {
			return DateMetadata{}, err
		}
		years[y] += n
		months[[2]int{y, m}] = n
	}
	if err := rows.Err(); err != nil {
		return DateMetadata{}, fmt.Errorf("post metadata: %w", err)
	}
	return buildMetadata(years, months), nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPost(ctx context.Context, q querier, id string, forUpdate bool) (Post, error) {
	query := "SELECT " + postColumns + " FROM posts WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	p, err := scanPost(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

func scanPost(row pgx.Row) (Post, error) {
	var (
		p                   Post
		author, description *string
		photos, videos      []byte
	)
	if err := row.Scan(&p.ID, &p.Date, &author, &description, &photos, &videos); err != nil {
		return Post{}, err
	}
	if author != nil {
		p.Author = *author
	}
	if description != nil {
		p.Description = *description
	}
	p.Date = p.Date.UTC()

	p.Photos = []PhotoAsset{}
	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &p.Photos); err != nil {
			return Post{}, fmt.Errorf("decode photos of %s: %w", p.ID, err)
		}
	}
	if len(videos) > 0 {
		if err := json.Unmarshal(videos, &p.Videos); err != nil {
			return Post{}, fmt.Errorf("decode videos of %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func encodeMedia(p Post) (photos []byte, videos []byte, err error) {
	if p.Photos == nil {
		p.Photos = []PhotoAsset{}
	}
	if photos, err = json.Marshal(p.Photos); err != nil {
		return nil, nil, err
	}
	if p.Videos != nil {
		if videos, err = json.Marshal(p.Videos); err != nil {
			return nil, nil, err
		}
	}
	return photos, videos, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
