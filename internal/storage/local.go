// Package storage はアップロードされたメディアの保存先を提供します。
//
// オブジェクトはキー（"photos/<group>/<file>" 形式の相対パス）で識別し、
// ローカル実装ではルートディレクトリ配下のファイルとして保存します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/yourusername/photolog/internal/config"
)

// Kind はメディアの種類です。キーのフォルダ名を決めます。
type Kind string

const (
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

// DefaultPublicBase は公開ベース URL が未設定のときに使う配信パスです。
const DefaultPublicBase = "/media"

var (
	// ErrInvalidKey はキーがルート外を指す、または空であることを表します。
	ErrInvalidKey = errors.New("invalid object key")
	// ErrNotFound はオブジェクトが存在しないことを表します。
	ErrNotFound = errors.New("object not found")
)

// ObjectKey はアップロードファイルの保存キーを組み立てます。
// 開発環境では本番データと混ざらないよう "dev/" を前置します。
func ObjectKey(env config.Environment, filename, groupID string, kind Kind) (string, error) {
	name := sanitizeSegment(filepath.Base(strings.ReplaceAll(filename, "\\", "/")))
	group := sanitizeSegment(groupID)
	if name == "" || group == "" {
		return "", fmt.Errorf("%w: filename and group are required", ErrInvalidKey)
	}

	folder := "photos"
	if kind == KindVideo {
		folder = "videos"
	}
	key := folder + "/" + group + "/" + name
	if env == config.Development {
		key = "dev/" + key
	}
	return key, nil
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "/\\\x00") {
		return ""
	}
	return s
}

// Local はローカルファイルシステムに保存するストレージです。
type Local struct {
	root       string
	publicBase string
}

// NewLocal はルートディレクトリを作成して Local を返します。
func NewLocal(root, publicBaseURL string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	if base == "" {
		base = DefaultPublicBase
	}
	return &Local{root: abs, publicBase: base}, nil
}

// Save は r の内容をキーの位置に書き込み、書き込んだバイト数を返します。
// 一時ファイルに書いてからリネームするため、途中で失敗しても不完全なファイルは残りません。
func (l *Local) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	dst, err := l.resolve(key)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("write object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("commit object %s: %w", key, err)
	}
	return n, nil
}

// Open はオブジェクトを読み取り用に開きます。呼び出し側で Close してください。
func (l *Local) Open(key string) (*os.File, os.FileInfo, error) {
	p, err := l.resolve(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// Delete はオブジェクトを削除します。存在しない場合は何もしません。
func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// PublicURL はオブジェクトを配信する URL を返します。
// ファイル名の "#" や "?" が URL の区切りと解釈されないよう、キーはセグメントごとにエスケープします。
func (l *Local) PublicURL(key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return l.publicBase + "/" + strings.Join(segments, "/")
}

// Path はキーに対応するファイルパスを返します（ワーカーからの読み出し用）。
func (l *Local) Path(key string) (string, error) {
	return l.resolve(key)
}

// resolve はキーをルート配下の絶対パスに変換します。ルート外を指すキーは拒否します。
func (l *Local) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "\\\x00") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" || cleaned != "/"+strings.TrimLeft(key, "/") {
		return "", ErrInvalidKey
	}
	return filepath.Join(l.root, filepath.FromSlash(cleaned[1:])), nil
}
