package jobs

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage は画像として解釈できないファイルであることを表します。
var ErrUnsupportedImage = errors.New("unsupported image")

// InspectImage は画像ファイルのヘッダーだけを読み、寸法と形式を返します。
func InspectImage(path string) (*MediaInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return &MediaInfo{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
		Bytes:  stat.Size(),
	}, nil
}
