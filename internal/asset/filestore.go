// Package asset はクレスト部品やアイコンなどの画像をローカルファイルシステムにキャッシュする。
package asset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/simbiat/fftracker/internal/crest"
)

// ErrInvalidPath はアセットルートの外を指す相対パスを示す。
var ErrInvalidPath = errors.New("asset path escapes root")

// URLValidator はダウンロード前にURLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// FileStore はアセットルート配下にファイルを保存するAssetStore実装。
type FileStore struct {
	root       string
	httpClient *http.Client
	maxSize    int64
	validator  URLValidator
	logger     *slog.Logger
}

// NewFileStore はFileStoreを生成する。
// httpClientはダウンロードに使用する（本番ではSSRF対策済みクライアントを渡す）。
func NewFileStore(root string, httpClient *http.Client, maxSize int64, logger *slog.Logger) *FileStore {
	return &FileStore{
		root:       root,
		httpClient: httpClient,
		maxSize:    maxSize,
		logger:     logger,
	}
}

// WithValidator はダウンロード前のURL検証を設定する。
func (s *FileStore) WithValidator(v URLValidator) *FileStore {
	s.validator = v
	return s
}

// resolve は相対パスを絶対パスに変換する。ルート外を指す場合はエラーを返す。
func (s *FileStore) resolve(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, relPath)
	}
	return filepath.Join(s.root, clean), nil
}

// Exists はファイルが存在するかを返す。
func (s *FileStore) Exists(_ context.Context, relPath string) bool {
	full, err := s.resolve(relPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}

// Download はURLの内容をrelPathに保存する。書き込みは一時ファイル経由で行う。
func (s *FileStore) Download(ctx context.Context, rawURL, relPath string) error {
	full, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	if s.validator != nil {
		if err := s.validator.ValidateURL(rawURL); err != nil {
			return fmt.Errorf("ダウンロードできないURLです: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("アセットのダウンロードに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("アセットのダウンロードに失敗しました: HTTP %d", resp.StatusCode)
	}

	return s.writeAtomic(full, func(w io.Writer) error {
		n, err := io.Copy(w, io.LimitReader(resp.Body, s.maxSize+1))
		if err != nil {
			return err
		}
		if n > s.maxSize {
			return fmt.Errorf("アセットのサイズが上限(%d bytes)を超えています", s.maxSize)
		}
		return nil
	})
}

// Merge は部品画像を順に重ね合わせ、PNGとしてrelPathに保存する。
// 出力サイズは最初の部品画像のサイズになる。
func (s *FileStore) Merge(_ context.Context, components []string, relPath string) error {
	if len(components) == 0 {
		return errors.New("合成する部品がありません")
	}
	full, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	var canvas *image.RGBA
	for _, component := range components {
		img, err := s.decode(component)
		if err != nil {
			return err
		}
		if canvas == nil {
			canvas = image.NewRGBA(img.Bounds())
		}
		draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Over)
	}

	return s.writeAtomic(full, func(w io.Writer) error {
		return png.Encode(w, canvas)
	})
}

func (s *FileStore) decode(relPath string) (image.Image, error) {
	full, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("部品画像の読み込みに失敗しました: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("部品画像のデコードに失敗しました (%s): %w", relPath, err)
	}
	return img, nil
}

// writeAtomic は同じディレクトリの一時ファイルに書き込んでからリネームする。
func (s *FileStore) writeAtomic(full string, write func(io.Writer) error) error {
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ディレクトリの作成に失敗しました: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("一時ファイルのクローズに失敗しました: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return fmt.Errorf("ファイルの保存に失敗しました: %w", err)
	}
	s.logger.Debug("アセットを保存しました", slog.String("path", full))
	return nil
}

// compile-time interface check
var _ crest.AssetStore = (*FileStore)(nil)
