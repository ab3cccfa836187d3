package generation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/donaman/internal/model"
)

// 動画ファイル操作のエラー。HTTP境界でAPIErrorへ変換する。
var (
	// ErrInvalidFilename はパス走査や拡張子不一致など不正なファイル名を示す。
	ErrInvalidFilename = errors.New("invalid video filename")
	// ErrVideoNotFound は指定された動画が存在しないことを示す。
	ErrVideoNotFound = errors.New("video not found")
)

// VideoStore は生成済み動画ファイルの保存・列挙・削除を提供する。
// ファイル名は celebration_<unixtime>_<連番>.mp4 で採番する。
// 外部から与えられるファイル名はResolveで検証し、保存ディレクトリ外への
// アクセスを禁止する。
type VideoStore struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	counter int
}

// NewVideoStore はVideoStoreの新しいインスタンスを生成する。
// 保存ディレクトリが無ければ作成する。
func NewVideoStore(dir string, logger *slog.Logger) (*VideoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("動画ディレクトリの作成に失敗しました: %w", err)
	}
	return &VideoStore{dir: dir, logger: logger}, nil
}

// Dir は保存ディレクトリのパスを返す。
func (s *VideoStore) Dir() string {
	return s.dir
}

// Save は動画データを新しいファイルへ保存し、ファイル名を返す。
func (s *VideoStore) Save(data []byte) (string, error) {
	s.mu.Lock()
	s.counter++
	filename := fmt.Sprintf("celebration_%d_%d.mp4", time.Now().Unix(), s.counter)
	s.mu.Unlock()

	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("動画ファイルの保存に失敗しました: %w", err)
	}

	s.logger.Info("動画ファイルを保存しました",
		slog.String("filename", filename),
		slog.Int("size_bytes", len(data)),
	)
	return filename, nil
}

// List は保存済み動画のメタデータを新しい順で返す。
func (s *VideoStore) List() ([]model.VideoInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("動画ディレクトリの読み取りに失敗しました: %w", err)
	}

	videos := make([]model.VideoInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mp4") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		videos = append(videos, model.VideoInfo{
			Filename:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(videos, func(i, j int) bool {
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
	return videos, nil
}

// Latest は最新の動画メタデータを返す。動画が無い場合はfalseを返す。
func (s *VideoStore) Latest() (model.VideoInfo, bool, error) {
	videos, err := s.List()
	if err != nil {
		return model.VideoInfo{}, false, err
	}
	if len(videos) == 0 {
		return model.VideoInfo{}, false, nil
	}
	return videos[0], true, nil
}

// Resolve はファイル名を検証し、保存ディレクトリ内の絶対パスを返す。
// パス区切りや親ディレクトリ参照を含む名前、.mp4以外はErrInvalidFilename。
// 存在しないファイルはErrVideoNotFound。
func (s *VideoStore) Resolve(filename string) (string, error) {
	if filename == "" ||
		strings.ContainsAny(filename, `/\`) ||
		strings.Contains(filename, "..") ||
		!strings.HasSuffix(filename, ".mp4") ||
		filepath.Base(filename) != filename {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrVideoNotFound, filename)
		}
		return "", fmt.Errorf("動画ファイルの確認に失敗しました: %w", err)
	}
	return path, nil
}

// Delete は指定された動画ファイルを削除する。
func (s *VideoStore) Delete(filename string) error {
	path, err := s.Resolve(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("動画ファイルの削除に失敗しました: %w", err)
	}
	s.logger.Info("動画ファイルを削除しました",
		slog.String("filename", filename),
	)
	return nil
}
