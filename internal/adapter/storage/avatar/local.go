package avatar

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	applog "rolechat/internal/platform/log"
)

// LocalStore 写入本地目录，由 /uploads/* 静态路由提供访问
type LocalStore struct {
	dir      string
	maxBytes int64
}

// NewLocalStore 创建本地存储并确保目录存在
func NewLocalStore(dir string, maxFileMB int) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	var maxBytes int64
	if maxFileMB > 0 {
		maxBytes = int64(maxFileMB) << 20
	}
	return &LocalStore{dir: dir, maxBytes: maxBytes}, nil
}

// Dir 存储目录
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save 返回 "uploads/<name>" 形式的相对引用
func (s *LocalStore) Save(ctx context.Context, ext string, r io.Reader, size int64) (string, error) {
	if s.maxBytes > 0 && size > s.maxBytes {
		return "", fmt.Errorf("file too large: %d bytes", size)
	}
	name := objectName(ext)
	full := filepath.Join(s.dir, name)

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	written, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("write file: %w", err)
	}

	applog.Info("[Avatar/Local] ✅ Saved", "file", name, "bytes", written)
	return "uploads/" + name, nil
}
