// Package avatar 角色头像存储
package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedExt 非图片扩展名
var ErrUnsupportedExt = errors.New("只允許上傳圖片")

var allowedExts = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
}

// Store 保存头像并返回引用：本地为相对路径，对象存储为完整 URL
type Store interface {
	Save(ctx context.Context, ext string, r io.Reader, size int64) (string, error)
}

// NormalizeExt 从文件名或扩展名得到小写扩展名，不是图片返回 ErrUnsupportedExt
func NormalizeExt(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		ext = strings.ToLower(strings.TrimPrefix(filename, "."))
	}
	if _, ok := allowedExts[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExt, ext)
	}
	return ext, nil
}

// ContentType 扩展名对应的 MIME 类型
func ContentType(ext string) string {
	if ct, ok := allowedExts[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

func objectName(ext string) string {
	return uuid.New().String() + "." + ext
}

// ResolveURL 相对引用拼接为绝对 URL，已是绝对 URL 的原样返回
func ResolveURL(baseURL, ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(ref, "/")
}
