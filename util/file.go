package util

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// RemoveFile 删除文件，文件已不存在时不返回错误
func RemoveFile(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// FilesOlderThan 列出目录下修改时间早于 before 的普通文件（不递归）
// 目录不存在时返回空
func FilesOlderThan(dir string, before time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// 读取期间被并发删除
			continue
		}
		if info.ModTime().Before(before) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
