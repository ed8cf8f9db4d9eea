// Package storage はアップロードファイルのバイナリ保存を提供する
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jinford/autograder/internal/core/indexing"
)

// DiskStore はローカルディスク上のオブジェクトストア
// キーはUUID+元拡張子の不透明な文字列で、元のファイル名には依存しない
type DiskStore struct {
	baseDir string
}

// NewDiskStore は保存先ディレクトリを作成して DiskStore を返す
func NewDiskStore(baseDir string) (*DiskStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &DiskStore{baseDir: baseDir}, nil
}

var _ indexing.ObjectStore = (*DiskStore)(nil)

// Put はデータを保存し、不透明なキーを返す
func (s *DiskStore) Put(data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	key := uuid.New().String() + ext

	path := filepath.Join(s.baseDir, key)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}

	return key, nil
}

// Get はキーに対応するデータを取得する
func (s *DiskStore) Get(key string) ([]byte, error) {
	// キーにパス区切りが含まれる場合はbaseDir外への参照になり得るため拒否する
	if key != filepath.Base(key) {
		return nil, fmt.Errorf("invalid object key: %q", key)
	}

	data, err := os.ReadFile(filepath.Join(s.baseDir, key))
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Delete はキーに対応するオブジェクトを削除する
func (s *DiskStore) Delete(key string) error {
	if key != filepath.Base(key) {
		return fmt.Errorf("invalid object key: %q", key)
	}
	if err := os.Remove(filepath.Join(s.baseDir, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
