// Package extract はアップロードされたドキュメントからプレーンテキストを抽出する
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jinford/autograder/internal/core/indexing"
)

// ErrUnsupportedType は未対応のファイル形式のエラー
var ErrUnsupportedType = errors.New("unsupported file type")

// Extractor は拡張子に応じてテキスト抽出を行う
type Extractor struct{}

// NewExtractor は新しい Extractor を返す
func NewExtractor() *Extractor {
	return &Extractor{}
}

var _ indexing.Extractor = (*Extractor)(nil)

// Extract はファイル内容と名前からプレーンテキストを抽出する
// 対応形式: pdf / docx / doc / txt（それ以外はErrUnsupportedType）
func (e *Extractor) Extract(data []byte, filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))

	switch ext {
	case "pdf":
		return extractPDF(data)
	case "docx", "doc":
		return extractDOCX(data)
	case "txt":
		return extractPlain(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
}
