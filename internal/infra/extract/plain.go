package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain はテキストファイルの内容をUTF-8として返す
// UTF-8として不正なバイト列はLatin-1とみなしてデコードする
func extractPlain(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	// Latin-1は全バイト値が1:1でU+0000..U+00FFに対応するため失敗しない
	var sb strings.Builder
	sb.Grow(len(data))
	for _, b := range data {
		sb.WriteRune(rune(b))
	}
	return sb.String(), nil
}
