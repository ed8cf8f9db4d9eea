// Package chunker は参考資料テキストをインデックス単位のチャンクに分割する
package chunker

import (
	"fmt"
	"strings"
)

const (
	// DefaultChunkSize は1チャンクあたりのデフォルト単語数
	DefaultChunkSize = 500

	// DefaultOverlap は隣接チャンク間で重複させるデフォルト単語数
	DefaultOverlap = 50
)

// Chunk はテキストを空白区切りの単語ウィンドウに分割する
// ウィンドウはchunkSize単語で、chunkSize-overlap単語ずつ前進する
// 末尾の部分ウィンドウも空でなければ含まれる
// 境界は単語ベースであり、文や意味の区切りは考慮しない
func Chunk(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must not be negative, got %d", overlap)
	}
	// ストライドが0以下になると前進しない（無限ループまたは内容スキップ）
	if overlap >= chunkSize {
		return nil, fmt.Errorf("overlap %d must be less than chunk size %d", overlap, chunkSize)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	stride := chunkSize - overlap
	var chunks []string
	for start := 0; start < len(words); start += stride {
		end := start + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))

		// ウィンドウが末尾に到達したら、それ以降は既出内容の部分集合にしかならない
		if end == len(words) {
			break
		}
	}

	return chunks, nil
}

// ChunkDefault はデフォルトのウィンドウ設定で分割する
func ChunkDefault(text string) ([]string, error) {
	return Chunk(text, DefaultChunkSize, DefaultOverlap)
}
