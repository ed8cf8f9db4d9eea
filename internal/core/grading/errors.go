package grading

import (
	"errors"
	"fmt"
)

var (
	// ErrSubmissionNotFound はサブミッションが存在しない場合のエラー
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrAssignmentNotFound は課題が存在しない場合のエラー
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrGradeNotFound は採点結果が存在しない場合のエラー
	ErrGradeNotFound = errors.New("grade not found")

	// ErrRetrieval はEmbeddingまたはベクトル検索バックエンドの障害
	ErrRetrieval = errors.New("context retrieval failed")

	// ErrGeneration はLLMバックエンドの到達不能・レート制限超過
	ErrGeneration = errors.New("grade generation failed")

	// ErrPersistence は採点結果の書き込み失敗
	ErrPersistence = errors.New("grade persistence failed")
)

// MalformedResponseError はLLM出力が構造検証に失敗した場合のエラー
// Fieldは問題のあったフィールド名を保持する
type MalformedResponseError struct {
	Field  string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed grading response: field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed grading response: missing required field %q", e.Field)
}

// IsMalformedResponse はerrがMalformedResponseErrorかどうかを判定する
func IsMalformedResponse(err error) bool {
	var malformed *MalformedResponseError
	return errors.As(err, &malformed)
}
