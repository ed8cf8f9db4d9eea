package grading

import (
	"fmt"
	"strings"
)

// gradingInstructions は採点用の固定インストラクションブロック
// ルーブリックと提供コンテキストのみに基づく保守的な採点と、
// 純粋なJSON出力（コードフェンス・前後の散文なし）を指示する
const gradingInstructions = `You are an expert grading assistant for academic submissions.

Your task is to grade student submissions based STRICTLY on:
1. The provided rubric
2. The reference context provided
3. Conservative, evidence-based assessment

CRITICAL RULES:
- Follow the rubric criteria EXACTLY
- Use ONLY the retrieved reference context for verification
- Deduct points conservatively - prefer undergrading to overgrading
- Do NOT award points for claims not supported by the submission
- Do NOT hallucinate criteria not in the rubric
- All feedback must be grounded in either the rubric or reference documents

OUTPUT FORMAT:
You MUST return ONLY valid JSON with this exact structure:
{
  "score": <integer>,
  "breakdown": {
    "criterion_1": {"points": <int>, "max_points": <int>, "comment": "<string>"},
    "criterion_2": {"points": <int>, "max_points": <int>, "comment": "<string>"}
  },
  "feedback": "<overall feedback string>",
  "citations": [
    {"reference_id": <int>, "text": "<quoted text>", "relevance": "<why cited>"}
  ]
}

DO NOT include any text outside this JSON structure.
DO NOT use markdown code blocks.
DO NOT add commentary before or after the JSON.`

// BuildGradingPrompt は採点プロンプトを決定的に構築する
// 参考コンテキストは検索順の番号付きリストとして描画し、
// 番号がモデルの安定した引用ハンドルになる
func BuildGradingPrompt(gctx *Context) (string, error) {
	rubricJSON, err := gctx.Rubric.Indent()
	if err != nil {
		return "", fmt.Errorf("failed to serialize rubric: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(gradingInstructions)
	sb.WriteString("\n\n")

	sb.WriteString("Grade the following submission.\n\n")

	sb.WriteString("RUBRIC:\n")
	sb.WriteString(rubricJSON)
	sb.WriteString("\n\n")

	sb.WriteString("REFERENCE CONTEXT:\n")
	if len(gctx.Chunks) > 0 {
		for i, chunk := range gctx.Chunks {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(fmt.Sprintf("[Reference %d]: %s", i+1, chunk.Text))
		}
	} else {
		sb.WriteString("(no reference context available)")
	}
	sb.WriteString("\n\n")

	sb.WriteString("SUBMISSION TO GRADE:\n")
	sb.WriteString(gctx.SubmissionText)
	sb.WriteString("\n\n")

	sb.WriteString("Provide your grading in the required JSON format.")

	return sb.String(), nil
}
