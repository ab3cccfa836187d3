package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// PromptSanitizerService は寄付者名・寄付メッセージの無害化のインターフェースを定義する。
// 寄付メッセージはフィード経由の外部入力であり、生成プロンプトへ埋め込む前に
// HTMLタグを全て除去する。
type PromptSanitizerService interface {
	// Sanitize は入力からHTMLタグを除去し、実体参照を復元した
	// プレーンテキストを返す。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// promptSanitizer はPromptSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type promptSanitizer struct {
	policy *bluemonday.Policy
}

// NewPromptSanitizer はPromptSanitizerServiceの新しいインスタンスを生成する。
func NewPromptSanitizer() *promptSanitizer {
	return &promptSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLタグを除去したプレーンテキストを返す。
func (s *promptSanitizer) Sanitize(raw string) string {
	stripped := s.policy.Sanitize(raw)
	// StrictPolicyは実体参照へエスケープするため、プレーンテキストへ戻す
	return strings.TrimSpace(html.UnescapeString(stripped))
}
