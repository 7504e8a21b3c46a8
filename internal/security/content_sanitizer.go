// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は会話メッセージのテキストをサニタイズし、
// 保存・表示時のXSSリスクからユーザーを保護する。
// 会話内容はプレーンテキストとして扱うため、bluemondayの
// StrictPolicyで全HTMLタグを除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は会話コンテンツのサニタイズ機能のインターフェースを定義する。
// ユーザー発話およびエージェント回答の保存前に使用される。
type ContentSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去したテキストを返す。
	// script, iframe, styleタグおよびon*イベント属性を含む一切のマークアップを許可しない。
	// 前後の空白はトリムされる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 会話メッセージはHTMLとしてレンダリングされることがないため、
// タグを一切許可しないStrictPolicyを使用する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からすべてのHTMLタグを除去したテキストを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
