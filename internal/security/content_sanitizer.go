// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は外部システム由来のテキストをサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// Zoho CRMのタスクはWeb UI経由で入力されるためHTML断片を含み得る。
// bluemondayのStrictPolicyで全てのタグと属性を除去し、
// プレーンテキストのみをAPI応答に通す。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は外部由来テキストのサニタイズ機能のインターフェースを定義する。
// CRMタスクのAPI応答時に使用される。
type ContentSanitizerService interface {
	// Sanitize はテキストからHTMLタグと属性を全て除去して返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは許可タグを一切持たないため、scriptやimgはもちろん
// 全てのマークアップが除去され、テキストノードのみが残る。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストからHTMLタグと属性を全て除去して返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
