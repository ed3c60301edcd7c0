// Package model はドメインモデルを定義する。
package model

import "time"

// Account はIdPのsubjectに紐づくローカルアカウントを表す。
// 初回ログイン成功時に遅延作成され、以降のログインでemailのみ更新される。
type Account struct {
	SubjectID        string
	Email            string
	SignInProvider   string
	ZohoRefreshToken *string // Zoho連携時のみ設定。連携解除・失効時はnil。
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ZohoLinked はZohoリフレッシュトークンが保存済みかどうかを返す。
func (a *Account) ZohoLinked() bool {
	return a.ZohoRefreshToken != nil && *a.ZohoRefreshToken != ""
}
