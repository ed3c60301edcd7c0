// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, task, zoho, upload, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated       = "UNAUTHENTICATED"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeTaskNameRequired      = "TASK_NAME_REQUIRED"
	ErrCodeInvalidStatus         = "INVALID_STATUS"
	ErrCodeTaskNotFound          = "TASK_NOT_FOUND"
	ErrCodeZohoNotLinked         = "ZOHO_NOT_LINKED"
	ErrCodeZohoReconnectRequired = "ZOHO_RECONNECT_REQUIRED"
	ErrCodeTokenExchangeFailed   = "TOKEN_EXCHANGE_FAILED"
	ErrCodeUploadFailed          = "UPLOAD_FAILED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewUnauthenticatedError は認証失敗エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidRequestError は不正リクエストエラーを生成する。
// メッセージと対処方法はエンドポイントごとに指定する。
func NewInvalidRequestError(message, action string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   action,
	}
}

// NewTaskNameRequiredError はタスク名未指定エラーを生成する。
func NewTaskNameRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTaskNameRequired,
		Message:  "タスク名が指定されていません。",
		Category: "validation",
		Action:   "タスク名を入力してください。",
	}
}

// NewInvalidStatusError は無効なステータスエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには pending または completed を指定してください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
// 所有者不一致の場合も存在秘匿のため同一のエラーを返す。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "task",
		Action:   "タスクIDを確認してください。",
	}
}

// NewZohoNotLinkedError はZoho未連携エラーを生成する。
func NewZohoNotLinkedError() *APIError {
	return &APIError{
		Code:     ErrCodeZohoNotLinked,
		Message:  "Zohoアカウントが連携されていません。",
		Category: "zoho",
		Action:   "Zoho連携を開始してください。",
	}
}

// NewZohoReconnectRequiredError はZoho再連携要求エラーを生成する。
// 保存済みリフレッシュトークンがZoho側で失効した場合に返す。
func NewZohoReconnectRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeZohoReconnectRequired,
		Message:  "Zohoの認証情報が失効しました。",
		Category: "zoho",
		Action:   "reconnect",
	}
}

// NewTokenExchangeFailedError はトークン交換失敗エラーを生成する。
func NewTokenExchangeFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExchangeFailed,
		Message:  "Zohoとのトークン交換に失敗しました。",
		Category: "zoho",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUploadFailedError はアップロード失敗エラーを生成する。
func NewUploadFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  "ファイルのアップロードに失敗しました。",
		Category: "upload",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
