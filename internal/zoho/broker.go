package zoho

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
	"github.com/hitoshi/taskman/internal/security"
)

// ClientInterface はBrokerが必要とするZohoクライアントのインターフェース。
type ClientInterface interface {
	// AuthCodeURL はZohoの認可URLを生成する。
	AuthCodeURL(state string) string
	// ExchangeCode は認可コードをリフレッシュトークンに交換する。
	ExchangeCode(ctx context.Context, code string) (string, error)
	// RefreshAccessToken はリフレッシュトークンをアクセストークンに交換する。
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
	// ListTasks はCRMのタスク一覧を取得する。
	ListTasks(ctx context.Context, accessToken string) ([]CRMTask, error)
}

// Broker はアカウントごとのZoho認証情報のライフサイクルを管理する。
//
// 状態はアカウントのリフレッシュトークンの有無で決まる:
//   - 未連携: トークンがnil。同期はNotLinkedで即時失敗する（外部I/Oなし）。
//   - 連携済み: 同期のたびにリフレッシュトークンを新しいアクセストークンに交換する。
//   - 連携済み→未連携: CRM APIがアクセストークンを無効として拒否した時点で
//     保存済みリフレッシュトークンを同期的にクリアし、再連携を要求する。
//
// アクセストークンはリクエストをまたいでキャッシュしない。
type Broker struct {
	client      ClientInterface
	accountRepo repository.AccountRepository
	sanitizer   security.ContentSanitizerService
}

// NewBroker はBrokerを生成する。
func NewBroker(client ClientInterface, accountRepo repository.AccountRepository) *Broker {
	return &Broker{
		client:      client,
		accountRepo: accountRepo,
		sanitizer:   security.NewContentSanitizer(),
	}
}

// AuthCodeURL はZohoの認可URLを生成する。
func (b *Broker) AuthCodeURL(state string) string {
	return b.client.AuthCodeURL(state)
}

// Link は認可コードをリフレッシュトークンに交換し、アカウントに保存する。
// 連携ハンドシェイクは再開不可能で、失敗した場合は最初からやり直す。
func (b *Broker) Link(ctx context.Context, subjectID, code string) error {
	refreshToken, err := b.client.ExchangeCode(ctx, code)
	if err != nil {
		slog.Error("Zoho認可コードの交換に失敗しました",
			slog.String("subject_id", subjectID),
			slog.String("error", err.Error()),
		)
		return model.NewTokenExchangeFailedError()
	}

	if err := b.accountRepo.UpdateZohoRefreshToken(ctx, subjectID, &refreshToken); err != nil {
		return fmt.Errorf("failed to store zoho refresh token: %w", err)
	}

	slog.Info("Zoho連携が完了しました", slog.String("subject_id", subjectID))
	return nil
}

// Linked は指定subjectのZoho連携状態を返す。
func (b *Broker) Linked(ctx context.Context, subjectID string) (bool, error) {
	account, err := b.accountRepo.FindBySubjectID(ctx, subjectID)
	if err != nil {
		return false, fmt.Errorf("failed to find account: %w", err)
	}
	return account != nil && account.ZohoLinked(), nil
}

// SyncTasks はZoho CRMからタスク一覧を取得する。
//
// 未連携の場合はNotLinkedで即時失敗する。連携済みの場合は保存済み
// リフレッシュトークンをその場でアクセストークンに交換し（交換失敗は
// TokenExchangeFailedで終端、リトライしない）、CRM APIを呼び出す。
// CRM APIがトークンを無効として拒否した場合のみ、保存済みリフレッシュ
// トークンをクリアしてReconnectRequiredを返す。以降の同期は交換を
// 試みずNotLinkedで失敗する。
func (b *Broker) SyncTasks(ctx context.Context, subjectID string) ([]CRMTask, error) {
	account, err := b.accountRepo.FindBySubjectID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil || !account.ZohoLinked() {
		return nil, model.NewZohoNotLinkedError()
	}

	accessToken, err := b.client.RefreshAccessToken(ctx, *account.ZohoRefreshToken)
	if err != nil {
		slog.Error("Zohoアクセストークンの取得に失敗しました",
			slog.String("subject_id", subjectID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewTokenExchangeFailedError()
	}

	tasks, err := b.client.ListTasks(ctx, accessToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			// 失効した認証情報は自己修復としてその場で破棄する
			if clearErr := b.accountRepo.UpdateZohoRefreshToken(ctx, subjectID, nil); clearErr != nil {
				slog.Error("失効したZohoリフレッシュトークンのクリアに失敗しました",
					slog.String("subject_id", subjectID),
					slog.String("error", clearErr.Error()),
				)
			}
			slog.Warn("Zoho認証情報が失効したため連携を解除しました",
				slog.String("subject_id", subjectID),
			)
			return nil, model.NewZohoReconnectRequiredError()
		}
		return nil, fmt.Errorf("failed to list zoho tasks: %w", err)
	}

	// CRM側のテキストはHTMLを含み得るため、返す前に全て除去する
	for i := range tasks {
		tasks[i].Subject = b.sanitizer.Sanitize(tasks[i].Subject)
		tasks[i].Description = b.sanitizer.Sanitize(tasks[i].Description)
	}

	return tasks, nil
}
