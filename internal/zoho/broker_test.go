package zoho

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/taskman/internal/model"
)

// --- モック ---

type mockClient struct {
	exchangeCodeFn func(ctx context.Context, code string) (string, error)
	refreshFn      func(ctx context.Context, refreshToken string) (string, error)
	listTasksFn    func(ctx context.Context, accessToken string) ([]CRMTask, error)

	refreshCalls int
	listCalls    int
}

func (m *mockClient) AuthCodeURL(state string) string {
	return "https://accounts.zoho.com/oauth/v2/auth?state=" + state
}

func (m *mockClient) ExchangeCode(ctx context.Context, code string) (string, error) {
	return m.exchangeCodeFn(ctx, code)
}

func (m *mockClient) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	m.refreshCalls++
	return m.refreshFn(ctx, refreshToken)
}

func (m *mockClient) ListTasks(ctx context.Context, accessToken string) ([]CRMTask, error) {
	m.listCalls++
	return m.listTasksFn(ctx, accessToken)
}

type mockAccountRepo struct {
	accounts map[string]*model.Account
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{accounts: map[string]*model.Account{}}
}

func (m *mockAccountRepo) FindBySubjectID(ctx context.Context, subjectID string) (*model.Account, error) {
	return m.accounts[subjectID], nil
}

func (m *mockAccountRepo) Upsert(ctx context.Context, account *model.Account) (*model.Account, error) {
	m.accounts[account.SubjectID] = account
	return account, nil
}

func (m *mockAccountRepo) UpdateZohoRefreshToken(ctx context.Context, subjectID string, token *string) error {
	account, ok := m.accounts[subjectID]
	if !ok {
		return errors.New("account not found")
	}
	account.ZohoRefreshToken = token
	return nil
}

func linkedRepo(subjectID, token string) *mockAccountRepo {
	repo := newMockAccountRepo()
	repo.accounts[subjectID] = &model.Account{
		SubjectID:        subjectID,
		Email:            "user@example.com",
		ZohoRefreshToken: &token,
	}
	return repo
}

// --- テスト ---

// TestBroker_SyncTasks_NotLinked は未連携のsubjectの同期が外部I/Oなしで
// NotLinkedで即時失敗することを検証する。
func TestBroker_SyncTasks_NotLinked(t *testing.T) {
	repo := newMockAccountRepo()
	repo.accounts["subject-1"] = &model.Account{SubjectID: "subject-1"}
	client := &mockClient{}
	broker := NewBroker(client, repo)

	_, err := broker.SyncTasks(context.Background(), "subject-1")
	if err == nil {
		t.Fatal("expected error for unlinked subject, got nil")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeZohoNotLinked {
		t.Errorf("expected ZOHO_NOT_LINKED error, got %v", err)
	}
	if client.refreshCalls != 0 || client.listCalls != 0 {
		t.Error("unlinked sync must not reach the Zoho API")
	}
}

// TestBroker_SyncTasks_Success は連携済みsubjectの同期で毎回新しい
// アクセストークンへの交換が行われることを検証する。
func TestBroker_SyncTasks_Success(t *testing.T) {
	repo := linkedRepo("subject-1", "refresh-1")
	client := &mockClient{
		refreshFn: func(ctx context.Context, refreshToken string) (string, error) {
			if refreshToken != "refresh-1" {
				t.Errorf("refreshToken = %q, want refresh-1", refreshToken)
			}
			return "access-1", nil
		},
		listTasksFn: func(ctx context.Context, accessToken string) ([]CRMTask, error) {
			if accessToken != "access-1" {
				t.Errorf("accessToken = %q, want access-1", accessToken)
			}
			return []CRMTask{{ID: "z1", Subject: "Call customer"}}, nil
		},
	}
	broker := NewBroker(client, repo)

	tasks, err := broker.SyncTasks(context.Background(), "subject-1")
	if err != nil {
		t.Fatalf("SyncTasks returned error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Subject != "Call customer" {
		t.Errorf("tasks = %+v, want the CRM task", tasks)
	}

	// アクセストークンはキャッシュされず、2回目も交換が走る
	if _, err := broker.SyncTasks(context.Background(), "subject-1"); err != nil {
		t.Fatalf("second SyncTasks returned error: %v", err)
	}
	if client.refreshCalls != 2 {
		t.Errorf("refresh calls = %d, want 2 (no caching)", client.refreshCalls)
	}
}

// TestBroker_SyncTasks_SanitizesCRMText はCRM由来のテキストから
// HTMLが除去されることを検証する。
func TestBroker_SyncTasks_SanitizesCRMText(t *testing.T) {
	repo := linkedRepo("subject-1", "refresh-1")
	client := &mockClient{
		refreshFn: func(ctx context.Context, refreshToken string) (string, error) {
			return "access-1", nil
		},
		listTasksFn: func(ctx context.Context, accessToken string) ([]CRMTask, error) {
			return []CRMTask{{
				ID:          "z1",
				Subject:     `<script>alert("x")</script>Call customer`,
				Description: `<b>urgent</b> follow up`,
			}}, nil
		},
	}
	broker := NewBroker(client, repo)

	tasks, err := broker.SyncTasks(context.Background(), "subject-1")
	if err != nil {
		t.Fatalf("SyncTasks returned error: %v", err)
	}
	if tasks[0].Subject != "Call customer" {
		t.Errorf("Subject = %q, want script stripped", tasks[0].Subject)
	}
	if tasks[0].Description != "urgent follow up" {
		t.Errorf("Description = %q, want tags stripped", tasks[0].Description)
	}
}

// TestBroker_SyncTasks_InvalidTokenClearsCredential はCRM APIの
// トークン拒否で保存済みリフレッシュトークンがクリアされ、
// 以降の同期が交換を試みずNotLinkedで失敗することを検証する。
func TestBroker_SyncTasks_InvalidTokenClearsCredential(t *testing.T) {
	repo := linkedRepo("subject-1", "stale-refresh")
	client := &mockClient{
		refreshFn: func(ctx context.Context, refreshToken string) (string, error) {
			return "stale-access", nil
		},
		listTasksFn: func(ctx context.Context, accessToken string) ([]CRMTask, error) {
			return nil, ErrInvalidToken
		},
	}
	broker := NewBroker(client, repo)

	_, err := broker.SyncTasks(context.Background(), "subject-1")
	if err == nil {
		t.Fatal("expected error for rejected token, got nil")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeZohoReconnectRequired {
		t.Fatalf("expected ZOHO_RECONNECT_REQUIRED error, got %v", err)
	}
	if apiErr.Action != "reconnect" {
		t.Errorf("Action = %q, want %q", apiErr.Action, "reconnect")
	}

	// 保存済みリフレッシュトークンが同期的にクリアされていること
	if repo.accounts["subject-1"].ZohoRefreshToken != nil {
		t.Error("expected stored refresh token to be cleared")
	}

	// 2回目の同期は無効な交換を再試行せず、NotLinkedで即時失敗する
	refreshCallsBefore := client.refreshCalls
	_, err = broker.SyncTasks(context.Background(), "subject-1")
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeZohoNotLinked {
		t.Errorf("expected ZOHO_NOT_LINKED on second sync, got %v", err)
	}
	if client.refreshCalls != refreshCallsBefore {
		t.Error("second sync must not attempt another token exchange")
	}
}

// TestBroker_SyncTasks_ExchangeFailureKeepsCredential はトークン交換の
// 失敗では保存済みリフレッシュトークンがクリアされないことを検証する。
func TestBroker_SyncTasks_ExchangeFailureKeepsCredential(t *testing.T) {
	repo := linkedRepo("subject-1", "refresh-1")
	client := &mockClient{
		refreshFn: func(ctx context.Context, refreshToken string) (string, error) {
			return "", errors.New("token endpoint unreachable")
		},
	}
	broker := NewBroker(client, repo)

	_, err := broker.SyncTasks(context.Background(), "subject-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTokenExchangeFailed {
		t.Fatalf("expected TOKEN_EXCHANGE_FAILED error, got %v", err)
	}

	// 一時的な交換失敗で連携は解除しない
	if repo.accounts["subject-1"].ZohoRefreshToken == nil {
		t.Error("refresh token must survive a transient exchange failure")
	}
}

// TestBroker_Link_StoresRefreshToken は連携完了でリフレッシュトークンが
// アカウントに保存されることを検証する。
func TestBroker_Link_StoresRefreshToken(t *testing.T) {
	repo := newMockAccountRepo()
	repo.accounts["subject-1"] = &model.Account{SubjectID: "subject-1"}
	client := &mockClient{
		exchangeCodeFn: func(ctx context.Context, code string) (string, error) {
			if code != "auth-code-1" {
				t.Errorf("code = %q, want auth-code-1", code)
			}
			return "refresh-new", nil
		},
	}
	broker := NewBroker(client, repo)

	if err := broker.Link(context.Background(), "subject-1", "auth-code-1"); err != nil {
		t.Fatalf("Link returned error: %v", err)
	}

	stored := repo.accounts["subject-1"].ZohoRefreshToken
	if stored == nil || *stored != "refresh-new" {
		t.Errorf("stored refresh token = %v, want refresh-new", stored)
	}
}

// TestBroker_Link_ExchangeFailure は交換失敗がTokenExchangeFailedとして
// 返り、何も保存されないことを検証する。
func TestBroker_Link_ExchangeFailure(t *testing.T) {
	repo := newMockAccountRepo()
	repo.accounts["subject-1"] = &model.Account{SubjectID: "subject-1"}
	client := &mockClient{
		exchangeCodeFn: func(ctx context.Context, code string) (string, error) {
			return "", errors.New("invalid_code")
		},
	}
	broker := NewBroker(client, repo)

	err := broker.Link(context.Background(), "subject-1", "bad-code")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTokenExchangeFailed {
		t.Fatalf("expected TOKEN_EXCHANGE_FAILED error, got %v", err)
	}
	if repo.accounts["subject-1"].ZohoRefreshToken != nil {
		t.Error("failed link must not store a refresh token")
	}
}

// TestBroker_Linked は連携状態の問い合わせを検証する。
func TestBroker_Linked(t *testing.T) {
	repo := linkedRepo("linked-subject", "refresh-1")
	repo.accounts["unlinked-subject"] = &model.Account{SubjectID: "unlinked-subject"}
	broker := NewBroker(&mockClient{}, repo)

	linked, err := broker.Linked(context.Background(), "linked-subject")
	if err != nil || !linked {
		t.Errorf("Linked(linked-subject) = %v, %v; want true, nil", linked, err)
	}

	linked, err = broker.Linked(context.Background(), "unlinked-subject")
	if err != nil || linked {
		t.Errorf("Linked(unlinked-subject) = %v, %v; want false, nil", linked, err)
	}

	linked, err = broker.Linked(context.Background(), "no-such-subject")
	if err != nil || linked {
		t.Errorf("Linked(no-such-subject) = %v, %v; want false, nil", linked, err)
	}
}
