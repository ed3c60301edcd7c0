// Package zoho はZoho CRMとのOAuth連携とタスク同期を提供する。
// リフレッシュトークンの交換とCRMタスク取得のAPIクライアントを含む。
package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ErrInvalidToken はZoho APIがアクセストークンを無効として拒否したことを示す。
// 呼び出し元（Broker）はこれを契機に保存済みリフレッシュトークンを破棄する。
var ErrInvalidToken = errors.New("zoho: access token rejected as invalid")

// ClientConfig はZohoクライアントの設定。
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// リージョンごとのベースURL。テストでも差し替える。
	AccountsBase string // 例: https://accounts.zoho.com
	APIBase      string // 例: https://www.zohoapis.com
}

// Client はZohoのOAuthトークンエンドポイントとCRM APIのクライアント。
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(config ClientConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if config.AccountsBase == "" {
		config.AccountsBase = "https://accounts.zoho.com"
	}
	if config.APIBase == "" {
		config.APIBase = "https://www.zohoapis.com"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// AuthCodeURL はZohoの認可URLを生成する。
// stateには呼び出し元のbearerクレデンシャルをそのまま載せ、
// コールバックで再検証してsubjectを復元する。
func (c *Client) AuthCodeURL(state string) string {
	params := url.Values{
		"scope":         {"ZohoCRM.modules.tasks.READ"},
		"client_id":     {c.config.ClientID},
		"response_type": {"code"},
		"access_type":   {"offline"},
		"redirect_uri":  {c.config.RedirectURL},
		"state":         {state},
	}
	return c.config.AccountsBase + "/oauth/v2/auth?" + params.Encode()
}

// tokenResponse はZohoトークンエンドポイントのレスポンス。
// Zohoはエラー時もHTTP 200で{"error": "..."}を返すことがある。
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
}

// ExchangeCode は認可コードをリフレッシュトークンに交換する。
// 連携ハンドシェイクの最終ステップでのみ呼ばれる。
func (c *Client) ExchangeCode(ctx context.Context, code string) (refreshToken string, err error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"redirect_uri":  {c.config.RedirectURL},
	}

	resp, err := c.postToken(ctx, data)
	if err != nil {
		return "", err
	}
	if resp.RefreshToken == "" {
		return "", fmt.Errorf("empty refresh token in exchange response")
	}
	return resp.RefreshToken, nil
}

// RefreshAccessToken はリフレッシュトークンを短命のアクセストークンに交換する。
// アクセストークンは永続化されず、同期呼び出し1回ごとに取得し直す。
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}

	resp, err := c.postToken(ctx, data)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in refresh response")
	}
	return resp.AccessToken, nil
}

// postToken はトークンエンドポイントへのPOSTを実行する。
func (c *Client) postToken(ctx context.Context, data url.Values) (*tokenResponse, error) {
	endpoint := c.config.AccountsBase + "/oauth/v2/token"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	// Zohoは認可失敗をHTTP 200の{"error": "invalid_code"}で返す
	if tokenResp.Error != "" {
		return nil, fmt.Errorf("token exchange rejected: %s", tokenResp.Error)
	}

	return &tokenResp, nil
}

// CRMTask はZoho CRMから取得したタスクレコードを表す。
type CRMTask struct {
	ID          string
	Subject     string
	Status      string
	DueDate     string
	Description string
}

// crmTaskRecord はCRM APIのタスクレコードのレスポンス。
type crmTaskRecord struct {
	ID          string `json:"id"`
	Subject     string `json:"Subject"`
	Status      string `json:"Status"`
	DueDate     string `json:"Due_Date"`
	Description string `json:"Description"`
}

// crmErrorResponse はCRM APIのエラーレスポンス。
type crmErrorResponse struct {
	Code string `json:"code"`
}

// ListTasks はCRMのタスク一覧を取得する。
// アクセストークンが無効として拒否された場合はErrInvalidTokenを返す。
func (c *Client) ListTasks(ctx context.Context, accessToken string) ([]CRMTask, error) {
	endpoint := c.config.APIBase + "/crm/v2/Tasks"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create CRM request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Zoho CRM APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("CRM request failed: %w", err)
	}
	defer resp.Body.Close()

	// レコードが1件もない場合は204が返る
	if resp.StatusCode == http.StatusNoContent {
		return []CRMTask{}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read CRM response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		var errResp crmErrorResponse
		_ = json.Unmarshal(body, &errResp)
		c.logger.Warn("Zoho CRM APIがトークンを拒否しました",
			slog.String("code", errResp.Code),
		)
		return nil, ErrInvalidToken
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CRM request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data []crmTaskRecord `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse CRM response: %w", err)
	}

	tasks := make([]CRMTask, len(payload.Data))
	for i, rec := range payload.Data {
		tasks[i] = CRMTask{
			ID:          rec.ID,
			Subject:     rec.Subject,
			Status:      rec.Status,
			DueDate:     rec.DueDate,
			Description: rec.Description,
		}
	}

	return tasks, nil
}
