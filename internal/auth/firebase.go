// Package auth はIDトークン検証とアカウントの遅延作成を提供する。
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultCertsURL はFirebase IDトークン署名用のX.509証明書エンドポイント。
const defaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

// Claims は検証済みIDトークンから取り出した呼び出し元情報を表す。
type Claims struct {
	SubjectID      string
	Email          string
	SignInProvider string
}

// TokenVerifier はbearerクレデンシャルの検証インターフェース。
// リクエストごとに呼び出され、サーバー側で検証結果をキャッシュしない。
type TokenVerifier interface {
	// Verify はIDトークンを検証し、呼び出し元のクレームを返す。
	// 欠落・不正・期限切れ・署名不一致はすべてエラーとなる。
	Verify(ctx context.Context, idToken string) (*Claims, error)
}

// FirebaseVerifierConfig はFirebaseVerifierの設定。
type FirebaseVerifierConfig struct {
	ProjectID string

	// テスト用にオーバーライド可能なURL
	CertsURL string
}

// FirebaseVerifier はFirebase Authentication発行のIDトークンを検証する。
// Googleの公開証明書をkidごとに取得し、RS256署名とaud/iss/exp/subを確認する。
type FirebaseVerifier struct {
	config     FirebaseVerifierConfig
	httpClient *http.Client

	mu          sync.RWMutex
	certs       map[string]string // kid -> PEM証明書
	certsExpiry time.Time
}

// NewFirebaseVerifier はFirebaseVerifierを生成する。
func NewFirebaseVerifier(config FirebaseVerifierConfig, httpClient *http.Client) *FirebaseVerifier {
	if config.CertsURL == "" {
		config.CertsURL = defaultCertsURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &FirebaseVerifier{
		config:     config,
		httpClient: httpClient,
	}
}

// Verify はIDトークンを検証し、呼び出し元のクレームを返す。
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*Claims, error) {
	if idToken == "" {
		return nil, fmt.Errorf("ID token is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.config.ProjectID),
		jwt.WithIssuer("https://securetoken.google.com/"+v.config.ProjectID),
		jwt.WithExpirationRequired(),
	)

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token header is missing kid")
		}
		return v.publicKeyForKid(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("ID token is invalid")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("ID token has no subject")
	}

	result := &Claims{SubjectID: sub}
	if email, ok := claims["email"].(string); ok {
		result.Email = email
	}
	// sign_in_providerはfirebaseクレーム配下にネストされている
	if fb, ok := claims["firebase"].(map[string]interface{}); ok {
		if provider, ok := fb["sign_in_provider"].(string); ok {
			result.SignInProvider = provider
		}
	}

	return result, nil
}

// publicKeyForKid は指定kidに対応するRSA公開鍵を返す。
// 証明書はCache-Controlのmax-ageに従ってキャッシュする。
func (v *FirebaseVerifier) publicKeyForKid(ctx context.Context, kid string) (interface{}, error) {
	v.mu.RLock()
	pemCert, ok := v.certs[kid]
	fresh := time.Now().Before(v.certsExpiry)
	v.mu.RUnlock()

	if !ok || !fresh {
		if err := v.refreshCerts(ctx); err != nil {
			return nil, err
		}
		v.mu.RLock()
		pemCert, ok = v.certs[kid]
		v.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("no certificate found for kid %q", kid)
		}
	}

	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemCert))
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate for kid %q: %w", kid, err)
	}
	return key, nil
}

// refreshCerts は証明書エンドポイントからkid→証明書のマップを再取得する。
func (v *FirebaseVerifier) refreshCerts(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.CertsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create certs request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("certs request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read certs response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("certs fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	certs := map[string]string{}
	if err := json.Unmarshal(body, &certs); err != nil {
		return fmt.Errorf("failed to parse certs response: %w", err)
	}
	if len(certs) == 0 {
		return fmt.Errorf("certs response is empty")
	}

	v.mu.Lock()
	v.certs = certs
	v.certsExpiry = time.Now().Add(parseMaxAge(resp.Header.Get("Cache-Control")))
	v.mu.Unlock()

	return nil
}

// parseMaxAge はCache-Controlヘッダからmax-ageを取り出す。
// 指定がない場合は安全側に倒して短いTTLを返す。
func parseMaxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if strings.HasPrefix(directive, "max-age=") {
			if seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}
	return time.Minute
}

// compile-time interface check
var _ TokenVerifier = (*FirebaseVerifier)(nil)
