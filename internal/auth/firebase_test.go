package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testProjectID = "taskman-test"

// generateTestCert はテスト用のRSA鍵と自己署名証明書（PEM）を生成する。
func generateTestCert(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return key, string(pemBytes)
}

// newCertsServer はkid→証明書マップを返すテスト用エンドポイントを起動する。
func newCertsServer(t *testing.T, certs map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(certs)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// signTestToken は指定クレームでRS256署名済みのIDトークンを生成する。
func signTestToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"aud":   testProjectID,
		"iss":   "https://securetoken.google.com/" + testProjectID,
		"sub":   "subject-1",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"email": "user@example.com",
		"firebase": map[string]interface{}{
			"sign_in_provider": "google.com",
		},
	}
}

func newTestVerifier(t *testing.T, certs map[string]string) *FirebaseVerifier {
	t.Helper()
	srv := newCertsServer(t, certs)
	return NewFirebaseVerifier(FirebaseVerifierConfig{
		ProjectID: testProjectID,
		CertsURL:  srv.URL,
	}, srv.Client())
}

func TestFirebaseVerifier_ValidToken(t *testing.T) {
	key, cert := generateTestCert(t)
	v := newTestVerifier(t, map[string]string{"kid-1": cert})

	idToken := signTestToken(t, key, "kid-1", validClaims())

	claims, err := v.Verify(context.Background(), idToken)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if claims.SubjectID != "subject-1" {
		t.Errorf("SubjectID = %q, want %q", claims.SubjectID, "subject-1")
	}
	if claims.Email != "user@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "user@example.com")
	}
	if claims.SignInProvider != "google.com" {
		t.Errorf("SignInProvider = %q, want %q", claims.SignInProvider, "google.com")
	}
}

func TestFirebaseVerifier_EmptyToken(t *testing.T) {
	_, cert := generateTestCert(t)
	v := newTestVerifier(t, map[string]string{"kid-1": cert})

	if _, err := v.Verify(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty token, got nil")
	}
}

func TestFirebaseVerifier_ExpiredToken(t *testing.T) {
	key, cert := generateTestCert(t)
	v := newTestVerifier(t, map[string]string{"kid-1": cert})

	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	idToken := signTestToken(t, key, "kid-1", claims)

	if _, err := v.Verify(context.Background(), idToken); err == nil {
		t.Fatal("expected error for expired token, got nil")
	}
}

func TestFirebaseVerifier_WrongAudience(t *testing.T) {
	key, cert := generateTestCert(t)
	v := newTestVerifier(t, map[string]string{"kid-1": cert})

	claims := validClaims()
	claims["aud"] = "some-other-project"
	idToken := signTestToken(t, key, "kid-1", claims)

	if _, err := v.Verify(context.Background(), idToken); err == nil {
		t.Fatal("expected error for wrong audience, got nil")
	}
}

func TestFirebaseVerifier_WrongIssuer(t *testing.T) {
	key, cert := generateTestCert(t)
	v := newTestVerifier(t, map[string]string{"kid-1": cert})

	claims := validClaims()
	claims["iss"] = "https://evil.example.com/" + testProjectID
	idToken := signTestToken(t, key, "kid-1", claims)

	if _, err := v.Verify(context.Background(), idToken); err == nil {
		t.Fatal("expected error for wrong issuer, got nil")
	}
}

func TestFirebaseVerifier_UnknownKid(t *testing.T) {
	key, cert := generateTestCert(t)
	v := newTestVerifier(t, map[string]string{"kid-1": cert})

	idToken := signTestToken(t, key, "unknown-kid", validClaims())

	if _, err := v.Verify(context.Background(), idToken); err == nil {
		t.Fatal("expected error for unknown kid, got nil")
	}
}

func TestFirebaseVerifier_TamperedSignature(t *testing.T) {
	_, cert := generateTestCert(t)
	otherKey, _ := generateTestCert(t)
	v := newTestVerifier(t, map[string]string{"kid-1": cert})

	// 別の鍵で署名したトークンは署名検証で弾かれる
	idToken := signTestToken(t, otherKey, "kid-1", validClaims())

	if _, err := v.Verify(context.Background(), idToken); err == nil {
		t.Fatal("expected error for tampered signature, got nil")
	}
}

func TestFirebaseVerifier_CertsCaching(t *testing.T) {
	key, cert := generateTestCert(t)

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Cache-Control", "public, max-age=3600")
		json.NewEncoder(w).Encode(map[string]string{"kid-1": cert})
	}))
	t.Cleanup(srv.Close)

	v := NewFirebaseVerifier(FirebaseVerifierConfig{
		ProjectID: testProjectID,
		CertsURL:  srv.URL,
	}, srv.Client())

	idToken := signTestToken(t, key, "kid-1", validClaims())

	for i := 0; i < 3; i++ {
		if _, err := v.Verify(context.Background(), idToken); err != nil {
			t.Fatalf("verify %d failed: %v", i, err)
		}
	}

	if requests != 1 {
		t.Errorf("certs endpoint requests = %d, want 1 (cached)", requests)
	}
}

func TestParseMaxAge(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"with max-age", "public, max-age=1800, must-revalidate", 1800 * time.Second},
		{"no max-age", "no-store", time.Minute},
		{"empty", "", time.Minute},
		{"invalid value", "max-age=abc", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseMaxAge(tt.input); got != tt.want {
				t.Errorf("parseMaxAge(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
