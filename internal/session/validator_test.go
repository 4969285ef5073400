package session

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const testKeyID = "test-key-1"

// generateRSAKey генерирует RSA-ключ для подписи тестовых токенов.
func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("генерация RSA-ключа: %v", err)
	}
	return key
}

// buildJWKSetJSON собирает JWKS JSON из публичного ключа.
func buildJWKSetJSON(t *testing.T, pub *rsa.PublicKey, kid string) json.RawMessage {
	t.Helper()

	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, err := json.Marshal(jwks)
	if err != nil {
		t.Fatalf("сериализация JWKS: %v", err)
	}
	return data
}

// newTestValidator создаёт валидатор с JWKS из публичной части ключа.
func newTestValidator(t *testing.T, key *rsa.PrivateKey, leeway time.Duration) *TokenValidator {
	t.Helper()

	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(t, &key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("создание keyfunc из JWKS: %v", err)
	}
	return NewTokenValidatorWithKeyfunc(kf, leeway, testLogger())
}

// signRS256 подписывает токен сессии RSA-ключом с нужным kid.
func signRS256(t *testing.T, key *rsa.PrivateKey, claims jwt.Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID

	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return signed
}

func TestTokenValidator_Validate(t *testing.T) {
	key := generateRSAKey(t)
	ctx := context.Background()

	t.Run("валидный токен проходит", func(t *testing.T) {
		v := newTestValidator(t, key, 0)
		tok := signRS256(t, key, jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		})

		if err := v.Validate(ctx, tok); err != nil {
			t.Errorf("Validate() = %v, хотели nil", err)
		}
	})

	t.Run("подпись чужим ключом отклоняется", func(t *testing.T) {
		v := newTestValidator(t, key, 0)
		otherKey := generateRSAKey(t)
		tok := signRS256(t, otherKey, jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})

		err := v.Validate(ctx, tok)
		if err == nil {
			t.Fatal("Validate() принял токен с чужой подписью")
		}
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			t.Errorf("Validate() = %v, хотели ErrTokenSignatureInvalid", err)
		}
	})

	t.Run("просроченный токен отклоняется", func(t *testing.T) {
		v := newTestValidator(t, key, 0)
		tok := signRS256(t, key, jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})

		err := v.Validate(ctx, tok)
		if err == nil {
			t.Fatal("Validate() принял просроченный токен")
		}
		if !errors.Is(err, jwt.ErrTokenExpired) {
			t.Errorf("Validate() = %v, хотели ErrTokenExpired", err)
		}
	})

	t.Run("просрочка в пределах leeway допускается", func(t *testing.T) {
		v := newTestValidator(t, key, time.Minute)
		tok := signRS256(t, key, jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-10 * time.Second)),
		})

		if err := v.Validate(ctx, tok); err != nil {
			t.Errorf("Validate() = %v, хотели nil (в пределах leeway)", err)
		}
	})

	t.Run("токен без exp отклоняется", func(t *testing.T) {
		v := newTestValidator(t, key, 0)
		tok := signRS256(t, key, jwt.RegisteredClaims{Subject: "admin"})

		if err := v.Validate(ctx, tok); err == nil {
			t.Error("Validate() принял токен без exp")
		}
	})

	t.Run("токен HS256 отклоняется по алгоритму", func(t *testing.T) {
		v := newTestValidator(t, key, 0)
		tok := signedToken(t, time.Now().Add(time.Hour))

		if err := v.Validate(ctx, tok); err == nil {
			t.Error("Validate() принял токен с недопустимым алгоритмом")
		}
	})
}
