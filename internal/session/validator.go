// validator.go — проверка токенов сессии через JWKS бэкенда.
// Основная проверка токена — на стороне бэкенда при каждом запросе;
// здесь — локальная проверка при регидрации, чтобы не поднимать
// сессию с заведомо мёртвым токеном.
package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator валидирует подпись и срок действия JWT через JWKS.
type TokenValidator struct {
	jwks   keyfunc.Keyfunc
	leeway time.Duration
	logger *slog.Logger
}

// NewTokenValidator создаёт валидатор с JWKS по URL.
// jwksURL — JWKS endpoint бэкенда.
// caCertPath — опциональный путь к CA-сертификату для TLS.
// refreshInterval — интервал фонового обновления ключей.
// leeway — допустимое отклонение времени при проверке exp/nbf.
func NewTokenValidator(
	jwksURL string,
	caCertPath string,
	refreshInterval time.Duration,
	leeway time.Duration,
	logger *slog.Logger,
) (*TokenValidator, error) {
	httpClient := http.DefaultClient
	if caCertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
		}
	}

	// NoErrorReturnFirstHTTPReq — стартуем даже если бэкенд ещё недоступен
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &TokenValidator{
		jwks:   k,
		leeway: leeway,
		logger: logger.With(slog.String("component", "token_validator")),
	}, nil
}

// NewTokenValidatorWithKeyfunc создаёт валидатор с готовой keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewTokenValidatorWithKeyfunc(kf keyfunc.Keyfunc, leeway time.Duration, logger *slog.Logger) *TokenValidator {
	return &TokenValidator{
		jwks:   kf,
		leeway: leeway,
		logger: logger.With(slog.String("component", "token_validator")),
	}
}

// Validate проверяет подпись (RS256) и срок действия токена.
func (v *TokenValidator) Validate(ctx context.Context, tokenString string) error {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return fmt.Errorf("валидация токена: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("невалидный токен")
	}
	return nil
}

// TokenExpired проверяет только срок действия токена, без подписи.
// Фолбэк для конфигураций без JWKS: битый или просроченный токен
// считается истёкшим.
func TokenExpired(tokenString string) bool {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		// Токен без exp не считаем просроченным: решает бэкенд
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}

// httpClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func httpClientWithCA(caCertPath string) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: caCertPool,
			},
		},
	}, nil
}
