// client.go — HTTP-клиент к REST API трекинг-бэкенда.
// Операции: Login, ListUsers, GetUser, CreateUser, UpdateUser,
// DeleteUser. Авторизация запросов — bearer-токен активной сессии,
// поставляемый через TokenProvider.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// TokenProvider поставляет bearer-токен для авторизации запросов.
// Клиент не хранит токен сам: владелец токена — сессия.
type TokenProvider func(ctx context.Context) (string, error)

// APIError — ошибка уровня API бэкенда: не-2xx ответ с разобранным
// конвертом ошибки.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("бэкенд вернул статус %d: %s", e.StatusCode, e.Message)
}

// IsNotFound сообщает, был ли err ответом 404 от бэкенда.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client — HTTP-клиент к REST API трекинг-бэкенда.
type Client struct {
	baseURL    string // Базовый URL бэкенда (без trailing slash)
	healthPath string // Путь проверки доступности

	httpClient    *http.Client
	tokenProvider TokenProvider
	logger        *slog.Logger
}

// New создаёт клиент к трекинг-бэкенду.
// baseURL — базовый URL (например, https://api.rastreo.lan).
// healthPath — путь проверки доступности (например, /api/health).
// tokenProvider — источник bearer-токена; nil допустим до первого
// логина (Login авторизации не требует).
// httpClient — HTTP-клиент (может содержать TLS конфигурацию).
func New(baseURL, healthPath string, httpClient *http.Client, tokenProvider TokenProvider, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		healthPath:    healthPath,
		httpClient:    httpClient,
		tokenProvider: tokenProvider,
		logger:        logger.With(slog.String("component", "backend_client")),
	}
}

// --- HTTP helpers ---

// do выполняет HTTP-запрос к бэкенду. При authorized=true добавляет
// bearer-токен из tokenProvider.
func (c *Client) do(ctx context.Context, method, path string, body any, authorized bool) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	if authorized {
		if c.tokenProvider == nil {
			return nil, fmt.Errorf("нет источника токена для авторизованного запроса")
		}
		token, err := c.tokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("получение токена сессии: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос к бэкенду: %w", err)
	}

	return resp, nil
}

// apiError строит APIError из не-2xx ответа: разбирает конверт ошибки,
// проверяя известные ключи в фиксированном приоритете, и подставляет
// общий текст, если ни один не заполнен.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var env errorEnvelope
	message := ""
	if err := json.Unmarshal(body, &env); err == nil {
		message = env.userMessage()
	}
	if message == "" {
		message = "запрос отклонён бэкендом"
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

// decodeResponse декодирует JSON ответ в target.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("декодирование ответа бэкенда: %w", err)
		}
	}

	return nil
}

// --- Auth API ---

// Login выполняет вход по логину и паролю.
// Единственная операция клиента без bearer-авторизации.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	payload := map[string]string{
		"username": username,
		"password": password,
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/auth/login", payload, false)
	if err != nil {
		return nil, err
	}

	var login LoginResponse
	if err := decodeResponse(resp, &login); err != nil {
		return nil, fmt.Errorf("Login: %w", err)
	}

	return &login, nil
}

// --- Users API ---

// ListUsers возвращает все сырые записи пользователей.
// Бэкенд отдаёт либо голый массив, либо конверт {"data":[...]};
// принимаются оба варианта.
func (c *Client) ListUsers(ctx context.Context) ([]RawUser, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/usuarios", nil, true)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := decodeResponse(resp, &raw); err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}

	var users []RawUser
	if err := json.Unmarshal(raw, &users); err == nil {
		return users, nil
	}

	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("ListUsers: неожиданная форма ответа: %w", err)
	}

	return env.Data, nil
}

// GetUser возвращает сырую запись пользователя по id.
func (c *Client) GetUser(ctx context.Context, id int64) (*RawUser, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/usuarios/%d", id), nil, true)
	if err != nil {
		return nil, err
	}

	var user RawUser
	if err := decodeResponse(resp, &user); err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}

	return &user, nil
}

// CreateUser создаёт пользователя и возвращает созданную сырую запись.
// Ответ может прийти под конвертом {"data":{usuario,persona,...}} —
// части конверта сшиваются в одну запись.
func (c *Client) CreateUser(ctx context.Context, payload *UserPayload) (*RawUser, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/usuarios", payload, true)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := decodeResponse(resp, &raw); err != nil {
		return nil, fmt.Errorf("CreateUser: %w", err)
	}

	var env createEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Data != nil {
		if merged := env.Data.merged(); merged != nil {
			return merged, nil
		}
	}

	var user RawUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("CreateUser: неожиданная форма ответа: %w", err)
	}

	return &user, nil
}

// UpdateUser отправляет частичный патч и возвращает обновлённую запись.
func (c *Client) UpdateUser(ctx context.Context, id int64, payload *UserPayload) (*RawUser, error) {
	resp, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/usuarios/%d", id), payload, true)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := decodeResponse(resp, &raw); err != nil {
		return nil, fmt.Errorf("UpdateUser: %w", err)
	}

	var env createEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Data != nil {
		if merged := env.Data.merged(); merged != nil {
			return merged, nil
		}
	}

	var user RawUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("UpdateUser: неожиданная форма ответа: %w", err)
	}

	return &user, nil
}

// DeleteUser удаляет пользователя по id.
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/usuarios/%d", id), nil, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("DeleteUser: %w", apiError(resp))
	}

	// Тело ответа ({"message":...} или пустое) не интерпретируется
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	return nil
}

// --- Readiness checker ---

// CheckReady проверяет доступность бэкенда через health endpoint.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return "fail", fmt.Sprintf("трекинг-бэкенд: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("трекинг-бэкенд недоступен: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 500 {
		return "fail", fmt.Sprintf("трекинг-бэкенд вернул статус %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "degraded", fmt.Sprintf("трекинг-бэкенд вернул статус %d", resp.StatusCode)
	}

	return "ok", "трекинг-бэкенд доступен"
}
