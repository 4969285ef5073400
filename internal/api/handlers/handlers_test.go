package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arturkryukov/rastreo/admin-console/internal/api/handlers"
	"github.com/arturkryukov/rastreo/admin-console/internal/api/middleware"
	"github.com/arturkryukov/rastreo/admin-console/internal/backend"
	"github.com/arturkryukov/rastreo/admin-console/internal/server"
	"github.com/arturkryukov/rastreo/admin-console/internal/service"
	"github.com/arturkryukov/rastreo/admin-console/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore — хранилище состояния сессии в памяти для тестов.
type memStore struct {
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

// fakeTrackingBackend — mock трекинг-бэкенда для сквозных тестов API.
func fakeTrackingBackend(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		if req.Password != "secreto" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"credenciales inválidas"}`))
			return
		}

		_, _ = w.Write([]byte(`{
			"success": true,
			"token": "tok-1",
			"refreshToken": "ref-1",
			"usuario": {
				"id": 1,
				"username": "admin",
				"persona": {"nombre": "Ana", "apellido_paterno": "García"},
				"roles": ["ADMIN"]
			}
		}`))
	})

	mux.HandleFunc("GET /api/usuarios", func(w http.ResponseWriter, r *http.Request) {
		// Плоская V1-запись и вложенная V2-запись в одном списке
		_, _ = w.Write([]byte(`[
			{"usuario_id": 2, "username": "carlos", "nombre": "Carlos",
			 "apellido_paterno": "López", "roles": [{"rol": {"nombre": "conductor"}}]},
			{"id": 3, "username": "maria",
			 "persona": {"nombre": "María", "apellido_paterno": "Pérez"},
			 "roles": ["USUARIO"]}
		]`))
	})

	mux.HandleFunc("GET /api/usuarios/3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 3, "username": "maria",
			"persona": {"nombre": "María", "apellido_paterno": "Pérez"},
			"roles": ["USUARIO"]}`))
	})

	mux.HandleFunc("POST /api/usuarios", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {
			"usuario": {"id": 4, "username": "nuevo", "roles": ["USUARIO"]},
			"persona": {"nombre": "Nuevo", "apellido_paterno": "Usuario"}
		}}`))
	})

	mux.HandleFunc("DELETE /api/usuarios/2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message": "eliminado"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newTestRouter собирает полный стек API поверх mock-бэкенда.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	be := fakeTrackingBackend(t)
	logger := testLogger()

	mgr := session.NewManager(newMemStore(), nil, logger)
	client := backend.New(be.URL, "/api/health", be.Client(), mgr.Token, logger)

	auth := service.NewAuthService(client, mgr, 3, false, logger)
	profiles := service.NewProfileCache(client, 16, time.Minute, logger)
	health := handlers.NewHealthHandler(nil, nil, nil)

	handler := handlers.NewAPIHandler(health, auth, profiles, logger)
	sessionAuth := middleware.NewSessionAuth(mgr, logger)

	return server.NewRouter(logger, handler, sessionAuth)
}

// doLogin выполняет вход и возвращает токен сессии.
func doLogin(t *testing.T, router http.Handler) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username": "admin", "password": "secreto"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login: статус = %d, тело: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("login: декодирование ответа: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: пустой токен")
	}
	return resp.Token
}

// authedRequest создаёт запрос с Bearer токеном.
func authedRequest(method, path, token, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAPI_LoginFailure(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username": "admin", "password": "mal"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, хотели 401", rec.Code)
	}
	// Сообщение бэкенда доносится до клиента консоли
	if !strings.Contains(rec.Body.String(), "credenciales inválidas") {
		t.Errorf("тело без сообщения бэкенда: %s", rec.Body.String())
	}
}

func TestAPI_CurrentUser(t *testing.T) {
	router := newTestRouter(t)
	token := doLogin(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/auth/me", token, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}

	var user struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&user)
	if user.ID != 1 || user.Username != "admin" {
		t.Errorf("пользователь = %+v", user)
	}
}

func TestAPI_ListUsers(t *testing.T) {
	router := newTestRouter(t)
	token := doLogin(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/usuarios", token, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data []struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
		Total int `json:"total"`
		Guard struct {
			AttemptsMade int `json:"attempts_made"`
			Ceiling      int `json:"ceiling"`
		} `json:"guard"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("декодирование: %v", err)
	}

	if resp.Total != 2 {
		t.Errorf("total = %d, хотели 2 (V1 и V2 записи)", resp.Total)
	}
	if resp.Guard.AttemptsMade != 1 || resp.Guard.Ceiling != 3 {
		t.Errorf("guard = %+v", resp.Guard)
	}

	// Повторный запрос не тратит попытку: справочник уже загружен
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/usuarios", token, ""))
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Guard.AttemptsMade != 1 {
		t.Errorf("повторный запрос потратил попытку: attempts = %d", resp.Guard.AttemptsMade)
	}
}

func TestAPI_ListUsersFilters(t *testing.T) {
	router := newTestRouter(t)
	token := doLogin(t, router)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "фильтр по имени", query: "?nombre=carlos", want: 1},
		{name: "фильтр по username", query: "?username=mar", want: 1},
		{name: "фильтр по роли в нижнем регистре", query: "?rol=conductor", want: 1},
		{name: "без совпадений", query: "?nombre=nadie", want: 0},
		{name: "без фильтров", query: "", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/usuarios"+tt.query, token, ""))

			var resp struct {
				Total int `json:"total"`
			}
			_ = json.NewDecoder(rec.Body).Decode(&resp)
			if resp.Total != tt.want {
				t.Errorf("total = %d, хотели %d", resp.Total, tt.want)
			}
		})
	}
}

func TestAPI_GetUserProfile(t *testing.T) {
	router := newTestRouter(t)
	token := doLogin(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/usuarios/3", token, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}

	var user struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&user)
	if user.ID != 3 || user.Username != "maria" {
		t.Errorf("профиль = %+v", user)
	}
}

func TestAPI_CreateUser(t *testing.T) {
	router := newTestRouter(t)
	token := doLogin(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/usuarios", token,
		`{"username": "nuevo", "password": "clave", "nombre": "Nuevo"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}

	var user struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&user)
	if user.ID != 4 || user.Username != "nuevo" {
		t.Errorf("создан = %+v", user)
	}
}

func TestAPI_DeleteUser(t *testing.T) {
	router := newTestRouter(t)
	token := doLogin(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/v1/usuarios/2", token, ""))

	if rec.Code != http.StatusNoContent {
		t.Errorf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
}

func TestAPI_DeleteSelfForbidden(t *testing.T) {
	router := newTestRouter(t)
	token := doLogin(t, router)

	// Пользователь сессии имеет id=1 — управление собой запрещено
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/v1/usuarios/1", token, ""))

	if rec.Code != http.StatusForbidden {
		t.Errorf("статус = %d, хотели 403", rec.Code)
	}
}

func TestAPI_Views(t *testing.T) {
	router := newTestRouter(t)
	token := doLogin(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/views", token, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Views []struct {
			Key string `json:"key"`
		} `json:"views"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&resp)

	keys := make([]string, 0, len(resp.Views))
	for _, v := range resp.Views {
		keys = append(keys, v.Key)
	}
	// ADMIN видит всё, кроме conductor; порядок таблицы сохраняется
	want := []string{"usuarios", "vehiculos", "configuracion", "mapa"}
	if len(keys) != len(want) {
		t.Fatalf("вьюхи = %v, хотели %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("вьюха[%d] = %q, хотели %q", i, keys[i], want[i])
		}
	}
}

func TestAPI_RefreshUsers(t *testing.T) {
	router := newTestRouter(t)
	token := doLogin(t, router)

	// Загружаем справочник, затем принудительно перезагружаем
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/usuarios", token, ""))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/usuarios/refresh", token, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Total int `json:"total"`
		Guard struct {
			AttemptsMade int `json:"attempts_made"`
		} `json:"guard"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&resp)

	// Refresh игнорирует признак «уже загружен» и тратит вторую попытку
	if resp.Total != 2 {
		t.Errorf("total = %d, хотели 2", resp.Total)
	}
	if resp.Guard.AttemptsMade != 2 {
		t.Errorf("attempts = %d, хотели 2", resp.Guard.AttemptsMade)
	}
}

func TestAPI_Logout(t *testing.T) {
	router := newTestRouter(t)
	token := doLogin(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/auth/logout", token, ""))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: статус = %d", rec.Code)
	}

	// После выхода токен больше не работает
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/auth/me", token, ""))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("после logout статус = %d, хотели 401", rec.Code)
	}
}

func TestAPI_UnauthorizedWithoutToken(t *testing.T) {
	router := newTestRouter(t)
	doLogin(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usuarios", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, хотели 401", rec.Code)
	}
}

func TestAPI_HealthLive(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"admin-console"`) {
		t.Errorf("тело: %s", rec.Body.String())
	}
}

// stubChecker — фиксированный результат проверки готовности.
type stubChecker struct {
	status  string
	message string
}

func (c stubChecker) CheckReady() (string, string) {
	return c.status, c.message
}

// stubDepHealth — фиксированный снимок фонового мониторинга.
type stubDepHealth struct {
	deps map[string]bool
}

func (d stubDepHealth) Health() map[string]bool {
	return d.deps
}

func TestHealthReady_Dependencies(t *testing.T) {
	ok := stubChecker{status: "ok", message: "подключение активно"}

	t.Run("снимок мониторинга попадает в ответ", func(t *testing.T) {
		h := handlers.NewHealthHandler(ok, ok, stubDepHealth{
			deps: map[string]bool{"postgresql": true, "tracking-backend": false},
		})

		req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
		rec := httptest.NewRecorder()
		h.HealthReady(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("статус = %d, хотели 200", rec.Code)
		}

		var resp struct {
			Status       string          `json:"status"`
			Dependencies map[string]bool `json:"dependencies"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("разбор ответа: %v", err)
		}
		if resp.Status != "ok" {
			t.Errorf("status = %q", resp.Status)
		}
		if !resp.Dependencies["postgresql"] || resp.Dependencies["tracking-backend"] {
			t.Errorf("dependencies = %v", resp.Dependencies)
		}
	})

	t.Run("без мониторинга поле отсутствует", func(t *testing.T) {
		h := handlers.NewHealthHandler(ok, ok, nil)

		req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
		rec := httptest.NewRecorder()
		h.HealthReady(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("статус = %d, хотели 200", rec.Code)
		}
		if strings.Contains(rec.Body.String(), `"dependencies"`) {
			t.Errorf("тело: %s", rec.Body.String())
		}
	})

	t.Run("fail зависимости даёт 503", func(t *testing.T) {
		fail := stubChecker{status: "fail", message: "PostgreSQL недоступен"}
		h := handlers.NewHealthHandler(fail, ok, nil)

		req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
		rec := httptest.NewRecorder()
		h.HealthReady(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("статус = %d, хотели 503", rec.Code)
		}
	})
}
