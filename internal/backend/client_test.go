package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// staticToken — TokenProvider с фиксированным токеном.
func staticToken(token string) TokenProvider {
	return func(_ context.Context) (string, error) {
		return token, nil
	}
}

// setupMockBackend создаёт mock HTTP-сервер трекинг-бэкенда.
func setupMockBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(server.URL, "/api/health", server.Client(), staticToken("test-token"), testLogger())
}

// TestClient_Login проверяет вход и отсутствие bearer-заголовка на логине.
func TestClient_Login(t *testing.T) {
	client := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			t.Errorf("неожиданный запрос: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("логин не должен нести Authorization заголовок")
		}

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "ana" || body["password"] != "secret" {
			t.Errorf("неожиданное тело логина: %v", body)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"token":        "jwt-token",
			"refreshToken": "refresh-token",
			"usuario": map[string]any{
				"id":       7,
				"username": "ana",
				"persona":  map[string]any{"nombre": "Ana"},
				"roles":    []string{"ADMIN"},
			},
		})
	})

	login, err := client.Login(context.Background(), "ana", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.Token != "jwt-token" || login.RefreshToken != "refresh-token" {
		t.Errorf("неожиданные токены: %+v", login)
	}
	if login.Usuario == nil || login.Usuario.Username != "ana" {
		t.Errorf("неожиданный usuario: %+v", login.Usuario)
	}
}

// TestClient_ErrorEnvelopePriority проверяет приоритет ключей конверта
// ошибки: message, затем error, затем detail, иначе общий текст.
func TestClient_ErrorEnvelopePriority(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "message имеет высший приоритет",
			body: `{"message":"из message","error":"из error","detail":"из detail"}`,
			want: "из message",
		},
		{
			name: "error при отсутствии message",
			body: `{"error":"из error","detail":"из detail"}`,
			want: "из error",
		},
		{
			name: "detail последним",
			body: `{"detail":"из detail"}`,
			want: "из detail",
		},
		{
			name: "пустой конверт — общий текст",
			body: `{}`,
			want: "запрос отклонён бэкендом",
		},
		{
			name: "не-JSON тело — общий текст",
			body: `internal server error`,
			want: "запрос отклонён бэкендом",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupMockBackend(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tt.body))
			})

			_, err := client.Login(context.Background(), "ana", "bad")
			if err == nil {
				t.Fatal("ожидалась ошибка")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("ожидался APIError, получен %T: %v", err, err)
			}
			if apiErr.Message != tt.want {
				t.Errorf("сообщение = %q, хотели %q", apiErr.Message, tt.want)
			}
		})
	}
}

// TestClient_ListUsers проверяет обе формы ответа списка.
func TestClient_ListUsers(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "голый массив",
			body: `[{"id":1,"username":"ana"},{"id":2,"username":"luis"}]`,
		},
		{
			name: "конверт data",
			body: `{"data":[{"id":1,"username":"ana"},{"id":2,"username":"luis"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer test-token" {
					t.Errorf("неожиданный Authorization: %q", r.Header.Get("Authorization"))
				}
				w.Write([]byte(tt.body))
			})

			users, err := client.ListUsers(context.Background())
			if err != nil {
				t.Fatalf("ListUsers: %v", err)
			}
			if len(users) != 2 {
				t.Fatalf("ожидалось 2 записи, получено %d", len(users))
			}
			if users[0].Username != "ana" || users[1].Username != "luis" {
				t.Errorf("неожиданные записи: %+v", users)
			}
		})
	}
}

// TestClient_CreateUser_DataEnvelope проверяет сшивание конверта
// {"data":{usuario,persona,contactos}} в одну запись.
func TestClient_CreateUser_DataEnvelope(t *testing.T) {
	client := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/usuarios" {
			t.Errorf("неожиданный запрос: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{
			"usuario":{"id":9,"username":"nuevo","roles":["CONDUCTOR"]},
			"persona":{"nombre":"Nuevo","apellido_paterno":"Pérez"},
			"contactos":[{"tipo":"EMAIL","valor":"n@rastreo.lan"}]
		}}`))
	})

	raw, err := client.CreateUser(context.Background(), &UserPayload{Username: "nuevo"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if raw.ID == nil || *raw.ID != 9 {
		t.Errorf("неожиданный id: %+v", raw.ID)
	}
	if raw.Persona == nil || raw.Persona.Nombre != "Nuevo" {
		t.Errorf("persona не сшита: %+v", raw.Persona)
	}
	if len(raw.Contactos) != 1 || raw.Contactos[0].Valor != "n@rastreo.lan" {
		t.Errorf("contactos не сшиты: %+v", raw.Contactos)
	}
}

// TestClient_UpdateUser_Plain проверяет ответ без конверта.
func TestClient_UpdateUser_Plain(t *testing.T) {
	client := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/usuarios/7" {
			t.Errorf("неожиданный запрос: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id":7,"username":"ana2","roles":["ADMIN"]}`))
	})

	raw, err := client.UpdateUser(context.Background(), 7, &UserPayload{Username: "ana2"})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if raw.Username != "ana2" {
		t.Errorf("username = %q, хотели ana2", raw.Username)
	}
}

// TestClient_DeleteUser_NotFound проверяет распознавание 404.
func TestClient_DeleteUser_NotFound(t *testing.T) {
	client := setupMockBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"usuario no encontrado"}`))
	})

	err := client.DeleteUser(context.Background(), 42)
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if !IsNotFound(err) {
		t.Errorf("ожидался 404, получено: %v", err)
	}
}
