package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"wellness-todo/backend/internal/clock"
	"wellness-todo/backend/internal/config"
	"wellness-todo/backend/internal/database"
	"wellness-todo/backend/internal/models"
	"wellness-todo/backend/internal/repositories"
	"wellness-todo/backend/internal/routes"
)

const (
	TestJWTSecret = "test-secret"

	NormalUserEmail    = "normal_user@example.com"
	NormalUserPassword = "password123"
	OtherUserEmail     = "other_user@example.com"
	OtherUserPassword  = "otherpass123"
)

// TestLocation はテストでの "サーバーのローカル時間" です。
var TestLocation = time.FixedZone("JST", 9*60*60)

// TestEnv はテスト用のDB・ルーター・時計をまとめたものです。
type TestEnv struct {
	DB       *sqlx.DB
	Router   *gin.Engine
	Clock    *clock.Fixed
	TodoRepo *repositories.TodoRepository
	UserRepo *repositories.UserRepository
	Normal   *models.User
	Other    *models.User
}

// SetupTestDB はインメモリSQLiteにスキーマを作成し、テストユーザーを投入してルーターを組み立てます。
// 時計は TestLocation の 2025-06-01 10:00 に固定されます。
func SetupTestDB(t *testing.T) *TestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clk := clock.NewFixed(time.Date(2025, 6, 1, 10, 0, 0, 0, TestLocation))
	cfg := &config.Config{
		JWTSecret:    TestJWTSecret,
		QueryTimeout: 5 * time.Second,
		CORSOrigins:  []string{"http://localhost:3000"},
	}
	router, err := routes.SetupRouter(db, cfg, clk)
	require.NoError(t, err)

	userRepo := repositories.NewUserRepository(db)
	env := &TestEnv{
		DB:       db,
		Router:   router,
		Clock:    clk,
		TodoRepo: repositories.NewTodoRepository(db, cfg.QueryTimeout),
		UserRepo: userRepo,
	}
	env.Normal = CreateTestUser(t, userRepo, "normal_user", NormalUserEmail, NormalUserPassword, "user")
	env.Other = CreateTestUser(t, userRepo, "other_user", OtherUserEmail, OtherUserPassword, "user")
	return env
}

func CreateTestUser(t *testing.T, userRepo *repositories.UserRepository, username, email, password, role string) *models.User {
	t.Helper()
	hashedPassword, err := repositories.HashPassword(password)
	require.NoError(t, err)

	createdUser, err := userRepo.Create(context.Background(), &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
	})
	require.NoError(t, err)
	require.NotEmpty(t, createdUser.ID)
	return createdUser
}

// DoJSON は payload をJSONにしてリクエストを送ります。payload が nil ならボディ無しです。
func DoJSON(t *testing.T, router *gin.Engine, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		switch p := payload.(type) {
		case string:
			body.WriteString(p)
		default:
			require.NoError(t, json.NewEncoder(&body).Encode(p))
		}
	}
	req, err := http.NewRequest(method, path, &body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

// CreateTestTodo は POST /api/todos でTodoを作成します。
func CreateTestTodo(t *testing.T, router *gin.Engine, token string, payload map[string]interface{}) *models.Todo {
	t.Helper()
	resp := DoJSON(t, router, http.MethodPost, "/api/todos", token, payload)
	require.Equal(t, http.StatusCreated, resp.Code, "TODO作成に失敗しました: %s", resp.Body.String())

	var res struct {
		Todo models.Todo `json:"todo"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
	return &res.Todo
}

// ListTestTodos は GET を送り、返ったTodoを返します。
func ListTestTodos(t *testing.T, router *gin.Engine, token, query string) []models.Todo {
	t.Helper()
	path := "/api/todos"
	if query != "" {
		path += "?" + query
	}
	resp := DoJSON(t, router, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var res struct {
		Todos []models.Todo `json:"todos"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
	return res.Todos
}

func LoginAndGetToken(t *testing.T, router *gin.Engine, email, password string) (string, error) {
	loginPayload := map[string]string{
		"email":    email,
		"password": password,
	}
	body, _ := json.Marshal(loginPayload)

	req, _ := http.NewRequest(http.MethodPost, "/api/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d: %s", resp.Code, resp.Body.String())
	}

	var loginRes map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &loginRes); err != nil {
		return "", fmt.Errorf("failed to unmarshal login response: %w", err)
	}

	token, ok := loginRes["token"].(string)
	if !ok {
		return "", errors.New("token not found or not a string in login response")
	}
	return token, nil
}
