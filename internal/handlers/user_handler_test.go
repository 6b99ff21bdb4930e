package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellness-todo/backend/internal/models"
	"wellness-todo/backend/testutil"
)

func TestRegisterUser_Success(t *testing.T) {
	env := testutil.SetupTestDB(t)

	w := testutil.DoJSON(t, env.Router, http.MethodPost, "/api/register", "", map[string]string{
		"username": "newuser",
		"email":    "NewUser@example.com",
		"password": "newpassword",
	})

	assert.Equal(t, http.StatusCreated, w.Code, "Expected HTTP Status Code 201 Created")

	var responseUser models.User
	err := json.Unmarshal(w.Body.Bytes(), &responseUser)
	assert.NoError(t, err, "Response should be a valid JSON user object")
	assert.NotEmpty(t, responseUser.ID, "Expected a User ID")
	assert.Equal(t, "newuser", responseUser.Username)
	assert.Equal(t, "newuser@example.com", responseUser.Email, "Email is stored lower-cased")
	assert.Equal(t, "user", responseUser.Role, "Expected default role to be 'user'")
	assert.NotContains(t, w.Body.String(), "password")

	_, err = testutil.LoginAndGetToken(t, env.Router, "newuser@example.com", "newpassword")
	assert.NoError(t, err)
}

func TestRegisterUser_InvalidInput(t *testing.T) {
	env := testutil.SetupTestDB(t)

	w := testutil.DoJSON(t, env.Router, http.MethodPost, "/api/register", "", map[string]string{
		"username": "invaliduser",
		"email":    "not-an-email",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code, "Expected HTTP Status Code 400 Bad Request")
	msg, details := decodeError(t, w.Body.Bytes())
	assert.Contains(t, msg, "Invalid request payload")
	assert.Equal(t, "must be a valid email address", details["email"])
	assert.Equal(t, "is required", details["password"])
}

func TestRegisterUser_DuplicateEmail(t *testing.T) {
	env := testutil.SetupTestDB(t)

	w := testutil.DoJSON(t, env.Router, http.MethodPost, "/api/register", "", map[string]string{
		"username": "anotheruser",
		"email":    testutil.NormalUserEmail,
		"password": "somepassword",
	})

	assert.Equal(t, http.StatusConflict, w.Code, "Expected HTTP Status Code 409 Conflict for duplicate email")
	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response["error"], "Username or email already exists")
}

func TestLoginUser_Success(t *testing.T) {
	env := testutil.SetupTestDB(t)

	w := testutil.DoJSON(t, env.Router, http.MethodPost, "/api/login", "", map[string]string{
		"email":    testutil.NormalUserEmail,
		"password": testutil.NormalUserPassword,
	})

	assert.Equal(t, http.StatusOK, w.Code, "Expected HTTP Status Code 200 OK")
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	token, ok := response["token"].(string)
	assert.True(t, ok, "Token should be a string")
	assert.NotEmpty(t, token)
	assert.Equal(t, env.Normal.ID, response["user_id"])
	assert.Equal(t, "user", response["role"])
}

func TestLoginUser_InvalidCredentials(t *testing.T) {
	env := testutil.SetupTestDB(t)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nonexistent@example.com", "wrongpassword"},
		{"wrong password", testutil.NormalUserEmail, "wrongpassword"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.DoJSON(t, env.Router, http.MethodPost, "/api/login", "", map[string]string{
				"email":    tt.email,
				"password": tt.password,
			})
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			var response map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Contains(t, response["error"], "Invalid credentials")
		})
	}
}

func TestDeletingUserRemovesTodos(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.OtherUserEmail, testutil.OtherUserPassword)
	testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{"title": "Stretch", "recurrence": "DAILY"})
	testutil.ListTestTodos(t, env.Router, token, "")

	_, err := env.DB.Exec("DELETE FROM users WHERE id = ?", env.Other.ID)
	require.NoError(t, err)

	var n int
	require.NoError(t, env.DB.GetContext(context.Background(), &n, "SELECT COUNT(*) FROM todos WHERE user_id = ?", env.Other.ID))
	assert.Zero(t, n)
}
