package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellness-todo/backend/internal/models"
	"wellness-todo/backend/internal/repositories"
	"wellness-todo/backend/testutil"
)

func login(t *testing.T, env *testutil.TestEnv, email, password string) string {
	t.Helper()
	token, err := testutil.LoginAndGetToken(t, env.Router, email, password)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	return token
}

func today(env *testutil.TestEnv, hour, minute int) time.Time {
	now := env.Clock.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, testutil.TestLocation)
}

func decodeError(t *testing.T, body []byte) (string, map[string]string) {
	t.Helper()
	var res struct {
		Error   string            `json:"error"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(body, &res))
	return res.Error, res.Details
}

func TestCreateTodo_OneOff(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)

	created := testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{
		"title":     "Buy milk",
		"timeOfDay": "18:00",
		"tags":      []string{"errand"},
	})

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, env.Normal.ID, created.UserID)
	assert.Equal(t, "Buy milk", created.Title)
	assert.False(t, created.IsTemplate)
	assert.Equal(t, models.RecurrenceNone, created.Recurrence)
	assert.Nil(t, created.TemplateID)
	assert.Equal(t, []string{"errand"}, created.Tags)
	require.NotNil(t, created.DueAt)
	assert.True(t, today(env, 18, 0).Equal(*created.DueAt), "dueAt = %v", created.DueAt)
	assert.NotZero(t, created.CreatedAt)
}

func TestCreateTodo_DailyTemplateIsNotListed(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)

	tpl := testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{
		"title":      "Stretch",
		"recurrence": "DAILY",
		"timeOfDay":  "07:30",
	})
	assert.True(t, tpl.IsTemplate)
	assert.Equal(t, models.RecurrenceDaily, tpl.Recurrence)
	assert.Nil(t, tpl.DueAt)
	require.NotNil(t, tpl.TimeOfDay)
	assert.Equal(t, "07:30", *tpl.TimeOfDay)

	todos := testutil.ListTestTodos(t, env.Router, token, "")
	require.Len(t, todos, 1)

	inst := todos[0]
	assert.Equal(t, "Stretch", inst.Title)
	assert.False(t, inst.IsTemplate)
	assert.False(t, inst.Completed)
	require.NotNil(t, inst.TemplateID)
	assert.Equal(t, tpl.ID, *inst.TemplateID)
	require.NotNil(t, inst.DueAt)
	assert.True(t, today(env, 7, 30).Equal(*inst.DueAt), "dueAt = %v", inst.DueAt)
	for _, td := range todos {
		assert.False(t, td.IsTemplate, "templates must not be listed")
	}
}

func TestGetTodos_Idempotent(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)

	testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{
		"title": "Meditate", "recurrence": "daily",
	})

	for i := 0; i < 5; i++ {
		todos := testutil.ListTestTodos(t, env.Router, token, "")
		require.Len(t, todos, 1)
		require.NotNil(t, todos[0].DueAt)
		// timeOfDay 無しのテンプレートは 09:00
		assert.True(t, today(env, 9, 0).Equal(*todos[0].DueAt))
	}
}

func TestGetTodos_NewDayMaterializesAgain(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)

	tpl := testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{
		"title": "Walk", "recurrence": "DAILY", "timeOfDay": "08:00",
	})
	require.Len(t, testutil.ListTestTodos(t, env.Router, token, ""), 1)

	env.Clock.Advance(24 * time.Hour)
	todos := testutil.ListTestTodos(t, env.Router, token, "")
	require.Len(t, todos, 2)

	days := map[string]bool{}
	for _, td := range todos {
		require.NotNil(t, td.TemplateID)
		assert.Equal(t, tpl.ID, *td.TemplateID)
		days[td.DueAt.In(testutil.TestLocation).Format("2006-01-02")] = true
	}
	assert.Equal(t, map[string]bool{"2025-06-01": true, "2025-06-02": true}, days)
}

func TestGetTodos_SortedByTimeOfDay(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)

	testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{"title": "late", "timeOfDay": "23:00"})
	_, err := env.TodoRepo.Create(context.Background(), &models.Todo{UserID: env.Normal.ID, Title: "someday"})
	require.NoError(t, err)
	testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{"title": "early", "timeOfDay": "09:00"})

	todos := testutil.ListTestTodos(t, env.Router, token, "")
	require.Len(t, todos, 3)
	assert.Equal(t, "early", todos[0].Title)
	assert.Equal(t, "late", todos[1].Title)
	assert.Equal(t, "someday", todos[2].Title)
	assert.Nil(t, todos[2].DueAt)
}

func TestGetTodos_CompletedFilter(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)

	milk := testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{
		"title": "Buy milk", "timeOfDay": "18:00",
	})

	resp := testutil.DoJSON(t, env.Router, http.MethodPut, "/api/todos", token, map[string]interface{}{
		"id": milk.ID, "completed": true,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	done := testutil.ListTestTodos(t, env.Router, token, "completed=true")
	require.Len(t, done, 1)
	assert.Equal(t, milk.ID, done[0].ID)
	assert.True(t, done[0].Completed)

	open := testutil.ListTestTodos(t, env.Router, token, "completed=false")
	for _, td := range open {
		assert.NotEqual(t, milk.ID, td.ID)
	}
}

func TestGetTodos_Limit(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)

	for _, title := range []string{"a", "b", "c"} {
		testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{"title": title})
	}
	assert.Len(t, testutil.ListTestTodos(t, env.Router, token, "limit=2"), 2)

	for _, q := range []string{"limit=abc", "limit=0", "completed=maybe"} {
		resp := testutil.DoJSON(t, env.Router, http.MethodGet, "/api/todos?"+q, token, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code, q)
	}
}

func TestTodos_RequireAuth(t *testing.T) {
	env := testutil.SetupTestDB(t)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		resp := testutil.DoJSON(t, env.Router, method, "/api/todos", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, method)
	}

	resp := testutil.DoJSON(t, env.Router, http.MethodGet, "/api/todos", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestTodos_MethodNotAllowed(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)

	resp := testutil.DoJSON(t, env.Router, http.MethodPatch, "/api/todos", token, map[string]interface{}{"title": "x"})
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
	assert.Equal(t, "GET, POST, PUT, DELETE", resp.Header().Get("Allow"))
}

func TestCreateTodo_InvalidPayload(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)

	tests := []struct {
		name    string
		payload interface{}
		field   string
	}{
		{"missing title", map[string]interface{}{"notes": "n"}, "title"},
		{"blank title", map[string]interface{}{"title": "   "}, "title"},
		{"unknown key", map[string]interface{}{"title": "x", "priority": 1}, "body"},
		{"wrong type", map[string]interface{}{"title": 42}, "body"},
		{"bad recurrence", map[string]interface{}{"title": "x", "recurrence": "WEEKLY"}, "recurrence"},
		{"bad timeOfDay", map[string]interface{}{"title": "x", "timeOfDay": "25:00"}, "timeOfDay"},
		{"malformed json", `{"title":`, "body"},
		{"empty body", "", "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testutil.DoJSON(t, env.Router, http.MethodPost, "/api/todos", token, tt.payload)
			require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
			msg, details := decodeError(t, resp.Body.Bytes())
			assert.Equal(t, "Invalid request payload", msg)
			assert.Contains(t, details, tt.field)
		})
	}

	todos, err := env.TodoRepo.FindMany(context.Background(), env.Normal.ID, repositories.TodoFilter{})
	require.NoError(t, err)
	assert.Empty(t, todos, "nothing must be written on validation failure")
}

func TestUpdateTodo(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)

	td := testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{
		"title": "Read", "timeOfDay": "20:00",
	})

	t.Run("path id", func(t *testing.T) {
		resp := testutil.DoJSON(t, env.Router, http.MethodPut, "/api/todos/"+td.ID, token, map[string]interface{}{
			"title": "Read a book", "notes": "chapter 3", "tags": []string{"hobby"},
		})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		var res struct {
			Todo models.Todo `json:"todo"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
		assert.Equal(t, "Read a book", res.Todo.Title)
		require.NotNil(t, res.Todo.Notes)
		assert.Equal(t, "chapter 3", *res.Todo.Notes)
		assert.Equal(t, []string{"hobby"}, res.Todo.Tags)
	})

	t.Run("timeOfDay re-anchors dueAt to today", func(t *testing.T) {
		env.Clock.Advance(2 * 24 * time.Hour)
		resp := testutil.DoJSON(t, env.Router, http.MethodPut, "/api/todos", token, map[string]interface{}{
			"id": td.ID, "timeOfDay": "6:xx",
		})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		var res struct {
			Todo models.Todo `json:"todo"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
		require.NotNil(t, res.Todo.TimeOfDay)
		assert.Equal(t, "06:00", *res.Todo.TimeOfDay)
		require.NotNil(t, res.Todo.DueAt)
		assert.True(t, today(env, 6, 0).Equal(*res.Todo.DueAt), "dueAt = %v", res.Todo.DueAt)
	})

	t.Run("unknown key", func(t *testing.T) {
		resp := testutil.DoJSON(t, env.Router, http.MethodPut, "/api/todos/"+td.ID, token, map[string]interface{}{
			"userId": env.Other.ID,
		})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("shape change", func(t *testing.T) {
		resp := testutil.DoJSON(t, env.Router, http.MethodPut, "/api/todos/"+td.ID, token, map[string]interface{}{
			"recurrence": "DAILY",
		})
		require.Equal(t, http.StatusBadRequest, resp.Code)
		_, details := decodeError(t, resp.Body.Bytes())
		assert.Contains(t, details, "recurrence")
	})

	t.Run("missing id", func(t *testing.T) {
		resp := testutil.DoJSON(t, env.Router, http.MethodPut, "/api/todos", token, map[string]interface{}{"title": "x"})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("id mismatch", func(t *testing.T) {
		resp := testutil.DoJSON(t, env.Router, http.MethodPut, "/api/todos/"+td.ID, token, map[string]interface{}{
			"id": "other", "title": "x",
		})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestTodos_ScopedToOwner(t *testing.T) {
	env := testutil.SetupTestDB(t)
	owner := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)
	other := login(t, env, testutil.OtherUserEmail, testutil.OtherUserPassword)

	td := testutil.CreateTestTodo(t, env.Router, owner, map[string]interface{}{"title": "private"})
	testutil.CreateTestTodo(t, env.Router, owner, map[string]interface{}{"title": "Stretch", "recurrence": "DAILY"})

	assert.Empty(t, testutil.ListTestTodos(t, env.Router, other, ""))

	resp := testutil.DoJSON(t, env.Router, http.MethodGet, "/api/todos/"+td.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = testutil.DoJSON(t, env.Router, http.MethodPut, "/api/todos", other, map[string]interface{}{
		"id": td.ID, "completed": true,
	})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = testutil.DoJSON(t, env.Router, http.MethodDelete, "/api/todos?id="+td.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = testutil.DoJSON(t, env.Router, http.MethodGet, "/api/todos/"+td.ID, owner, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var res struct {
		Todo models.Todo `json:"todo"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
	assert.False(t, res.Todo.Completed)
}

func TestDeleteTodo(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)

	t.Run("query id", func(t *testing.T) {
		td := testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{"title": "q"})
		resp := testutil.DoJSON(t, env.Router, http.MethodDelete, "/api/todos?id="+td.ID, token, nil)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		assert.JSONEq(t, `{"message":"Deleted"}`, resp.Body.String())
	})

	t.Run("body id", func(t *testing.T) {
		td := testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{"title": "b"})
		resp := testutil.DoJSON(t, env.Router, http.MethodDelete, "/api/todos", token, map[string]interface{}{"id": td.ID})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	})

	t.Run("missing id", func(t *testing.T) {
		resp := testutil.DoJSON(t, env.Router, http.MethodDelete, "/api/todos", token, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("not found", func(t *testing.T) {
		resp := testutil.DoJSON(t, env.Router, http.MethodDelete, "/api/todos/does-not-exist", token, nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	assert.Empty(t, testutil.ListTestTodos(t, env.Router, token, ""))
}

func TestDeleteTodo_InstanceRemovesSeries(t *testing.T) {
	env := testutil.SetupTestDB(t)
	token := login(t, env, testutil.NormalUserEmail, testutil.NormalUserPassword)

	tpl := testutil.CreateTestTodo(t, env.Router, token, map[string]interface{}{
		"title": "Stretch", "recurrence": "DAILY", "timeOfDay": "07:30",
	})
	testutil.ListTestTodos(t, env.Router, token, "")
	env.Clock.Advance(24 * time.Hour)
	todos := testutil.ListTestTodos(t, env.Router, token, "")
	require.Len(t, todos, 2)

	resp := testutil.DoJSON(t, env.Router, http.MethodDelete, "/api/todos/"+todos[0].ID, token, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	_, err := env.TodoRepo.FindByID(context.Background(), env.Normal.ID, tpl.ID)
	assert.ErrorIs(t, err, repositories.ErrTodoNotFound)
	// テンプレートが消えたので再生成されない
	assert.Empty(t, testutil.ListTestTodos(t, env.Router, token, ""))
}
