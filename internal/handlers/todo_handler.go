package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"wellness-todo/backend/internal/models"
	"wellness-todo/backend/internal/repositories"
	"wellness-todo/backend/internal/services"
)

// TodoHandler はTodo関連のハンドラーを管理します。
type TodoHandler struct {
	todoService *services.TodoService
}

// NewTodoHandler は新しいTodoHandlerを作成します。
func NewTodoHandler(todoService *services.TodoService) *TodoHandler {
	return &TodoHandler{todoService: todoService}
}

// GetTodosHandler は照合パスの後、今日のTodoリストを返します。
func (h *TodoHandler) GetTodosHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var opts services.ListOptions
	if v := c.Query("completed"); v != "" {
		completed, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, map[string]string{"completed": "must be true or false"})
			return
		}
		opts.Completed = &completed
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			badRequest(c, map[string]string{"limit": "must be a positive integer"})
			return
		}
		opts.Limit = limit
	}

	todos, err := h.todoService.ListTodos(c.Request.Context(), userID, opts)
	if err != nil {
		h.respondError(c, err, "fetch todos")
		return
	}
	c.JSON(http.StatusOK, gin.H{"todos": todos})
}

// GetTodoByIDHandler は指定IDのTodoを取得します。
func (h *TodoHandler) GetTodoByIDHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	todo, err := h.todoService.GetTodoByID(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "fetch todo")
		return
	}
	c.JSON(http.StatusOK, gin.H{"todo": todo})
}

// CreateTodoHandler は新しいTodoを作成します。
func (h *TodoHandler) CreateTodoHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req models.CreateTodoRequest
	if err := bindStrictJSON(c, &req); err != nil {
		bindError(c, err)
		return
	}

	created, err := h.todoService.CreateTodo(c.Request.Context(), userID, req)
	if err != nil {
		h.respondError(c, err, "save todo")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"todo": created})
}

// UpdateTodoHandler はTodoを更新します。IDはパスかボディで指定します。
func (h *TodoHandler) UpdateTodoHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req models.UpdateTodoRequest
	if err := bindStrictJSON(c, &req); err != nil {
		bindError(c, err)
		return
	}
	id := c.Param("id")
	switch {
	case id == "" && req.ID == "":
		badRequest(c, map[string]string{"id": "is required"})
		return
	case id == "":
		id = req.ID
	case req.ID != "" && req.ID != id:
		badRequest(c, map[string]string{"id": "does not match the path"})
		return
	}

	updated, err := h.todoService.UpdateTodo(c.Request.Context(), userID, id, req)
	if err != nil {
		h.respondError(c, err, "update todo")
		return
	}
	c.JSON(http.StatusOK, gin.H{"todo": updated})
}

// DeleteTodoHandler はTodoを削除します。IDはパス、クエリ、ボディのいずれかで指定します。
func (h *TodoHandler) DeleteTodoHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if id == "" {
		id = c.Query("id")
	}
	if id == "" && c.Request.ContentLength != 0 {
		var req models.DeleteTodoRequest
		if err := bindStrictJSON(c, &req); err != nil {
			bindError(c, err)
			return
		}
		id = req.ID
	}
	if id == "" {
		badRequest(c, map[string]string{"id": "is required"})
		return
	}

	if err := h.todoService.DeleteTodo(c.Request.Context(), userID, id); err != nil {
		h.respondError(c, err, "delete todo")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}

// respondError はサービスのエラーをHTTPステータスに変換します。
// ストアの失敗はログに残し、クライアントには汎用メッセージのみ返します。
func (h *TodoHandler) respondError(c *gin.Context, err error, action string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		badRequest(c, verr.Fields)
	case errors.Is(err, repositories.ErrTodoNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Todo not found"})
	default:
		userID, _ := c.Get("user_id")
		log.Printf("Failed to %s (user %v): %v", action, userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
	}
}

// currentUserID は AuthMiddleware が設定したユーザーIDを返します。無ければ401を返します。
func currentUserID(c *gin.Context) (string, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in context"})
		return "", false
	}
	userID, ok := userIDVal.(string)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID in context"})
		return "", false
	}
	return userID, true
}
