package services

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"wellness-todo/backend/internal/clock"
	"wellness-todo/backend/internal/models"
	"wellness-todo/backend/internal/repositories"
)

const (
	DefaultListLimit = 200
	MaxListLimit     = 500
)

// TodoStore は TodoService が使う永続化操作です。
type TodoStore interface {
	Create(ctx context.Context, t *models.Todo) (*models.Todo, error)
	FindMany(ctx context.Context, userID string, f repositories.TodoFilter) ([]*models.Todo, error)
	FindByID(ctx context.Context, userID, id string) (*models.Todo, error)
	FindDailyTemplates(ctx context.Context, userID string) ([]*models.Todo, error)
	InstanceExists(ctx context.Context, userID, templateID, day string) (bool, error)
	Update(ctx context.Context, userID, id string, p repositories.TodoPatch) (*models.Todo, error)
	DeleteCascade(ctx context.Context, userID, id string) (int64, error)
}

// ListOptions は一覧取得の条件です。
type ListOptions struct {
	Completed *bool
	Limit     int
}

// TodoService はTodo関連のビジネスロジックを扱います。
type TodoService struct {
	store        TodoStore
	clock        clock.Clock
	materializer *Materializer
}

// NewTodoService は新しいTodoServiceを作成します。
func NewTodoService(store TodoStore, c clock.Clock) *TodoService {
	return &TodoService{
		store:        store,
		clock:        c,
		materializer: NewMaterializer(store, c),
	}
}

// ListTodos は照合パスを実行してから、ユーザーのインスタンス (テンプレート以外) を
// 期限の時刻順で返します。期限の無いものは最後です。
func (s *TodoService) ListTodos(ctx context.Context, userID string, opts ListOptions) ([]*models.Todo, error) {
	report := s.materializer.Reconcile(ctx, userID)
	if report.Created > 0 || report.Failed > 0 {
		log.Printf("Reconcile user %s: templates=%d created=%d existing=%d duplicates=%d failed=%d",
			userID, report.Templates, report.Created, report.Existing, report.Duplicates, report.Failed)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	notTemplate := false
	todos, err := s.store.FindMany(ctx, userID, repositories.TodoFilter{
		Completed:  opts.Completed,
		IsTemplate: &notTemplate,
		Limit:      uint64(limit),
	})
	if err != nil {
		return nil, err
	}
	SortByTimeOfDay(todos, s.clock.Location())
	return todos, nil
}

// GetTodoByID はユーザーのTodoを1件取得します。
func (s *TodoService) GetTodoByID(ctx context.Context, userID, id string) (*models.Todo, error) {
	return s.store.FindByID(ctx, userID, id)
}

// CreateTodo はテンプレートか単発インスタンスかを判断して作成します。
func (s *TodoService) CreateTodo(ctx context.Context, userID string, req models.CreateTodoRequest) (*models.Todo, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, newValidationError("title", "must not be empty")
	}
	recurrence := models.RecurrenceNone
	if req.Recurrence != nil {
		r, ok := parseRecurrence(*req.Recurrence)
		if !ok {
			return nil, newValidationError("recurrence", "must be NONE or DAILY")
		}
		recurrence = r
	}

	loc := s.clock.Location()
	now := s.clock.Now()

	var explicit *string
	if req.TimeOfDay != nil && strings.TrimSpace(*req.TimeOfDay) != "" {
		h, m, ok := parseClock(*req.TimeOfDay)
		if !ok {
			return nil, newValidationError("timeOfDay", "must be HH:MM")
		}
		v := formatClock(h, m)
		explicit = &v
	}

	todo := &models.Todo{
		UserID: userID,
		Title:  title,
		Notes:  req.Notes,
		Tags:   cleanTags(req.Tags),
	}

	if recurrence == models.RecurrenceDaily || (req.IsTemplate != nil && *req.IsTemplate) {
		todo.IsTemplate = true
		todo.Recurrence = models.RecurrenceDaily
		todo.TimeOfDay = explicit
		if todo.TimeOfDay == nil && req.DueDate != nil {
			v := clockOf(*req.DueDate, loc)
			todo.TimeOfDay = &v
		}
		return s.store.Create(ctx, todo)
	}

	timeOfDay := clockOf(now, loc)
	if explicit != nil {
		timeOfDay = *explicit
	} else if req.DueDate != nil {
		timeOfDay = clockOf(*req.DueDate, loc)
	}
	hour, minute := parseClockLenient(timeOfDay)
	day := now
	if req.DueDate != nil {
		day = *req.DueDate
	}
	dueAt := atClock(day, loc, hour, minute)

	todo.Recurrence = models.RecurrenceNone
	todo.TimeOfDay = &timeOfDay
	todo.DueAt = &dueAt
	if req.Completed != nil {
		todo.Completed = *req.Completed
	}
	return s.store.Create(ctx, todo)
}

// UpdateTodo は許可されたフィールドだけを更新します。
// timeOfDay を変更すると、dueAt は今日のその時刻に付け替えられます。
// テンプレート⇔インスタンスの形を変える更新は拒否します。
func (s *TodoService) UpdateTodo(ctx context.Context, userID, id string, req models.UpdateTodoRequest) (*models.Todo, error) {
	existing, err := s.store.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	verr := &ValidationError{}
	var patch repositories.TodoPatch

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			verr.add("title", "must not be empty")
		}
		patch.Title = &title
	}
	if req.Recurrence != nil {
		r, ok := parseRecurrence(*req.Recurrence)
		switch {
		case !ok:
			verr.add("recurrence", "must be NONE or DAILY")
		case r != existing.Recurrence:
			verr.add("recurrence", "cannot change the recurrence of an existing todo")
		}
	}
	if req.IsTemplate != nil && *req.IsTemplate != existing.IsTemplate {
		verr.add("isTemplate", "cannot convert between template and instance")
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	if req.Notes != nil {
		patch.Notes = req.Notes
	}
	if req.Tags != nil {
		tags := cleanTags(*req.Tags)
		patch.Tags = &tags
	}
	if req.Completed != nil && !existing.IsTemplate {
		patch.Completed = req.Completed
	}
	if req.TimeOfDay != nil {
		hour, minute := parseClockLenient(*req.TimeOfDay)
		timeOfDay := formatClock(hour, minute)
		patch.TimeOfDay = &timeOfDay
		if !existing.IsTemplate {
			dueAt := atClock(s.clock.Now(), s.clock.Location(), hour, minute)
			patch.DueAt = &dueAt
		}
	}

	return s.store.Update(ctx, userID, id, patch)
}

// DeleteTodo はTodoを削除します。テンプレートと生成インスタンスは系列ごと削除されます。
func (s *TodoService) DeleteTodo(ctx context.Context, userID, id string) error {
	n, err := s.store.DeleteCascade(ctx, userID, id)
	if err != nil {
		return err
	}
	if n > 1 {
		log.Printf("Deleted todo %s for user %s with %d related rows", id, userID, n-1)
	}
	return nil
}

// SortByTimeOfDay は dueAt の (loc での) 時刻だけで昇順に並べます。dueAt が無いものは最後です。
func SortByTimeOfDay(todos []*models.Todo, loc *time.Location) {
	key := func(t *models.Todo) int {
		if t.DueAt == nil {
			return 24 * 60 * 60
		}
		local := t.DueAt.In(loc)
		return local.Hour()*3600 + local.Minute()*60 + local.Second()
	}
	sort.SliceStable(todos, func(i, j int) bool {
		ki, kj := key(todos[i]), key(todos[j])
		if ki != kj {
			return ki < kj
		}
		if !todos[i].CreatedAt.Equal(todos[j].CreatedAt) {
			return todos[i].CreatedAt.Before(todos[j].CreatedAt)
		}
		return todos[i].ID < todos[j].ID
	})
}

func parseRecurrence(s string) (models.Recurrence, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(models.RecurrenceNone):
		return models.RecurrenceNone, true
	case string(models.RecurrenceDaily):
		return models.RecurrenceDaily, true
	}
	return "", false
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
