package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"wellness-todo/backend/internal/models"
)

var todoColumns = []string{
	"id", "user_id", "title", "notes", "tags", "completed", "due_at", "due_day",
	"time_of_day", "recurrence", "is_template", "template_id", "created_at", "updated_at",
}

// todoRow は todos テーブルの1行です。
type todoRow struct {
	ID         string         `db:"id"`
	UserID     string         `db:"user_id"`
	Title      string         `db:"title"`
	Notes      sql.NullString `db:"notes"`
	Tags       string         `db:"tags"`
	Completed  bool           `db:"completed"`
	DueAt      sql.NullTime   `db:"due_at"`
	DueDay     sql.NullString `db:"due_day"`
	TimeOfDay  sql.NullString `db:"time_of_day"`
	Recurrence string         `db:"recurrence"`
	IsTemplate bool           `db:"is_template"`
	TemplateID sql.NullString `db:"template_id"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r todoRow) toModel() (*models.Todo, error) {
	t := &models.Todo{
		ID:         r.ID,
		UserID:     r.UserID,
		Title:      r.Title,
		Completed:  r.Completed,
		Recurrence: models.Recurrence(r.Recurrence),
		IsTemplate: r.IsTemplate,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Tags:       []string{},
	}
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &t.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags of todo %s: %w", r.ID, err)
		}
	}
	if r.Notes.Valid {
		t.Notes = &r.Notes.String
	}
	if r.DueAt.Valid {
		due := r.DueAt.Time
		t.DueAt = &due
	}
	if r.DueDay.Valid {
		t.DueDay = &r.DueDay.String
	}
	if r.TimeOfDay.Valid {
		t.TimeOfDay = &r.TimeOfDay.String
	}
	if r.TemplateID.Valid {
		t.TemplateID = &r.TemplateID.String
	}
	return t, nil
}

// TodoFilter は FindMany の絞り込み条件です。nil は条件なし。
type TodoFilter struct {
	Completed  *bool
	IsTemplate *bool
	Limit      uint64
}

// TodoPatch は更新可能なフィールドの閉じた集合です。nil のフィールドは変更しません。
type TodoPatch struct {
	Title     *string
	Notes     *string // 空文字は NULL にする
	Tags      *[]string
	Completed *bool
	TimeOfDay *string
	DueAt     *time.Time
}

// IsEmpty は変更が無いかを返します。
func (p TodoPatch) IsEmpty() bool {
	return p.Title == nil && p.Notes == nil && p.Tags == nil && p.Completed == nil &&
		p.TimeOfDay == nil && p.DueAt == nil
}

// TodoRepository は todos テーブルへの操作を行います。
// すべてのクエリは user_id で絞り込みます。
type TodoRepository struct {
	DB      *sqlx.DB
	timeout time.Duration
}

// NewTodoRepository は新しいTodoRepositoryインスタンスを作成します。
// timeout は各クエリの上限時間です (0 以下なら無制限)。
func NewTodoRepository(db *sqlx.DB, timeout time.Duration) *TodoRepository {
	return &TodoRepository{DB: db, timeout: timeout}
}

func (r *TodoRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Create は新しいTodoを挿入します。ID とタイムスタンプはここで設定します。
// 同じテンプレート・同じ日のインスタンスが既にある場合は ErrDuplicateInstance を返します。
func (r *TodoRepository) Create(ctx context.Context, t *models.Todo) (*models.Todo, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Recurrence == "" {
		t.Recurrence = models.RecurrenceNone
	}
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return nil, fmt.Errorf("encoding tags: %w", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	t.CreatedAt = now
	t.UpdatedAt = now

	var dueAt interface{}
	if t.DueAt != nil {
		dueAt = t.DueAt.UTC()
	}

	query, args, err := sq.Insert("todos").
		Columns(todoColumns...).
		Values(t.ID, t.UserID, t.Title, nullable(t.Notes), string(tags), t.Completed, dueAt, nullable(t.DueDay),
			nullable(t.TimeOfDay), string(t.Recurrence), t.IsTemplate, nullable(t.TemplateID), now, now).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building insert: %w", err)
	}

	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) && t.IsGenerated() {
			return nil, fmt.Errorf("template %s on %s: %w", *t.TemplateID, deref(t.DueDay), ErrDuplicateInstance)
		}
		log.Printf("Failed to insert todo for user %s: %v", t.UserID, err)
		return nil, fmt.Errorf("could not insert todo: %w", err)
	}
	return t, nil
}

// FindMany はユーザーのTodoを条件で取得します。
// dueAt の新しい順 (dueAt が無いものは最後) に並べてから Limit を適用するため、
// 古いインスタンスが上限を埋めても今日の分は切り捨てられません。
func (r *TodoRepository) FindMany(ctx context.Context, userID string, f TodoFilter) ([]*models.Todo, error) {
	where := sq.Eq{"user_id": userID}
	if f.Completed != nil {
		where["completed"] = *f.Completed
	}
	if f.IsTemplate != nil {
		where["is_template"] = *f.IsTemplate
	}

	b := sq.Select(todoColumns...).From("todos").Where(where).
		OrderBy("due_at IS NULL", "due_at DESC", "created_at DESC", "id DESC")
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	return r.selectTodos(ctx, b)
}

// FindDailyTemplates はユーザーの毎日テンプレートを取得します。
func (r *TodoRepository) FindDailyTemplates(ctx context.Context, userID string) ([]*models.Todo, error) {
	b := sq.Select(todoColumns...).From("todos").Where(sq.Eq{
		"user_id":     userID,
		"is_template": true,
		"recurrence":  string(models.RecurrenceDaily),
	})
	return r.selectTodos(ctx, b)
}

// InstanceExists は templateID から day (YYYY-MM-DD) に生成されたインスタンスがあるかを返します。
func (r *TodoRepository) InstanceExists(ctx context.Context, userID, templateID, day string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := sq.Select("COUNT(*)").From("todos").Where(sq.Eq{
		"user_id":     userID,
		"is_template": false,
		"template_id": templateID,
		"due_day":     day,
	}).ToSql()
	if err != nil {
		return false, fmt.Errorf("building count: %w", err)
	}

	var n int
	if err := r.DB.GetContext(ctx, &n, query, args...); err != nil {
		return false, fmt.Errorf("could not count instances of template %s: %w", templateID, err)
	}
	return n > 0, nil
}

// FindByID は指定されたIDのTodoを取得します。他ユーザーのTodoは ErrTodoNotFound です。
func (r *TodoRepository) FindByID(ctx context.Context, userID, id string) (*models.Todo, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return findByID(ctx, r.DB, userID, id)
}

func findByID(ctx context.Context, q sqlx.QueryerContext, userID, id string) (*models.Todo, error) {
	query, args, err := sq.Select(todoColumns...).From("todos").
		Where(sq.Eq{"user_id": userID, "id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	var row todoRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTodoNotFound
		}
		log.Printf("Failed to query todo by ID: %v", err)
		return nil, fmt.Errorf("could not query todo: %w", err)
	}
	return row.toModel()
}

// Update は許可されたフィールドだけを更新し、更新後のTodoを返します。
func (r *TodoRepository) Update(ctx context.Context, userID, id string, p TodoPatch) (*models.Todo, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if p.IsEmpty() {
		return findByID(ctx, r.DB, userID, id)
	}

	set := map[string]interface{}{
		"updated_at": time.Now().UTC().Truncate(time.Second),
	}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Notes != nil {
		if *p.Notes == "" {
			set["notes"] = nil
		} else {
			set["notes"] = *p.Notes
		}
	}
	if p.Tags != nil {
		tags := *p.Tags
		if tags == nil {
			tags = []string{}
		}
		b, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("encoding tags: %w", err)
		}
		set["tags"] = string(b)
	}
	if p.Completed != nil {
		set["completed"] = *p.Completed
	}
	if p.TimeOfDay != nil {
		set["time_of_day"] = *p.TimeOfDay
	}
	if p.DueAt != nil {
		set["due_at"] = p.DueAt.UTC()
	}

	query, args, err := sq.Update("todos").SetMap(set).
		Where(sq.Eq{"user_id": userID, "id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building update: %w", err)
	}

	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		log.Printf("Failed to update todo %s: %v", id, err)
		return nil, fmt.Errorf("could not update todo: %w", err)
	}

	// MySQL は値が変わらないと RowsAffected=0 になるため、存在確認は再取得で行う
	return findByID(ctx, r.DB, userID, id)
}

// DeleteCascade は Todo を削除します。テンプレートまたは生成インスタンスの場合は
// テンプレートとその全インスタンスを1トランザクションで削除します。
// 削除した行数を返します。
func (r *TodoRepository) DeleteCascade(ctx context.Context, userID, id string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var deleted int64
	err := WithTransaction(ctx, r.DB, func(tx *sqlx.Tx) error {
		target, err := findByID(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		var cond sq.Sqlizer
		switch {
		case target.IsGenerated():
			root := *target.TemplateID
			cond = sq.And{sq.Eq{"user_id": userID}, sq.Or{sq.Eq{"id": root}, sq.Eq{"template_id": root}}}
		case target.IsTemplate:
			cond = sq.And{sq.Eq{"user_id": userID}, sq.Or{sq.Eq{"id": target.ID}, sq.Eq{"template_id": target.ID}}}
		default:
			cond = sq.Eq{"user_id": userID, "id": target.ID}
		}

		query, args, err := sq.Delete("todos").Where(cond).ToSql()
		if err != nil {
			return fmt.Errorf("building delete: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			log.Printf("Failed to delete todo %s (user %s): %v", id, userID, err)
			return fmt.Errorf("could not delete todo: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("could not get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *TodoRepository) selectTodos(ctx context.Context, b sq.SelectBuilder) ([]*models.Todo, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	var rows []todoRow
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		log.Printf("Failed to query todos: %v", err)
		return nil, fmt.Errorf("could not query todos: %w", err)
	}

	todos := make([]*models.Todo, 0, len(rows))
	for _, row := range rows {
		t, err := row.toModel()
		if err != nil {
			return nil, err
		}
		todos = append(todos, t)
	}
	return todos, nil
}

// nullable は nil ポインタを SQL の NULL にします。
func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
