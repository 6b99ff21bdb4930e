// Package modelsはTodoとUserを定義します。
package models

import (
	"time"
)

// Recurrence は繰り返し種別です。
type Recurrence string

const (
	RecurrenceNone  Recurrence = "NONE"
	RecurrenceDaily Recurrence = "DAILY"
)

// Todo はテンプレート (毎日の繰り返しルール) またはインスタンス (特定日のタスク) です。
//
// テンプレート: IsTemplate=true, Recurrence=DAILY, TemplateID=nil, DueAt=nil
// 生成インスタンス: IsTemplate=false, Recurrence=NONE, TemplateID!=nil
// 単発インスタンス: IsTemplate=false, Recurrence=NONE, TemplateID=nil
type Todo struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Title      string     `json:"title"`
	Notes      *string    `json:"notes"`
	Tags       []string   `json:"tags"`
	Completed  bool       `json:"completed"`
	DueAt      *time.Time `json:"dueAt"`
	TimeOfDay  *string    `json:"timeOfDay"`
	Recurrence Recurrence `json:"recurrence"`
	IsTemplate bool       `json:"isTemplate"`
	TemplateID *string    `json:"templateId"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`

	// DueDay は生成インスタンスの生成日 (YYYY-MM-DD)。(template_id, due_day) は一意。
	DueDay *string `json:"-"`
}

// IsGenerated はテンプレートから生成されたインスタンスかを返します。
func (t *Todo) IsGenerated() bool {
	return t.TemplateID != nil && *t.TemplateID != ""
}

// CreateTodoRequest は POST /api/todos のペイロードです。
type CreateTodoRequest struct {
	Title      string     `json:"title" binding:"required,max=255"`
	Notes      *string    `json:"notes"`
	Tags       []string   `json:"tags" binding:"omitempty,dive,max=64"`
	Recurrence *string    `json:"recurrence"`
	TimeOfDay  *string    `json:"timeOfDay" binding:"omitempty,max=5"`
	DueDate    *time.Time `json:"dueDate"`
	IsTemplate *bool      `json:"isTemplate"`
	Completed  *bool      `json:"completed"`
}

// UpdateTodoRequest は PUT /api/todos のペイロードです。
// nil のフィールドは変更しません。未知のキーはバインド時に拒否されます。
// recurrence と isTemplate は現在の値と同じ場合のみ受け付け、
// テンプレートとインスタンスの形を変える更新は ValidationError (400) になります。
type UpdateTodoRequest struct {
	ID         string    `json:"id"`
	Title      *string   `json:"title" binding:"omitempty,max=255"`
	Notes      *string   `json:"notes"`
	Tags       *[]string `json:"tags"`
	Completed  *bool     `json:"completed"`
	TimeOfDay  *string   `json:"timeOfDay" binding:"omitempty,max=5"`
	Recurrence *string   `json:"recurrence"`
	IsTemplate *bool     `json:"isTemplate"`
}

// DeleteTodoRequest は DELETE /api/todos のボディです。
type DeleteTodoRequest struct {
	ID string `json:"id"`
}
