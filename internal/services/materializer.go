package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"wellness-todo/backend/internal/clock"
	"wellness-todo/backend/internal/models"
	"wellness-todo/backend/internal/repositories"
)

// ReconcileReport は1回の照合パスの結果です。
type ReconcileReport struct {
	Templates  int
	Created    int
	Existing   int
	Duplicates int // 同時リクエストに先を越された (一意制約で弾かれた) 件数
	Failed     int
	Errors     []error
}

// Materializer は毎日テンプレートから "今日" のインスタンスを遅延生成します。
type Materializer struct {
	store TodoStore
	clock clock.Clock
}

// NewMaterializer は新しいMaterializerを作成します。
func NewMaterializer(store TodoStore, c clock.Clock) *Materializer {
	return &Materializer{store: store, clock: c}
}

// Reconcile はユーザーの各毎日テンプレートについて、今日のインスタンスが
// 無ければ作成します。テンプレート単位の失敗はログに残して次へ進み、
// 呼び出し元の一覧取得を止めません。
func (m *Materializer) Reconcile(ctx context.Context, userID string) ReconcileReport {
	var report ReconcileReport

	loc := m.clock.Location()
	now := m.clock.Now()
	startOfDay := clock.StartOfDay(now, loc)
	today := clock.DayKey(now, loc)

	templates, err := m.store.FindDailyTemplates(ctx, userID)
	if err != nil {
		log.Printf("Reconcile: failed to load templates for user %s: %v", userID, err)
		report.Failed++
		report.Errors = append(report.Errors, err)
		return report
	}
	report.Templates = len(templates)

	for _, tpl := range templates {
		created, err := m.materialize(ctx, userID, tpl, startOfDay, today)
		switch {
		case errors.Is(err, repositories.ErrDuplicateInstance):
			report.Duplicates++
		case err != nil:
			log.Printf("Reconcile: template %s (user %s) on %s: %v", tpl.ID, userID, today, err)
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("template %s: %w", tpl.ID, err))
		case created:
			report.Created++
		default:
			report.Existing++
		}
	}
	return report
}

// materialize は tpl の today 分のインスタンスを作成します。既にあれば false を返します。
func (m *Materializer) materialize(ctx context.Context, userID string, tpl *models.Todo, startOfDay time.Time, today string) (bool, error) {
	exists, err := m.store.InstanceExists(ctx, userID, tpl.ID, today)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	hour, minute := DefaultTemplateHour, DefaultTemplateMinute
	if tpl.TimeOfDay != nil {
		if h, mm, ok := parseClock(*tpl.TimeOfDay); ok {
			hour, minute = h, mm
		}
	}
	// 夏時間の日でも壁時計の時刻に合わせる
	dueAt := atClock(startOfDay, startOfDay.Location(), hour, minute)
	timeOfDay := formatClock(hour, minute)
	templateID := tpl.ID
	day := today

	instance := &models.Todo{
		UserID:     userID,
		Title:      tpl.Title,
		Notes:      tpl.Notes,
		Tags:       append([]string{}, tpl.Tags...),
		Completed:  false,
		DueAt:      &dueAt,
		TimeOfDay:  &timeOfDay,
		Recurrence: models.RecurrenceNone,
		IsTemplate: false,
		TemplateID: &templateID,
		DueDay:     &day,
	}
	if _, err := m.store.Create(ctx, instance); err != nil {
		return false, err
	}
	return true, nil
}
