package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"event-checkin-backend/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("unique constraint violated")
)

// AttendeeRepository is the set of reads and writes on attendees and their audit trail.
// Conditional writes report whether their guard matched, so callers can decide the branch
// from the write itself instead of from an earlier read.
type AttendeeRepository interface {
	CreateAttendee(ctx context.Context, a *model.Attendee) error
	FindAttendeeByTag(ctx context.Context, tagID string) (*model.Attendee, error)
	FindAttendeeByRegistrationID(ctx context.Context, registrationID string) (*model.Attendee, error)
	TagInUse(ctx context.Context, tagID string) (bool, error)

	// BindTag sets the tag only while the attendee has none.
	BindTag(ctx context.Context, attendeeID int64, tagID string, markInside bool) (bool, error)
	// MarkEntered flips is_inside to true only when it is currently false.
	MarkEntered(ctx context.Context, attendeeID int64) (bool, error)
	SetInside(ctx context.Context, attendeeID int64, inside bool) error
	// ConsumeMealCredit decrements meal_credits only while it is positive and returns the remainder.
	ConsumeMealCredit(ctx context.Context, attendeeID int64) (remaining int, ok bool, err error)
	// AdjustMealCredits applies delta only when the result stays non-negative.
	AdjustMealCredits(ctx context.Context, attendeeID int64, delta int) (bool, error)

	AppendLog(ctx context.Context, entry *model.AuditLog) error
	ListLogs(ctx context.Context, attendeeID int64) ([]model.AuditLog, error)
}

// Store is the root persistence handle. InTx runs fn against a transaction-bound repository;
// every state check and its writes inside fn commit or roll back together.
type Store interface {
	AttendeeRepository
	InTx(ctx context.Context, fn func(repo AttendeeRepository) error) error
	Stats(ctx context.Context) (Stats, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)

	DB() *gorm.DB
}

// Stats is an aggregate snapshot of the directory.
type Stats struct {
	Registered    int64 `json:"registered"`
	Bound         int64 `json:"bound"`
	Inside        int64 `json:"inside"`
	MealsRedeemed int64 `json:"mealsRedeemed"`
	MealsDenied   int64 `json:"mealsDenied"`
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// InTx opens a transaction and hands fn a repository bound to it.
func (s *gormStore) InTx(ctx context.Context, fn func(repo AttendeeRepository) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx, inTx: true})
	})
}

func (s *gormStore) CreateAttendee(ctx context.Context, a *model.Attendee) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return translate(err, "create attendee %q", a.RegistrationID)
	}
	return nil
}

func (s *gormStore) FindAttendeeByTag(ctx context.Context, tagID string) (*model.Attendee, error) {
	var a model.Attendee
	if err := s.reader(ctx).Where("tag_id = ?", tagID).First(&a).Error; err != nil {
		return nil, translate(err, "find attendee by tag %q", tagID)
	}
	return &a, nil
}

func (s *gormStore) FindAttendeeByRegistrationID(ctx context.Context, registrationID string) (*model.Attendee, error) {
	var a model.Attendee
	if err := s.reader(ctx).Where("registration_id = ?", registrationID).First(&a).Error; err != nil {
		return nil, translate(err, "find attendee %q", registrationID)
	}
	return &a, nil
}

func (s *gormStore) TagInUse(ctx context.Context, tagID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Attendee{}).Where("tag_id = ?", tagID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check tag %q: %w", tagID, err)
	}
	return count > 0, nil
}

func (s *gormStore) BindTag(ctx context.Context, attendeeID int64, tagID string, markInside bool) (bool, error) {
	updates := map[string]any{"tag_id": tagID}
	if markInside {
		updates["is_inside"] = true
	}
	res := s.db.WithContext(ctx).Model(&model.Attendee{}).
		Where("id = ? AND tag_id IS NULL", attendeeID).
		Updates(updates)
	if res.Error != nil {
		return false, translate(res.Error, "bind tag %q to attendee %d", tagID, attendeeID)
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) MarkEntered(ctx context.Context, attendeeID int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Attendee{}).
		Where("id = ? AND is_inside = ?", attendeeID, false).
		Update("is_inside", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark attendee %d inside: %w", attendeeID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) SetInside(ctx context.Context, attendeeID int64, inside bool) error {
	if err := s.db.WithContext(ctx).Model(&model.Attendee{}).
		Where("id = ?", attendeeID).
		Update("is_inside", inside).Error; err != nil {
		return fmt.Errorf("failed to set is_inside for attendee %d: %w", attendeeID, err)
	}
	return nil
}

func (s *gormStore) ConsumeMealCredit(ctx context.Context, attendeeID int64) (int, bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Attendee{}).
		Where("id = ? AND meal_credits > ?", attendeeID, 0).
		Update("meal_credits", gorm.Expr("meal_credits - ?", 1))
	if res.Error != nil {
		return 0, false, fmt.Errorf("failed to consume meal credit for attendee %d: %w", attendeeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}

	var remaining int
	if err := s.db.WithContext(ctx).Model(&model.Attendee{}).
		Select("meal_credits").
		Where("id = ?", attendeeID).
		Scan(&remaining).Error; err != nil {
		return 0, false, fmt.Errorf("failed to read meal credits for attendee %d: %w", attendeeID, err)
	}
	return remaining, true, nil
}

func (s *gormStore) AdjustMealCredits(ctx context.Context, attendeeID int64, delta int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Attendee{}).
		Where("id = ? AND meal_credits + ? >= 0", attendeeID, delta).
		Update("meal_credits", gorm.Expr("meal_credits + ?", delta))
	if res.Error != nil {
		return false, fmt.Errorf("failed to adjust meal credits for attendee %d: %w", attendeeID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) AppendLog(ctx context.Context, entry *model.AuditLog) error {
	if entry.UUID == "" {
		entry.UUID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Omit("Attendee").Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append %s log for attendee %d: %w", entry.Action, entry.AttendeeID, err)
	}
	return nil
}

func (s *gormStore) ListLogs(ctx context.Context, attendeeID int64) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	if err := s.db.WithContext(ctx).
		Where("attendee_id = ?", attendeeID).
		Order("created_at ASC, id ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list logs for attendee %d: %w", attendeeID, err)
	}
	return logs, nil
}

// Stats aggregates the attendee and audit tables.
func (s *gormStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)

	if err := db.Model(&model.Attendee{}).
		Select("COUNT(*) AS registered, " +
			"COALESCE(SUM(CASE WHEN tag_id IS NOT NULL THEN 1 ELSE 0 END), 0) AS bound, " +
			"COALESCE(SUM(CASE WHEN is_inside THEN 1 ELSE 0 END), 0) AS inside").
		Scan(&st).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate attendees: %w", err)
	}

	type actionCount struct {
		Action string
		Total  int64
	}
	var counts []actionCount
	if err := db.Model(&model.AuditLog{}).
		Select("action, COUNT(*) AS total").
		Where("action IN ?", []string{model.ActionMealRedeemed, model.ActionMealDenied}).
		Group("action").
		Scan(&counts).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate audit logs: %w", err)
	}
	for _, c := range counts {
		switch c.Action {
		case model.ActionMealRedeemed:
			st.MealsRedeemed = c.Total
		case model.ActionMealDenied:
			st.MealsDenied = c.Total
		}
	}
	return st, nil
}

// reader returns a query handle; inside a postgres transaction the row is locked for update.
func (s *gormStore) reader(ctx context.Context) *gorm.DB {
	db := s.db.WithContext(ctx)
	if s.inTx && db.Dialector.Name() == "postgres" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func translate(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", msg, ErrConflict)
	default:
		return fmt.Errorf("failed to %s: %w", msg, err)
	}
}

// UpsertSubscription creates a subscription or refreshes its keys.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "label"}),
	}).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, translate(err, "get subscription")
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *gormStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}
