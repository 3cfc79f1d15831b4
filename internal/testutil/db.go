// Package testutil builds throwaway ledger databases for tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
)

// Now is the fixed clock used across tests: a Monday morning.
var Now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func Clock() time.Time { return Now }

// NewDB returns a migrated SQLite database that lives for the duration of t.
// A single connection keeps SQLite from reporting busy errors when tests run
// settlements concurrently.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func Dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func Ptr[T any](v T) *T { return &v }

// School creates a school. Options mutate it before insert.
func School(t *testing.T, db *gorm.DB, opts ...func(*models.School)) *models.School {
	t.Helper()
	s := &models.School{Name: "Hillcrest Primary"}
	for _, opt := range opts {
		opt(s)
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

// WithCommission turns on the term-commission model.
func WithCommission(amount int64) func(*models.School) {
	return func(s *models.School) {
		s.HasCommission = true
		s.CommissionAmount = Dec(amount)
	}
}

func WithPayoutPhone(phone string) func(*models.School) {
	return func(s *models.School) { s.DisbursementPhoneNumber = &phone }
}

func WithBank(paybill, account string) func(*models.School) {
	return func(s *models.School) {
		s.BankPaybillNumber = &paybill
		s.BankAccountNumber = &account
	}
}

// Student creates a student attached to school, or a carpool student when
// school is nil.
func Student(t *testing.T, db *gorm.DB, school *models.School, opts ...func(*models.Student)) *models.Student {
	t.Helper()
	s := &models.Student{
		Name:        "Amani Otieno",
		ServiceType: models.ServiceTypeCarpool,
		DailyFee:    Dec(50),
		TermFee:     Dec(1000),
	}
	if school != nil {
		s.ServiceType = models.ServiceTypeSchool
		s.SchoolID = &school.ID
	}
	for _, opt := range opts {
		opt(s)
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

// Term creates an active term running for three months from Now. A nil
// school makes it the platform term.
func Term(t *testing.T, db *gorm.DB, school *models.School) *models.PaymentTerm {
	t.Helper()
	term := &models.PaymentTerm{
		Name:      "Term 1 2026",
		StartDate: Now.AddDate(0, 0, -7),
		EndDate:   Now.AddDate(0, 3, 0),
		IsActive:  true,
	}
	if school != nil {
		term.SchoolID = &school.ID
	}
	require.NoError(t, db.Create(term).Error)
	return term
}

// Subscription creates a live subscription with nothing paid.
func Subscription(t *testing.T, db *gorm.DB, student *models.Student, opts ...func(*models.Subscription)) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		StudentID: student.ID,
		Status:    models.SubscriptionStatusActive,
		TotalPaid: decimal.Zero,
		Balance:   student.TermFee,
	}
	for _, opt := range opts {
		opt(sub)
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

// Reload fetches the current row for a model that has already been created.
func Reload[T any](t *testing.T, db *gorm.DB, id uint) *T {
	t.Helper()
	var v T
	require.NoError(t, db.First(&v, id).Error)
	return &v
}
