package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
)

// Ledger bookkeeping helpers. Functions taking a tx expect to run inside the
// settlement transaction.

// findLiveSubscription returns the student's current subscription without
// locking it.
func findLiveSubscription(db *gorm.DB, studentID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := db.Where("student_id = ? AND status IN ?", studentID, models.LiveSubscriptionStatuses).
		Order("id desc").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

// lockLiveSubscription is findLiveSubscription with a row lock, so concurrent
// settlements for one student apply one after the other.
func lockLiveSubscription(tx *gorm.DB, studentID uint) (*models.Subscription, error) {
	return findLiveSubscription(forUpdate(tx), studentID)
}

// lockPendingPayment returns nil, nil when the checkout has already been
// settled (or never existed).
func lockPendingPayment(tx *gorm.DB, checkoutID string) (*models.PendingPayment, error) {
	var pending models.PendingPayment
	err := forUpdate(tx).Where("checkout_id = ?", checkoutID).First(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending payment: %w", err)
	}
	return &pending, nil
}

// findPendingPayment is the unlocked pre-check done before any work.
func findPendingPayment(db *gorm.DB, checkoutID string) (*models.PendingPayment, error) {
	var pending models.PendingPayment
	err := db.Where("checkout_id = ?", checkoutID).First(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending payment: %w", err)
	}
	return &pending, nil
}

// lockTermCommission gets or creates the (student, term) commission row.
func lockTermCommission(tx *gorm.DB, studentID, termID uint, amount decimal.Decimal) (*models.TermCommission, error) {
	var tc models.TermCommission
	err := forUpdate(tx).Where("student_id = ? AND term_id = ?", studentID, termID).First(&tc).Error
	if err == nil {
		return &tc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load term commission: %w", err)
	}

	tc = models.TermCommission{
		StudentID:        studentID,
		TermID:           termID,
		CommissionAmount: amount,
		AmountCollected:  decimal.Zero,
	}
	if err := tx.Create(&tc).Error; err != nil {
		return nil, fmt.Errorf("failed to create term commission: %w", err)
	}
	return &tc, nil
}

// consumePendingPayment deletes the anchor. Zero affected rows means another
// callback got there first.
func consumePendingPayment(tx *gorm.DB, pending *models.PendingPayment) (bool, error) {
	res := tx.Where("id = ?", pending.ID).Delete(&models.PendingPayment{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete pending payment: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SumStudentPayments totals settled payments for a student, optionally in a
// single term.
func SumStudentPayments(ctx context.Context, db *gorm.DB, studentID uint, termID *uint) (decimal.Decimal, error) {
	var payments []models.StudentPayment
	q := db.WithContext(ctx).Where("student_id = ?", studentID)
	if termID != nil {
		q = q.Where("term_id = ?", *termID)
	}
	if err := q.Find(&payments).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments: %w", err)
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.AmountPaid)
	}
	return total, nil
}

// recordCallback stores a raw webhook body. Failures are logged only; the
// callback is still processed.
func recordCallback(ctx context.Context, db *gorm.DB, kind models.CallbackKind, reference string, raw []byte) {
	metadata := datatypes.JSON(raw)
	if !json.Valid(raw) {
		quoted, _ := json.Marshal(string(raw))
		metadata = quoted
	}
	entry := models.GatewayCallback{Kind: kind, Reference: reference, Metadata: metadata}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		slog.Warn("Failed to record gateway callback", "kind", kind, "reference", reference, "error", err)
	}
}
