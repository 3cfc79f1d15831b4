package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
)

// ErrNoPayoutDestination is returned when a school has neither a payout
// phone number nor a complete bank paybill/account pair.
var ErrNoPayoutDestination = errors.New("school has no payout destination")

// ErrPayoutBelowMinimum is returned for a share smaller than one shilling.
var ErrPayoutBelowMinimum = errors.New("school share is below the minimum payout")

// PayoutStatus is what happened to one payout callback.
type PayoutStatus string

const (
	PayoutReconciled PayoutStatus = "reconciled"
	PayoutDuplicate  PayoutStatus = "duplicate"
	PayoutUnknown    PayoutStatus = "unknown"
	PayoutInvalid    PayoutStatus = "invalid"
	PayoutTimedOut   PayoutStatus = "timeout"
	PayoutError      PayoutStatus = "error"
)

type PayoutOutcome struct {
	Status       PayoutStatus
	Reference    string
	Disbursement *models.SchoolDisbursement
	Err          error
}

// DisbursementService pays schools their share and reconciles the results.
type DisbursementService struct {
	db        *gorm.DB
	directory Directory
	gateway   Gateway
	now       func() time.Time
}

var _ Disburser = (*DisbursementService)(nil)

func NewDisbursementService(db *gorm.DB, directory Directory, gateway Gateway) *DisbursementService {
	return &DisbursementService{
		db:        db,
		directory: directory,
		gateway:   gateway,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (s *DisbursementService) SetClock(now func() time.Time) {
	s.now = now
}

// payoutDestination picks B2C when the school has a payout phone, otherwise
// B2B when both bank fields are set.
func payoutDestination(school *models.School) (*models.SchoolDisbursement, error) {
	if school.DisbursementPhoneNumber != nil && *school.DisbursementPhoneNumber != "" {
		phone := NormalizePhoneNumber(*school.DisbursementPhoneNumber)
		if phone == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, *school.DisbursementPhoneNumber)
		}
		return &models.SchoolDisbursement{
			Channel:     models.DisbursementChannelB2C,
			PhoneNumber: &phone,
		}, nil
	}
	if school.BankPaybillNumber != nil && *school.BankPaybillNumber != "" &&
		school.BankAccountNumber != nil && *school.BankAccountNumber != "" {
		return &models.SchoolDisbursement{
			Channel:     models.DisbursementChannelB2B,
			BankPaybill: school.BankPaybillNumber,
			BankAccount: school.BankAccountNumber,
		}, nil
	}
	return nil, ErrNoPayoutDestination
}

// Dispatch sends amount to the school that owns payment. The gateway only
// pays whole shillings, so the amount is rounded down once and the cents are
// kept on the row as withheld. The pending row is written before the payout
// request so a result callback can always be matched, and its unique payment
// id stops a second dispatcher from paying the same share. A share that
// cannot be sent gets a skipped row instead.
func (s *DisbursementService) Dispatch(ctx context.Context, payment *models.StudentPayment, amount decimal.Decimal) (*models.SchoolDisbursement, error) {
	if !amount.IsPositive() {
		return nil, nil
	}
	if payment.SchoolID == nil {
		return nil, fmt.Errorf("%w: payment %s", ErrNoSchool, payment.TransactionID)
	}
	school, err := s.directory.GetSchool(ctx, *payment.SchoolID)
	if err != nil {
		return nil, err
	}

	payout := amount.Floor()
	d, err := payoutDestination(school)
	if err == nil && !payout.IsPositive() {
		err = ErrPayoutBelowMinimum
	}
	if err != nil {
		return nil, s.skip(ctx, payment, school.ID, amount, err)
	}
	d.StudentPaymentID = payment.ID
	d.SchoolID = school.ID
	d.AmountDisbursed = payout
	d.AmountWithheld = amount.Sub(payout)
	d.Status = models.DisbursementStatusPending
	d.OriginatorConversationID = uuid.New().String()

	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			slog.Info("Payment already has a disbursement; not sending again",
				"student_payment_id", payment.ID,
				"transaction_id", payment.TransactionID,
			)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to record disbursement: %w", err)
	}

	remarks := fmt.Sprintf("School share for %s", payment.TransactionID)
	var resp *PayoutResponse
	switch d.Channel {
	case models.DisbursementChannelB2C:
		resp, err = s.gateway.B2C(ctx, B2CRequest{
			OriginatorConversationID: d.OriginatorConversationID,
			Amount:                   payout,
			PhoneNumber:              *d.PhoneNumber,
			Remarks:                  remarks,
			Occasion:                 fmt.Sprintf("Student %d", payment.StudentID),
		})
	case models.DisbursementChannelB2B:
		resp, err = s.gateway.B2B(ctx, B2BRequest{
			OriginatorConversationID: d.OriginatorConversationID,
			Amount:                   payout,
			Paybill:                  *d.BankPaybill,
			AccountReference:         *d.BankAccount,
			Remarks:                  remarks,
		})
	}

	if err != nil {
		return s.dispatchFailed(ctx, d, err)
	}

	if resp.ConversationID != "" {
		d.ConversationID = &resp.ConversationID
		if err := s.db.WithContext(ctx).Model(d).Update("conversation_id", resp.ConversationID).Error; err != nil {
			slog.Warn("Failed to store conversation id", "disbursement_id", d.ID, "error", err)
		}
	}

	disbursementEvents.WithLabelValues(string(d.Channel), "dispatched").Inc()
	slog.Info("School disbursement dispatched",
		"disbursement_id", d.ID,
		"channel", d.Channel,
		"school_id", d.SchoolID,
		"amount", payout.String(),
		"withheld", d.AmountWithheld.String(),
		"originator_conversation_id", d.OriginatorConversationID,
	)
	return d, nil
}

// skip records that a share was not sent so the sweep leaves the payment
// alone. It loses quietly to a row written by a concurrent dispatch.
func (s *DisbursementService) skip(ctx context.Context, payment *models.StudentPayment, schoolID uint, amount decimal.Decimal, reason error) error {
	desc := reason.Error()
	marker := &models.SchoolDisbursement{
		StudentPaymentID:         payment.ID,
		SchoolID:                 schoolID,
		AmountDisbursed:          decimal.Zero,
		AmountWithheld:           amount,
		Status:                   models.DisbursementStatusSkipped,
		OriginatorConversationID: uuid.New().String(),
		ResultDesc:               &desc,
	}
	err := s.db.WithContext(ctx).Create(marker).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record skipped disbursement: %w", err)
	}

	slog.Warn("Skipping school disbursement",
		"school_id", schoolID,
		"transaction_id", payment.TransactionID,
		"amount", amount.String(),
		"reason", reason,
	)
	disbursementEvents.WithLabelValues("none", "skipped").Inc()
	return nil
}

// dispatchFailed settles the row for a payout request that did not go
// through. A gateway rejection is final; anything else removes the row so
// the sweep tries again.
func (s *DisbursementService) dispatchFailed(ctx context.Context, d *models.SchoolDisbursement, cause error) (*models.SchoolDisbursement, error) {
	db := s.db.WithContext(ctx)

	var gwErr *GatewayError
	if errors.As(cause, &gwErr) {
		desc := gwErr.Error()
		d.Status = models.DisbursementStatusFailed
		d.ResultDesc = &desc
		if err := db.Model(d).Updates(map[string]interface{}{
			"status":      d.Status,
			"result_desc": desc,
		}).Error; err != nil {
			slog.Error("Failed to mark disbursement failed", "disbursement_id", d.ID, "error", err)
		}
		disbursementEvents.WithLabelValues(string(d.Channel), "rejected").Inc()
		slog.Warn("School disbursement rejected",
			"disbursement_id", d.ID,
			"school_id", d.SchoolID,
			"error", cause,
		)
		return d, fmt.Errorf("disbursement rejected: %w", cause)
	}

	if err := db.Delete(d).Error; err != nil {
		slog.Error("Failed to remove unsent disbursement", "disbursement_id", d.ID, "error", err)
	}
	disbursementEvents.WithLabelValues(string(d.Channel), "retry").Inc()
	slog.Warn("School disbursement not sent; will retry",
		"school_id", d.SchoolID,
		"student_payment_id", d.StudentPaymentID,
		"error", cause,
	)
	return nil, fmt.Errorf("failed to send disbursement: %w", cause)
}

// HandlePayoutResult applies a payout result callback. A disbursement only
// ever moves out of pending once.
func (s *DisbursementService) HandlePayoutResult(ctx context.Context, raw []byte) PayoutOutcome {
	outcome := s.reconcile(ctx, raw)

	attrs := []any{"status", outcome.Status, "originator_conversation_id", outcome.Reference}
	channel := "unknown"
	if outcome.Disbursement != nil {
		channel = string(outcome.Disbursement.Channel)
		attrs = append(attrs,
			"disbursement_id", outcome.Disbursement.ID,
			"disbursement_status", outcome.Disbursement.Status,
		)
	}
	disbursementEvents.WithLabelValues(channel, string(outcome.Status)).Inc()

	switch outcome.Status {
	case PayoutReconciled:
		slog.Info("Payout result reconciled", attrs...)
	case PayoutDuplicate:
		slog.Info("Duplicate payout result ignored", attrs...)
	case PayoutError:
		slog.Error("Payout result not applied", append(attrs, "error", outcome.Err)...)
	default:
		slog.Warn("Payout result not applied", append(attrs, "error", outcome.Err)...)
	}
	return outcome
}

func (s *DisbursementService) reconcile(ctx context.Context, raw []byte) PayoutOutcome {
	db := s.db.WithContext(ctx)

	result, err := ParsePayoutResult(raw)
	if err != nil {
		ref := payoutReference(raw)
		recordCallback(ctx, s.db, models.CallbackKindPayoutResult, ref, raw)
		return PayoutOutcome{Status: PayoutInvalid, Reference: ref, Err: err}
	}
	recordCallback(ctx, s.db, models.CallbackKindPayoutResult, result.OriginatorConversationID, raw)
	outcome := PayoutOutcome{Reference: result.OriginatorConversationID}

	if result.TransactionID != "" {
		var seen int64
		err := db.Model(&models.SchoolDisbursement{}).
			Where("transaction_id = ? AND status IN ?", result.TransactionID,
				[]models.DisbursementStatus{models.DisbursementStatusCompleted, models.DisbursementStatusFailed}).
			Count(&seen).Error
		if err != nil {
			outcome.Status, outcome.Err = PayoutError, fmt.Errorf("failed to check transaction id: %w", err)
			return outcome
		}
		if seen > 0 {
			outcome.Status = PayoutDuplicate
			return outcome
		}
	}

	var d models.SchoolDisbursement
	err = db.Where("originator_conversation_id = ?", result.OriginatorConversationID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		outcome.Status, outcome.Err = PayoutUnknown, fmt.Errorf("no disbursement for %s", result.OriginatorConversationID)
		return outcome
	}
	if err != nil {
		outcome.Status, outcome.Err = PayoutError, fmt.Errorf("failed to load disbursement: %w", err)
		return outcome
	}
	outcome.Disbursement = &d
	if d.IsResolved() {
		outcome.Status = PayoutDuplicate
		return outcome
	}

	status := models.DisbursementStatusFailed
	if result.Succeeded() {
		status = models.DisbursementStatusCompleted
	}
	completedAt := s.now()
	if result.CompletedAt != nil {
		completedAt = *result.CompletedAt
	}

	updates := map[string]interface{}{
		"status":       status,
		"result_code":  result.ResultCode,
		"result_desc":  result.ResultDesc,
		"completed_at": completedAt,
	}
	if result.TransactionID != "" {
		updates["transaction_id"] = result.TransactionID
	}
	if result.ConversationID != "" {
		updates["conversation_id"] = result.ConversationID
	}

	res := db.Model(&models.SchoolDisbursement{}).
		Where("id = ? AND status = ?", d.ID, models.DisbursementStatusPending).
		Updates(updates)
	if res.Error != nil {
		outcome.Status, outcome.Err = PayoutError, fmt.Errorf("failed to update disbursement: %w", res.Error)
		return outcome
	}
	if res.RowsAffected == 0 {
		outcome.Status = PayoutDuplicate
		return outcome
	}

	if result.Amount.IsPositive() && !result.Amount.Equal(d.AmountDisbursed) {
		slog.Warn("Payout amount differs from disbursed amount",
			"disbursement_id", d.ID,
			"expected", d.AmountDisbursed.String(),
			"reported", result.Amount.String(),
		)
	}

	d.Status = status
	d.ResultCode = &result.ResultCode
	d.ResultDesc = &result.ResultDesc
	d.CompletedAt = &completedAt
	if result.TransactionID != "" {
		d.TransactionID = &result.TransactionID
	}
	if result.ConversationID != "" {
		d.ConversationID = &result.ConversationID
	}
	outcome.Status = PayoutReconciled
	return outcome
}

// HandlePayoutTimeout records a queue timeout. The disbursement stays pending;
// the gateway may still deliver a result for it.
func (s *DisbursementService) HandlePayoutTimeout(ctx context.Context, raw []byte) PayoutOutcome {
	ref := payoutReference(raw)
	recordCallback(ctx, s.db, models.CallbackKindPayoutTimeout, ref, raw)

	disbursementEvents.WithLabelValues("unknown", string(PayoutTimedOut)).Inc()
	slog.Warn("Payout request timed out at the gateway", "originator_conversation_id", ref)
	return PayoutOutcome{Status: PayoutTimedOut, Reference: ref}
}

// SweepUndisbursed dispatches school shares that have no disbursement row,
// skipping payments newer than olderThan so in-flight dispatches are left
// alone. It returns how many were dispatched.
func (s *DisbursementService) SweepUndisbursed(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)

	var payments []models.StudentPayment
	err := s.db.WithContext(ctx).
		Where("school_share > ? AND created_at < ?", 0, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM school_disbursements d WHERE d.student_payment_id = student_payments.id)").
		Order("id").
		Find(&payments).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find undisbursed payments: %w", err)
	}

	dispatched := 0
	var errs []error
	for i := range payments {
		p := &payments[i]
		d, err := s.Dispatch(ctx, p, p.SchoolShare)
		if err != nil {
			errs = append(errs, fmt.Errorf("payment %s: %w", p.TransactionID, err))
			continue
		}
		if d != nil {
			dispatched++
		}
	}

	if len(payments) > 0 {
		slog.Info("Undisbursed sweep finished",
			"candidates", len(payments),
			"dispatched", dispatched,
			"failed", len(errs),
		)
	}
	return dispatched, errors.Join(errs...)
}
