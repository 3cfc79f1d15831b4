package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
)

// SettlementStatus is what happened to one collection callback.
type SettlementStatus string

const (
	SettlementSettled        SettlementStatus = "settled"
	SettlementInvalid        SettlementStatus = "invalid"
	SettlementPaymentFailed  SettlementStatus = "payment_failed"
	SettlementDuplicate      SettlementStatus = "duplicate"
	SettlementStudentMissing SettlementStatus = "student_missing"
	SettlementRecordMissing  SettlementStatus = "record_missing"
	SettlementRejected       SettlementStatus = "rejected"
	SettlementError          SettlementStatus = "error"
)

// SettlementResult is what a committed settlement produced.
type SettlementResult struct {
	Payment        *models.StudentPayment
	Subscription   *models.Subscription
	AmountToSchool decimal.Decimal
}

// SettlementOutcome reports how a callback was handled. The webhook is
// acknowledged whatever the outcome; this value exists for logs, metrics
// and tests.
type SettlementOutcome struct {
	Status     SettlementStatus
	CheckoutID string
	Result     *SettlementResult

	Disbursement    *models.SchoolDisbursement
	DisbursementErr error

	Err error
}

// Disburser pays a school its share of a settled payment.
type Disburser interface {
	Dispatch(ctx context.Context, payment *models.StudentPayment, amount decimal.Decimal) (*models.SchoolDisbursement, error)
}

// errAlreadySettled aborts a settlement transaction whose pending payment was
// consumed by a concurrent callback.
var errAlreadySettled = errors.New("pending payment already settled")

// SettlementService turns confirmed collections into ledger state.
type SettlementService struct {
	db        *gorm.DB
	directory Directory
	disburser Disburser
	now       func() time.Time
}

func NewSettlementService(db *gorm.DB, directory Directory, disburser Disburser) *SettlementService {
	return &SettlementService{
		db:        db,
		directory: directory,
		disburser: disburser,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (s *SettlementService) SetClock(now func() time.Time) {
	s.now = now
}

// HandleCollectionCallback processes a raw collection webhook body.
func (s *SettlementService) HandleCollectionCallback(ctx context.Context, raw []byte) SettlementOutcome {
	result, err := ParseCollectionCallback(raw)

	reference := ""
	if result != nil {
		reference = result.CheckoutRequestID
	}
	recordCallback(ctx, s.db, models.CallbackKindSTK, reference, raw)

	var outcome SettlementOutcome
	switch {
	case err != nil:
		outcome = SettlementOutcome{Status: SettlementInvalid, Err: err}
	case !result.Succeeded():
		outcome = SettlementOutcome{
			Status:     SettlementPaymentFailed,
			CheckoutID: result.CheckoutRequestID,
			Err:        fmt.Errorf("collection failed (code %d): %s", result.ResultCode, result.ResultDesc),
		}
	default:
		outcome = s.Settle(ctx, result)
	}

	logOutcome(outcome)
	settlementOutcomes.WithLabelValues(string(outcome.Status)).Inc()
	return outcome
}

// Settle applies a successful collection to the ledger, then hands any
// school share to the disburser once the transaction has committed.
func (s *SettlementService) Settle(ctx context.Context, cr *CollectionResult) SettlementOutcome {
	outcome := SettlementOutcome{CheckoutID: cr.CheckoutRequestID}

	pending, err := findPendingPayment(s.db.WithContext(ctx), cr.CheckoutRequestID)
	if err != nil {
		outcome.Status, outcome.Err = SettlementError, err
		return outcome
	}
	if pending == nil {
		outcome.Status = SettlementDuplicate
		return outcome
	}

	student, err := s.directory.GetStudent(ctx, pending.StudentID)
	if err != nil {
		outcome.Status, outcome.Err = SettlementStudentMissing, err
		if !errors.Is(err, ErrStudentNotFound) {
			outcome.Status = SettlementError
		}
		return outcome
	}

	in := settlementInput{
		pending:       pending,
		student:       student,
		amount:        cr.Amount,
		phoneNumber:   cr.PhoneNumber,
		transactionID: cr.TransactionID(),
	}
	if in.phoneNumber == "" {
		in.phoneNumber = pending.PhoneNumber
	}
	if !cr.Amount.Equal(pending.Amount) {
		slog.Warn("Collected amount differs from requested amount",
			"checkout_id", pending.CheckoutID,
			"requested", pending.Amount.String(),
			"collected", cr.Amount.String(),
		)
	}

	var result *SettlementResult
	switch pending.PaymentModel {
	case models.PaymentModelDaily:
		result, err = s.settleMetered(ctx, in)
	case models.PaymentModelTerm:
		result, err = s.settleTermWithCommission(ctx, in)
	case models.PaymentModelZidallie:
		result, err = s.settleFlatFee(ctx, in)
	default:
		err = fmt.Errorf("unknown payment model %q", pending.PaymentModel)
	}
	if err != nil {
		outcome.Status, outcome.Err = classifySettlementError(err), err
		return outcome
	}

	outcome.Status = SettlementSettled
	outcome.Result = result

	if result.AmountToSchool.IsPositive() && s.disburser != nil {
		outcome.Disbursement, outcome.DisbursementErr = s.disburser.Dispatch(ctx, result.Payment, result.AmountToSchool)
	}
	return outcome
}

func classifySettlementError(err error) SettlementStatus {
	switch {
	case errors.Is(err, errAlreadySettled), errors.Is(err, gorm.ErrDuplicatedKey):
		return SettlementDuplicate
	case errors.Is(err, ErrInvalidFee), errors.Is(err, ErrInvalidAmount):
		return SettlementRejected
	case errors.Is(err, ErrNoActiveSubscription), errors.Is(err, ErrSchoolNotFound),
		errors.Is(err, ErrTermNotFound), errors.Is(err, ErrNoSchool):
		return SettlementRecordMissing
	default:
		return SettlementError
	}
}

type settlementInput struct {
	pending       *models.PendingPayment
	student       *models.Student
	amount        decimal.Decimal
	phoneNumber   string
	transactionID string
}

// applyFunc mutates the locked subscription for one strategy and returns the
// amount owed to the school.
type applyFunc func(tx *gorm.DB, sub *models.Subscription, now time.Time) (decimal.Decimal, error)

// commit runs one settlement atomically: payment insert, subscription update,
// whatever apply writes, and the pending payment delete.
func (s *SettlementService) commit(ctx context.Context, in settlementInput, termID *uint, apply applyFunc) (*SettlementResult, error) {
	var result *SettlementResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending, err := lockPendingPayment(tx, in.pending.CheckoutID)
		if err != nil {
			return err
		}
		if pending == nil {
			return errAlreadySettled
		}

		sub, err := lockLiveSubscription(tx, pending.StudentID)
		if err != nil {
			return err
		}

		now := s.now()
		toSchool, err := apply(tx, sub, now)
		if err != nil {
			return err
		}

		payment := &models.StudentPayment{
			TransactionID: in.transactionID,
			CheckoutID:    pending.CheckoutID,
			StudentID:     pending.StudentID,
			SchoolID:      pending.SchoolID,
			TermID:        termID,
			PhoneNumber:   in.phoneNumber,
			AmountPaid:    in.amount,
			PaymentType:   pending.PaymentType,
			PaymentModel:  pending.PaymentModel,
			SchoolShare:   toSchool,
		}
		if err := tx.Create(payment).Error; err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}

		if err := tx.Save(sub).Error; err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}

		consumed, err := consumePendingPayment(tx, pending)
		if err != nil {
			return err
		}
		if !consumed {
			return errAlreadySettled
		}

		result = &SettlementResult{Payment: payment, Subscription: sub, AmountToSchool: toSchool}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// settleMetered extends access by the number of whole days bought, counted
// in weekdays from the later of today and the current expiry.
func (s *SettlementService) settleMetered(ctx context.Context, in settlementInput) (*SettlementResult, error) {
	days, err := daysPaidFor(in.amount, in.student.DailyFee)
	if err != nil {
		return nil, err
	}

	return s.commit(ctx, in, nil, func(tx *gorm.DB, sub *models.Subscription, now time.Time) (decimal.Decimal, error) {
		start := now
		if sub.ExpiryDate != nil && sub.ExpiryDate.After(now) {
			start = *sub.ExpiryDate
		}
		expiry := AddBusinessDays(start, days)

		sub.TotalPaid = sub.TotalPaid.Add(in.amount)
		sub.Balance = decimal.Zero
		sub.ExpiryDate = &expiry
		sub.LastPaymentDate = &now
		sub.Status = models.SubscriptionStatusActive
		sub.DaysAccess = days
		return in.amount, nil
	})
}

// settleTermWithCommission recovers the term commission before anything is
// owed to the school. The school is the one recorded at initiation, which is
// also the one the payment row and the payout use.
func (s *SettlementService) settleTermWithCommission(ctx context.Context, in settlementInput) (*SettlementResult, error) {
	if in.pending.SchoolID == nil {
		return nil, ErrNoSchool
	}
	if in.pending.TermID == nil {
		return nil, fmt.Errorf("%w: pending payment %s has no term", ErrTermNotFound, in.pending.CheckoutID)
	}
	school, err := s.directory.GetSchool(ctx, *in.pending.SchoolID)
	if err != nil {
		return nil, err
	}
	term, err := s.directory.GetTerm(ctx, *in.pending.TermID)
	if err != nil {
		return nil, err
	}

	return s.commit(ctx, in, &term.ID, func(tx *gorm.DB, sub *models.Subscription, now time.Time) (decimal.Decimal, error) {
		tc, err := lockTermCommission(tx, in.student.ID, term.ID, school.CommissionAmount)
		if err != nil {
			return decimal.Zero, err
		}
		toSchool := tc.Absorb(in.amount, now)
		if err := tx.Save(tc).Error; err != nil {
			return decimal.Zero, fmt.Errorf("failed to update term commission: %w", err)
		}

		sub.ApplyTermPayment(in.amount, in.student.TermFee)
		sub.IsCommissionPaid = tc.IsPaid
		sub.TermID = &term.ID
		sub.LastPaymentDate = &now
		markTermProgress(sub, term)
		return toSchool, nil
	})
}

// settleFlatFee is the carpool/private model: the platform keeps everything.
func (s *SettlementService) settleFlatFee(ctx context.Context, in settlementInput) (*SettlementResult, error) {
	term, err := s.directory.ActiveTerm(ctx, nil)
	if err != nil {
		return nil, err
	}
	if term == nil {
		slog.Warn("No active platform term; expiry will not be set on full payment",
			"student_id", in.student.ID,
			"checkout_id", in.pending.CheckoutID,
		)
	}

	return s.commit(ctx, in, nil, func(tx *gorm.DB, sub *models.Subscription, now time.Time) (decimal.Decimal, error) {
		sub.ApplyTermPayment(in.amount, in.student.TermFee)
		sub.LastPaymentDate = &now
		if term != nil {
			sub.TermID = &term.ID
		}
		markTermProgress(sub, term)
		return decimal.Zero, nil
	})
}

func markTermProgress(sub *models.Subscription, term *models.PaymentTerm) {
	if !sub.Balance.IsZero() {
		sub.Status = models.SubscriptionStatusPartiallyPaid
		return
	}
	sub.Status = models.SubscriptionStatusFullyPaid
	if term != nil {
		end := term.EndDate
		sub.ExpiryDate = &end
	}
}

func logOutcome(o SettlementOutcome) {
	attrs := []any{"status", o.Status, "checkout_id", o.CheckoutID}
	if o.Result != nil {
		attrs = append(attrs,
			"transaction_id", o.Result.Payment.TransactionID,
			"student_id", o.Result.Payment.StudentID,
			"amount", o.Result.Payment.AmountPaid.String(),
			"amount_to_school", o.Result.AmountToSchool.String(),
		)
	}
	if o.DisbursementErr != nil {
		attrs = append(attrs, "disbursement_error", o.DisbursementErr)
	}

	switch o.Status {
	case SettlementSettled:
		slog.Info("Collection settled", attrs...)
	case SettlementDuplicate, SettlementPaymentFailed:
		if o.Err != nil {
			attrs = append(attrs, "reason", o.Err)
		}
		slog.Info("Collection callback ignored", attrs...)
	case SettlementError:
		slog.Error("Collection settlement failed", append(attrs, "error", o.Err)...)
	default:
		slog.Warn("Collection settlement abandoned", append(attrs, "error", o.Err)...)
	}
}
