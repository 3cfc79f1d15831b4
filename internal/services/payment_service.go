package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
)

// PaymentService starts collections. It never touches the ledger; it only
// leaves a PendingPayment behind for settlement to find.
type PaymentService struct {
	db        *gorm.DB
	directory Directory
	gateway   Gateway
}

func NewPaymentService(db *gorm.DB, directory Directory, gateway Gateway) *PaymentService {
	return &PaymentService{
		db:        db,
		directory: directory,
		gateway:   gateway,
	}
}

// InitiatePaymentRequest is a payer's request to pay for a student.
type InitiatePaymentRequest struct {
	StudentID   uint
	Amount      decimal.Decimal
	PhoneNumber string
}

// InitiatePaymentResult holds the result of an initiation attempt
type InitiatePaymentResult struct {
	CheckoutRequestID string
	CustomerMessage   string
	PendingPayment    *models.PendingPayment
}

// paymentPlan is how a collection will be settled.
type paymentPlan struct {
	model    models.PaymentModel
	kind     models.PaymentType
	schoolID *uint
	termID   *uint
}

// InitiatePayment validates and classifies the request, sends the STK push
// and records the PendingPayment keyed by the gateway's checkout id.
func (s *PaymentService) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	phone := NormalizePhoneNumber(req.PhoneNumber)
	if phone == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, req.PhoneNumber)
	}

	student, err := s.directory.GetStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	plan, err := s.classify(ctx, student, req.Amount)
	if err != nil {
		paymentInitiations.WithLabelValues("unknown", "rejected").Inc()
		return nil, err
	}

	// No transaction is open here; the push is a network call.
	resp, err := s.gateway.STKPush(ctx, STKPushRequest{
		Amount:      req.Amount,
		PhoneNumber: phone,
		Description: fmt.Sprintf("Transport %s payment - %s", plan.kind, student.Name),
	})
	if err != nil {
		paymentInitiations.WithLabelValues(string(plan.model), "gateway_error").Inc()
		return nil, fmt.Errorf("failed to initiate collection: %w", err)
	}

	pending := &models.PendingPayment{
		CheckoutID:   resp.CheckoutRequestID,
		StudentID:    student.ID,
		SchoolID:     plan.schoolID,
		TermID:       plan.termID,
		Amount:       req.Amount,
		PhoneNumber:  phone,
		PaymentType:  plan.kind,
		PaymentModel: plan.model,
	}
	if err := s.db.WithContext(ctx).Create(pending).Error; err != nil {
		// The payer already has a prompt on their phone; without the anchor
		// its callback will be ignored.
		slog.Error("Failed to persist pending payment after STK push",
			"checkout_id", resp.CheckoutRequestID,
			"student_id", student.ID,
			"error", err,
		)
		paymentInitiations.WithLabelValues(string(plan.model), "persist_error").Inc()
		return nil, fmt.Errorf("failed to persist pending payment: %w", err)
	}

	paymentInitiations.WithLabelValues(string(plan.model), "accepted").Inc()
	slog.Info("Collection initiated",
		"checkout_id", pending.CheckoutID,
		"student_id", student.ID,
		"amount", req.Amount.String(),
		"payment_model", plan.model,
		"payment_type", plan.kind,
	)

	return &InitiatePaymentResult{
		CheckoutRequestID: resp.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
		PendingPayment:    pending,
	}, nil
}

func (s *PaymentService) classify(ctx context.Context, student *models.Student, amount decimal.Decimal) (*paymentPlan, error) {
	switch student.ServiceType {
	case models.ServiceTypeSchool:
		if student.SchoolID == nil {
			return nil, fmt.Errorf("%w: student %d", ErrNoSchool, student.ID)
		}
		school, err := s.directory.GetSchool(ctx, *student.SchoolID)
		if err != nil {
			return nil, err
		}
		term, err := s.directory.ActiveTerm(ctx, &school.ID)
		if err != nil {
			return nil, err
		}
		sub, err := findLiveSubscription(s.db.WithContext(ctx), student.ID)
		if err != nil {
			return nil, err
		}
		if school.HasCommission {
			return classifyTermPayment(student, school, term, sub)
		}
		return classifyMeteredPayment(student, school, amount)

	case models.ServiceTypeCarpool, models.ServiceTypePrivate:
		sub, err := findLiveSubscription(s.db.WithContext(ctx), student.ID)
		if err != nil {
			return nil, err
		}
		if sub.IsFullyPaid(student.TermFee) {
			return nil, ErrAlreadyFullyPaid
		}
		return &paymentPlan{
			model: models.PaymentModelZidallie,
			kind:  models.PaymentTypeTermly,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidServiceType, student.ServiceType)
	}
}

func classifyMeteredPayment(student *models.Student, school *models.School, amount decimal.Decimal) (*paymentPlan, error) {
	days, err := daysPaidFor(amount, student.DailyFee)
	if err != nil {
		return nil, err
	}

	kind := models.PaymentTypeMonthly
	switch {
	case days <= 7:
		kind = models.PaymentTypeDaily
	case days <= 30:
		kind = models.PaymentTypeWeekly
	}
	return &paymentPlan{
		model:    models.PaymentModelDaily,
		kind:     kind,
		schoolID: &school.ID,
	}, nil
}

func classifyTermPayment(student *models.Student, school *models.School, term *models.PaymentTerm, sub *models.Subscription) (*paymentPlan, error) {
	if term == nil {
		return nil, fmt.Errorf("%w: school %d", ErrNoActiveTerm, school.ID)
	}
	if sub.IsFullyPaid(student.TermFee) {
		return nil, ErrAlreadyFullyPaid
	}
	kind := models.PaymentTypeInstallment
	if sub.TotalPaid.IsZero() {
		kind = models.PaymentTypeInitial
	}
	return &paymentPlan{
		model:    models.PaymentModelTerm,
		kind:     kind,
		schoolID: &school.ID,
		termID:   &term.ID,
	}, nil
}

// daysPaidFor is floor(amount / dailyFee); at least one whole day is required.
func daysPaidFor(amount, dailyFee decimal.Decimal) (int, error) {
	if !dailyFee.IsPositive() {
		return 0, ErrInvalidFee
	}
	days := amount.Div(dailyFee).Floor().IntPart()
	if days < 1 {
		return 0, fmt.Errorf("%w: %s does not cover one day at %s", ErrInvalidAmount, amount, dailyFee)
	}
	return int(days), nil
}
