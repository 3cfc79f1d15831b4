package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/testutil"
)

func TestInitiateMeteredPaymentTypes(t *testing.T) {
	tests := []struct {
		amount int64
		kind   models.PaymentType
	}{
		{amount: 50, kind: models.PaymentTypeDaily},
		{amount: 350, kind: models.PaymentTypeDaily},
		{amount: 400, kind: models.PaymentTypeWeekly},
		{amount: 1500, kind: models.PaymentTypeWeekly},
		{amount: 1550, kind: models.PaymentTypeMonthly},
	}

	e := newEngine(t)
	school := testutil.School(t, e.db)
	student := testutil.Student(t, e.db, school)
	testutil.Subscription(t, e.db, student)

	for _, tt := range tests {
		res, err := e.payments.InitiatePayment(context.Background(), InitiatePaymentRequest{
			StudentID:   student.ID,
			Amount:      testutil.Dec(tt.amount),
			PhoneNumber: "+254 712 345 678",
		})
		require.NoError(t, err)

		pending := res.PendingPayment
		assert.Equal(t, tt.kind, pending.PaymentType, "amount %d", tt.amount)
		assert.Equal(t, models.PaymentModelDaily, pending.PaymentModel)
		assert.Equal(t, school.ID, *pending.SchoolID)
		assert.Nil(t, pending.TermID)
		assert.Equal(t, "254712345678", pending.PhoneNumber)
		assert.Equal(t, res.CheckoutRequestID, pending.CheckoutID)
	}
	assert.Equal(t, int64(len(tests)), countRows(t, e.db, &models.PendingPayment{}))
	assert.Equal(t, "254712345678", e.gateway.stkCalls[0].PhoneNumber)
}

func TestInitiateTermPayment(t *testing.T) {
	e := newEngine(t)
	school := testutil.School(t, e.db, testutil.WithCommission(100))
	term := testutil.Term(t, e.db, school)
	student := testutil.Student(t, e.db, school)
	testutil.Subscription(t, e.db, student)

	res, err := e.payments.InitiatePayment(context.Background(), InitiatePaymentRequest{
		StudentID: student.ID, Amount: testutil.Dec(500), PhoneNumber: "0712345678",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentModelTerm, res.PendingPayment.PaymentModel)
	assert.Equal(t, models.PaymentTypeInitial, res.PendingPayment.PaymentType)
	require.NotNil(t, res.PendingPayment.TermID)
	assert.Equal(t, term.ID, *res.PendingPayment.TermID)
}

func TestInitiateRejectsBeforePush(t *testing.T) {
	e := newEngine(t)

	commissionSchool := testutil.School(t, e.db, testutil.WithCommission(100))
	noTerm := testutil.Student(t, e.db, commissionSchool)
	testutil.Subscription(t, e.db, noTerm)

	plainSchool := testutil.School(t, e.db)
	noFee := testutil.Student(t, e.db, plainSchool, func(s *models.Student) { s.DailyFee = testutil.Dec(0) })
	testutil.Subscription(t, e.db, noFee)
	noSub := testutil.Student(t, e.db, plainSchool)
	orphan := testutil.Student(t, e.db, nil, func(s *models.Student) { s.ServiceType = models.ServiceTypeSchool })
	odd := testutil.Student(t, e.db, nil, func(s *models.Student) { s.ServiceType = "shuttle" })

	tests := []struct {
		name    string
		student uint
		amount  int64
		phone   string
		err     error
	}{
		{"zero amount", noSub.ID, 0, "0712345678", ErrInvalidAmount},
		{"bad phone", noSub.ID, 100, "12345", ErrInvalidPhoneNumber},
		{"unknown student", 9999, 100, "0712345678", ErrStudentNotFound},
		{"no active term", noTerm.ID, 100, "0712345678", ErrNoActiveTerm},
		{"no daily fee", noFee.ID, 100, "0712345678", ErrInvalidFee},
		{"no subscription", noSub.ID, 100, "0712345678", ErrNoActiveSubscription},
		{"school student without school", orphan.ID, 100, "0712345678", ErrNoSchool},
		{"unknown service type", odd.ID, 100, "0712345678", ErrInvalidServiceType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.payments.InitiatePayment(context.Background(), InitiatePaymentRequest{
				StudentID: tt.student, Amount: testutil.Dec(tt.amount), PhoneNumber: tt.phone,
			})
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.Empty(t, e.gateway.stkCalls, "no push is sent for a rejected request")
	assert.Zero(t, countRows(t, e.db, &models.PendingPayment{}))
}

func TestInitiateMeteredBelowOneDay(t *testing.T) {
	e := newEngine(t)
	school := testutil.School(t, e.db)
	student := testutil.Student(t, e.db, school)
	testutil.Subscription(t, e.db, student)

	_, err := e.payments.InitiatePayment(context.Background(), InitiatePaymentRequest{
		StudentID: student.ID, Amount: testutil.Dec(49), PhoneNumber: "0712345678",
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Empty(t, e.gateway.stkCalls)
}

func TestInitiateGatewayFailureLeavesNoPending(t *testing.T) {
	e := newEngine(t)
	school := testutil.School(t, e.db)
	student := testutil.Student(t, e.db, school)
	testutil.Subscription(t, e.db, student)

	e.gateway.stkErr = &GatewayError{Code: "500.001.1001", Message: "Unable to lock subscriber"}
	_, err := e.payments.InitiatePayment(context.Background(), InitiatePaymentRequest{
		StudentID: student.ID, Amount: testutil.Dec(100), PhoneNumber: "0712345678",
	})
	assert.ErrorIs(t, err, ErrGatewayRejected)

	e.gateway.stkErr = errors.New("i/o timeout")
	_, err = e.payments.InitiatePayment(context.Background(), InitiatePaymentRequest{
		StudentID: student.ID, Amount: testutil.Dec(100), PhoneNumber: "0712345678",
	})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrGatewayRejected)

	assert.Zero(t, countRows(t, e.db, &models.PendingPayment{}))
}
