package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/testutil"
)

type fakeGateway struct {
	mu sync.Mutex

	stkCalls []STKPushRequest
	b2cCalls []B2CRequest
	b2bCalls []B2BRequest

	stkErr    error
	payoutErr error
	seq       int
}

func (g *fakeGateway) STKPush(_ context.Context, r STKPushRequest) (*STKPushResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stkCalls = append(g.stkCalls, r)
	if g.stkErr != nil {
		return nil, g.stkErr
	}
	g.seq++
	return &STKPushResponse{
		MerchantRequestID: fmt.Sprintf("29115-%d", g.seq),
		CheckoutRequestID: fmt.Sprintf("ws_CO_02032026_%03d", g.seq),
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (g *fakeGateway) B2C(_ context.Context, r B2CRequest) (*PayoutResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.b2cCalls = append(g.b2cCalls, r)
	return g.payoutResponse(r.OriginatorConversationID)
}

func (g *fakeGateway) B2B(_ context.Context, r B2BRequest) (*PayoutResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.b2bCalls = append(g.b2bCalls, r)
	return g.payoutResponse(r.OriginatorConversationID)
}

func (g *fakeGateway) payoutResponse(originatorID string) (*PayoutResponse, error) {
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	return &PayoutResponse{
		ConversationID:           "AG_" + originatorID[:8],
		OriginatorConversationID: originatorID,
		ResponseCode:             "0",
		ResponseDescription:      "Accept the service request successfully.",
	}, nil
}

func (g *fakeGateway) payouts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.b2cCalls) + len(g.b2bCalls)
}

// engine wires the three services against one test database.
type engine struct {
	db            *gorm.DB
	gateway       *fakeGateway
	payments      *PaymentService
	settlement    *SettlementService
	disbursements *DisbursementService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	db := testutil.NewDB(t)
	gw := &fakeGateway{}
	dir := NewGormDirectory(db)

	disbursements := NewDisbursementService(db, dir, gw)
	disbursements.SetClock(testutil.Clock)
	settlement := NewSettlementService(db, dir, disbursements)
	settlement.SetClock(testutil.Clock)

	return &engine{
		db:            db,
		gateway:       gw,
		payments:      NewPaymentService(db, dir, gw),
		settlement:    settlement,
		disbursements: disbursements,
	}
}

// initiate starts a collection and returns its checkout id.
func (e *engine) initiate(t *testing.T, student *models.Student, amount int64) string {
	t.Helper()
	res, err := e.payments.InitiatePayment(context.Background(), InitiatePaymentRequest{
		StudentID:   student.ID,
		Amount:      testutil.Dec(amount),
		PhoneNumber: "0712345678",
	})
	require.NoError(t, err)
	return res.CheckoutRequestID
}

// pay runs a full initiate + successful callback cycle.
func (e *engine) pay(t *testing.T, student *models.Student, amount int64) SettlementOutcome {
	t.Helper()
	checkoutID := e.initiate(t, student, amount)
	out := e.settlement.HandleCollectionCallback(context.Background(), stkSuccess(checkoutID, amount, "R"+checkoutID))
	require.Equal(t, SettlementSettled, out.Status, "settlement error: %v", out.Err)
	return out
}

func stkSuccess(checkoutID string, amount int64, receipt string) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{
		"MerchantRequestID":"29115-34620561-1",
		"CheckoutRequestID":%q,
		"ResultCode":0,
		"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":%d},
			{"Name":"MpesaReceiptNumber","Value":%q},
			{"Name":"TransactionDate","Value":20260302100512},
			{"Name":"PhoneNumber","Value":254712345678}
		]}}}}`, checkoutID, amount, receipt))
}

func stkFailure(checkoutID string, code int) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{
		"MerchantRequestID":"29115-34620561-1",
		"CheckoutRequestID":%q,
		"ResultCode":%d,
		"ResultDesc":"Request cancelled by user"}}}`, checkoutID, code))
}

func payoutResultBody(originatorID string, code int, transactionID string) []byte {
	return []byte(fmt.Sprintf(`{"Result":{
		"ResultType":0,
		"ResultCode":%d,
		"ResultDesc":"The service request is processed successfully.",
		"OriginatorConversationID":%q,
		"ConversationID":"AG_20260302_00004e8c",
		"TransactionID":%q,
		"ResultParameters":{"ResultParameter":[
			{"Key":"TransactionAmount","Value":250},
			{"Key":"TransactionCompletedDateTime","Value":"02.03.2026 13:05:12"}
		]}}}`, code, originatorID, transactionID))
}

func assertDec(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(testutil.Dec(want)), "want %d, got %s", want, got.String())
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
