package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/services"
)

// maxCallbackBody caps how much of a webhook body is read.
const maxCallbackBody = 1 << 20

type Initiator interface {
	InitiatePayment(ctx context.Context, req services.InitiatePaymentRequest) (*services.InitiatePaymentResult, error)
}

type CollectionSettler interface {
	HandleCollectionCallback(ctx context.Context, raw []byte) services.SettlementOutcome
}

type PayoutReconciler interface {
	HandlePayoutResult(ctx context.Context, raw []byte) services.PayoutOutcome
	HandlePayoutTimeout(ctx context.Context, raw []byte) services.PayoutOutcome
}

type PaymentHandler struct {
	payments      Initiator
	settlement    CollectionSettler
	disbursements PayoutReconciler
	validate      *validator.Validate
}

func NewPaymentHandler(payments Initiator, settlement CollectionSettler, disbursements PayoutReconciler) *PaymentHandler {
	return &PaymentHandler{
		payments:      payments,
		settlement:    settlement,
		disbursements: disbursements,
		validate:      validator.New(),
	}
}

// InitiatePayment sends an STK push for a student's transport fee.
func (h *PaymentHandler) InitiatePayment(c echo.Context) error {
	var req InitiatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}

	result, err := h.payments.InitiatePayment(c.Request().Context(), services.InitiatePaymentRequest{
		StudentID:   req.StudentID,
		Amount:      req.Amount,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, InitiatePaymentResponse{
		CheckoutRequestID: result.CheckoutRequestID,
		CustomerMessage:   result.CustomerMessage,
		PendingPayment:    result.PendingPayment,
	})
}

// STKCallback receives the collection result. It is acknowledged no matter
// what happened; the gateway retries anything else.
func (h *PaymentHandler) STKCallback(c echo.Context) error {
	raw, err := readCallback(c)
	if err != nil {
		slog.Warn("Failed to read collection callback", "error", err)
		return c.JSON(http.StatusOK, accepted)
	}
	// Settlement must not be cut short if the gateway hangs up.
	h.settlement.HandleCollectionCallback(context.WithoutCancel(c.Request().Context()), raw)
	return c.JSON(http.StatusOK, accepted)
}

// PayoutResult receives a B2C or B2B result.
func (h *PaymentHandler) PayoutResult(c echo.Context) error {
	raw, err := readCallback(c)
	if err != nil {
		slog.Warn("Failed to read payout result", "path", c.Path(), "error", err)
		return c.JSON(http.StatusOK, accepted)
	}
	h.disbursements.HandlePayoutResult(context.WithoutCancel(c.Request().Context()), raw)
	return c.JSON(http.StatusOK, accepted)
}

// PayoutTimeout receives a B2C or B2B queue timeout.
func (h *PaymentHandler) PayoutTimeout(c echo.Context) error {
	raw, err := readCallback(c)
	if err != nil {
		slog.Warn("Failed to read payout timeout", "path", c.Path(), "error", err)
		return c.JSON(http.StatusOK, accepted)
	}
	h.disbursements.HandlePayoutTimeout(context.WithoutCancel(c.Request().Context()), raw)
	return c.JSON(http.StatusOK, accepted)
}

func readCallback(c echo.Context) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("empty body")
	}
	return raw, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return "Invalid request: " + strings.Join(msgs, ", ")
}
