package services

import (
	"errors"
	"fmt"
)

var (
	ErrStudentNotFound      = errors.New("student not found")
	ErrSchoolNotFound       = errors.New("school not found")
	ErrTermNotFound         = errors.New("payment term not found")
	ErrNoSchool             = errors.New("student is not associated with a school")
	ErrInvalidServiceType   = errors.New("invalid service type")
	ErrNoActiveSubscription = errors.New("no active subscription for student")
	ErrNoActiveTerm         = errors.New("no active payment term for school")
	ErrAlreadyFullyPaid     = errors.New("subscription is already fully paid for the term")
	ErrInvalidAmount        = errors.New("invalid payment amount")
	ErrInvalidFee           = errors.New("student has no valid daily fee")
	ErrInvalidPhoneNumber   = errors.New("invalid phone number")

	// ErrGatewayRejected matches every *GatewayError.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")
)

// GatewayError is a non-success response code from the payment gateway.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway rejected request (code %s): %s", e.Code, e.Message)
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGatewayRejected
}
