package models

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&School{},
		&Student{},
		&PaymentTerm{},
		&Subscription{},
		&PendingPayment{},
		&StudentPayment{},
		&TermCommission{},
		&SchoolDisbursement{},
		&GatewayCallback{},
		&ScheduledTask{},
		&ScheduledTaskHistory{},
	}
}
