package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestTermCommissionAbsorb(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("first payment covers commission", func(t *testing.T) {
		c := TermCommission{CommissionAmount: dec(100)}
		toSchool := c.Absorb(dec(350), now)
		assert.True(t, toSchool.Equal(dec(250)))
		assert.True(t, c.IsPaid)
		assert.Equal(t, &now, c.PaidAt)
		assert.True(t, c.AmountCollected.Equal(dec(100)))
	})

	t.Run("partial payments accumulate", func(t *testing.T) {
		c := TermCommission{CommissionAmount: dec(100)}

		toSchool := c.Absorb(dec(80), now)
		assert.True(t, toSchool.IsZero())
		assert.False(t, c.IsPaid)
		assert.True(t, c.Remaining().Equal(dec(20)))

		toSchool = c.Absorb(dec(50), now)
		assert.True(t, toSchool.Equal(dec(30)), "got %s", toSchool)
		assert.True(t, c.IsPaid)
		assert.True(t, c.AmountCollected.Equal(dec(100)))
	})

	t.Run("paid commission passes everything through", func(t *testing.T) {
		paidAt := now.Add(-time.Hour)
		c := TermCommission{CommissionAmount: dec(100), AmountCollected: dec(100), IsPaid: true, PaidAt: &paidAt}
		toSchool := c.Absorb(dec(40), now)
		assert.True(t, toSchool.Equal(dec(40)))
		assert.Equal(t, &paidAt, c.PaidAt)
	})

	t.Run("exact amount", func(t *testing.T) {
		c := TermCommission{CommissionAmount: dec(100)}
		toSchool := c.Absorb(dec(100), now)
		assert.True(t, toSchool.IsZero())
		assert.True(t, c.IsPaid)
	})
}

func TestSubscriptionApplyTermPayment(t *testing.T) {
	s := Subscription{Status: SubscriptionStatusActive}
	s.ApplyTermPayment(dec(600), dec(1000))
	assert.True(t, s.TotalPaid.Equal(dec(600)))
	assert.True(t, s.Balance.Equal(dec(400)))
	assert.False(t, s.IsFullyPaid(dec(1000)))

	s.ApplyTermPayment(dec(700), dec(1000))
	assert.True(t, s.Balance.IsZero(), "balance never goes negative")
	assert.True(t, s.IsFullyPaid(dec(1000)))
}

func TestSubscriptionIsLive(t *testing.T) {
	for _, status := range LiveSubscriptionStatuses {
		assert.True(t, Subscription{Status: status}.IsLive(), status)
	}
	assert.False(t, Subscription{Status: SubscriptionStatusInactive}.IsLive())
}

func TestScheduledTaskNextDue(t *testing.T) {
	due := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	rule := "FREQ=MINUTELY;INTERVAL=30"

	recurring := ScheduledTask{Due: due, TaskType: ScheduledTaskTypeRecurring, RecurringInterval: &rule}
	next := recurring.NextDue(due.Add(10 * time.Minute))
	assert.Equal(t, due.Add(30*time.Minute), next)

	oneTime := ScheduledTask{Due: due, TaskType: ScheduledTaskTypeOneTime}
	assert.Equal(t, due, oneTime.NextDue(due.Add(time.Hour)))

	bad := "not a rule"
	broken := ScheduledTask{Due: due, TaskType: ScheduledTaskTypeRecurring, RecurringInterval: &bad}
	assert.Equal(t, due, broken.NextDue(due.Add(time.Hour)))
}
