package booking

import (
	"sort"
	"time"
)

// refreshStatus applies the lazy expiry and exhaustion transitions. It
// reports whether the status changed.
func (pass *Pass) refreshStatus(now time.Time) bool {
	if pass.Status != PassStatusActive {
		return false
	}
	if !pass.ExpiryDate.IsZero() && pass.ExpiryDate.Before(now) {
		pass.Status = PassStatusExpired
		pass.UpdatedAt = now
		return true
	}
	if !pass.IsUnlimited() && pass.SessionsRemaining <= 0 {
		pass.Status = PassStatusExhausted
		pass.UpdatedAt = now
		return true
	}
	return false
}

// usable reports whether the pass can pay for a session at now.
func (pass Pass) usable(now time.Time) bool {
	if pass.Status != PassStatusActive {
		return false
	}
	if !pass.ExpiryDate.IsZero() && pass.ExpiryDate.Before(now) {
		return false
	}
	return pass.IsUnlimited() || pass.SessionsRemaining > 0
}

// consume records one session for courseID. A used-up fixed-count pass
// reports ErrNoSessionsRemaining; expired and cancelled passes are not active.
func (pass *Pass) consume(courseID string, at time.Time) error {
	if pass.Status == PassStatusExhausted && !pass.IsUnlimited() {
		return ErrNoSessionsRemaining
	}
	if pass.Status != PassStatusActive {
		return ErrPassNotActive
	}
	if !pass.ExpiryDate.IsZero() && pass.ExpiryDate.Before(at) {
		return ErrPassNotActive
	}
	if pass.IsUnlimited() {
		pass.SessionsHistory = append(pass.SessionsHistory, SessionUse{CourseID: courseID, UsedAt: at})
		pass.UpdatedAt = at
		return nil
	}
	if pass.SessionsRemaining <= 0 {
		return ErrNoSessionsRemaining
	}
	pass.SessionsRemaining--
	pass.SessionsUsed++
	pass.SessionsHistory = append(pass.SessionsHistory, SessionUse{CourseID: courseID, UsedAt: at})
	if pass.SessionsRemaining == 0 {
		pass.Status = PassStatusExhausted
	}
	pass.UpdatedAt = at
	return nil
}

// refund reverses the oldest unrefunded session recorded for courseID.
// Unlimited passes only require the session to exist.
func (pass *Pass) refund(courseID string, at time.Time) error {
	index := -1
	for historyIndex, use := range pass.SessionsHistory {
		if use.CourseID == courseID && !use.Refunded {
			index = historyIndex
			break
		}
	}
	if index < 0 {
		return ErrSessionNotFound
	}
	if pass.IsUnlimited() {
		return nil
	}
	pass.SessionsHistory[index].Refunded = true
	pass.SessionsHistory[index].RefundedAt = timePointer(at)
	pass.SessionsRemaining++
	if pass.SessionsUsed > 0 {
		pass.SessionsUsed--
	}
	if pass.Status == PassStatusExhausted {
		pass.Status = PassStatusActive
	}
	pass.UpdatedAt = at
	return nil
}

// rankPasses orders usable passes best first: unlimited above fixed-count,
// then more sessions remaining, then earliest expiry.
func rankPasses(passes []Pass) {
	sort.SliceStable(passes, func(left, right int) bool {
		leftUnlimited := passes[left].IsUnlimited()
		rightUnlimited := passes[right].IsUnlimited()
		if leftUnlimited != rightUnlimited {
			return leftUnlimited
		}
		if passes[left].SessionsRemaining != passes[right].SessionsRemaining {
			return passes[left].SessionsRemaining > passes[right].SessionsRemaining
		}
		return passes[left].ExpiryDate.Before(passes[right].ExpiryDate)
	})
}

// newPass mints a pass from a plan.
func newPass(id string, customer Customer, plan PassPlan, price AmountCents, currency string, now time.Time) Pass {
	sessions := plan.Sessions
	if plan.Type == PassTypeUnlimited {
		sessions = UnlimitedSessions
	}
	return Pass{
		ID:                id,
		Customer:          customer,
		Type:              plan.Type,
		SessionsTotal:     sessions,
		SessionsUsed:      0,
		SessionsRemaining: sessions,
		PurchaseDate:      now,
		ExpiryDate:        now.Add(plan.Validity),
		Status:            PassStatusActive,
		IsRecurring:       plan.Recurring,
		PriceCents:        price,
		Currency:          currency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
