package booking

import (
	"fmt"
	"time"
)

// PassPlan describes the pass granted when a pack or subscription is paid.
type PassPlan struct {
	Type      PassType
	Sessions  int
	Validity  time.Duration
	Recurring bool
}

// Price is one row of the pricing table.
type Price struct {
	Option      PricingOption
	Name        string
	AmountCents AmountCents
	Plan        *PassPlan
}

// PricingTable maps pricing options to prices. Bookings never take an amount
// from the client.
type PricingTable map[PricingOption]Price

const day = 24 * time.Hour

// DefaultPricing returns the studio price list in minor units.
func DefaultPricing() PricingTable {
	return PricingTable{
		PricingTrial:  {Option: PricingTrial, Name: "Trial class", AmountCents: 0},
		PricingSingle: {Option: PricingSingle, Name: "Single class", AmountCents: 2500},
		PricingMultiSessionPack: {
			Option:      PricingMultiSessionPack,
			Name:        "10-class pass",
			AmountCents: 21000,
			Plan:        &PassPlan{Type: PassTypeFixedCount, Sessions: 10, Validity: 365 * day},
		},
		PricingSubscription: {
			Option:      PricingSubscription,
			Name:        "Semester pass",
			AmountCents: 34000,
			Plan:        &PassPlan{Type: PassTypeUnlimited, Sessions: UnlimitedSessions, Validity: 183 * day, Recurring: true},
		},
	}
}

// Lookup returns the price for option.
func (table PricingTable) Lookup(option PricingOption) (Price, error) {
	price, ok := table[option]
	if !ok {
		return Price{}, fmt.Errorf("%w: %q not priced", ErrInvalidPricingOption, option)
	}
	return price, nil
}

// PlanForType returns the plan used to mint passes of passType.
func (table PricingTable) PlanForType(passType PassType) (Price, error) {
	for _, price := range table {
		if price.Plan != nil && price.Plan.Type == passType {
			return price, nil
		}
	}
	return Price{}, fmt.Errorf("%w: no plan for %q", ErrInvalidPassType, passType)
}
