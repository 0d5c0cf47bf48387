package calendarsync

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
)

const DefaultMaxCapacity = 10

// DefaultPriceCents is the single-class price used when an event carries no [price:N] tag.
const DefaultPriceCents booking.AmountCents = 2500

const centsPerUnit = 100

var (
	maxAnnotation   = regexp.MustCompile(`(?i)\[max:(\d+)\]`)
	priceAnnotation = regexp.MustCompile(`(?i)\[price:(\d+)\]`)
)

// Annotations are the booking hints embedded in a calendar event description.
type Annotations struct {
	MaxCapacity int
	PriceCents  booking.AmountCents
	Description string
}

// ParseAnnotations reads [max:N] and [price:N] (whole currency units) from
// description and returns the description with the tags stripped.
func ParseAnnotations(description string) Annotations {
	annotations := Annotations{MaxCapacity: DefaultMaxCapacity, PriceCents: DefaultPriceCents}
	if match := maxAnnotation.FindStringSubmatch(description); match != nil {
		if value, err := strconv.Atoi(match[1]); err == nil {
			annotations.MaxCapacity = value
		}
	}
	if match := priceAnnotation.FindStringSubmatch(description); match != nil {
		if value, err := strconv.ParseInt(match[1], 10, 64); err == nil {
			annotations.PriceCents = booking.AmountCents(value * centsPerUnit)
		}
	}
	stripped := maxAnnotation.ReplaceAllString(description, "")
	stripped = priceAnnotation.ReplaceAllString(stripped, "")
	annotations.Description = strings.TrimSpace(stripped)
	return annotations
}
