package enums

import "fmt"

// BookingStatus tracks the payment lifecycle of a booth booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusReview    BookingStatus = "review"
	BookingStatusFailed    BookingStatus = "failed"
	BookingStatusExpired   BookingStatus = "expired"
	BookingStatusCancelled BookingStatus = "cancelled"
)

var validBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusPaid,
	BookingStatusReview,
	BookingStatusFailed,
	BookingStatusExpired,
	BookingStatusCancelled,
}

// String implements fmt.Stringer.
func (b BookingStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is known.
func (b BookingStatus) IsValid() bool {
	for _, candidate := range validBookingStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status accepts no further transition.
// REVIEW is intentionally not terminal: it awaits a re-check.
func (b BookingStatus) IsTerminal() bool {
	switch b {
	case BookingStatusPaid, BookingStatusFailed, BookingStatusExpired, BookingStatusCancelled:
		return true
	}
	return false
}

// ParseBookingStatus converts raw input into a BookingStatus.
func ParseBookingStatus(value string) (BookingStatus, error) {
	for _, candidate := range validBookingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking status %q", value)
}
