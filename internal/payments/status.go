package payments

import "github.com/edulink-id/studyfair-backend/pkg/enums"

// MapStatus translates a raw gateway transaction status (plus fraud status
// where relevant) into the booking lifecycle status. Unknown or ambiguous
// statuses, including refunds, land in REVIEW so an operator decides.
func MapStatus(transactionStatus, fraudStatus string) enums.BookingStatus {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "accept" {
			return enums.BookingStatusPaid
		}
		// challenge or anything unexpected alongside a capture
		return enums.BookingStatusReview
	case "settlement":
		return enums.BookingStatusPaid
	case "pending", "authorize":
		return enums.BookingStatusPending
	case "deny":
		return enums.BookingStatusFailed
	case "cancel":
		return enums.BookingStatusCancelled
	case "expire":
		return enums.BookingStatusExpired
	default:
		// refund, partial_refund and anything unrecognized
		return enums.BookingStatusReview
	}
}
