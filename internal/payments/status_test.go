package payments

import (
	"testing"

	"github.com/edulink-id/studyfair-backend/pkg/enums"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		name              string
		transactionStatus string
		fraudStatus       string
		want              enums.BookingStatus
	}{
		{"capture accepted", "capture", "accept", enums.BookingStatusPaid},
		{"capture challenged", "capture", "challenge", enums.BookingStatusReview},
		{"capture without fraud verdict", "capture", "", enums.BookingStatusReview},
		{"settlement", "settlement", "", enums.BookingStatusPaid},
		{"pending", "pending", "", enums.BookingStatusPending},
		{"authorize", "authorize", "", enums.BookingStatusPending},
		{"deny", "deny", "", enums.BookingStatusFailed},
		{"cancel", "cancel", "", enums.BookingStatusCancelled},
		{"expire", "expire", "", enums.BookingStatusExpired},
		{"refund", "refund", "", enums.BookingStatusReview},
		{"partial refund", "partial_refund", "", enums.BookingStatusReview},
		{"unknown status", "somethingelse", "", enums.BookingStatusReview},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MapStatus(tc.transactionStatus, tc.fraudStatus); got != tc.want {
				t.Fatalf("MapStatus(%q, %q) = %s, want %s", tc.transactionStatus, tc.fraudStatus, got, tc.want)
			}
		})
	}
}
