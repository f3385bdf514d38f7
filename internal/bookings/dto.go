package bookings

import (
	"github.com/google/uuid"
)

// CreateBookingInput is the request body for opening a booth booking.
type CreateBookingInput struct {
	EventID     uuid.UUID `json:"event_id" validate:"required"`
	RepName     string    `json:"rep_name" validate:"required,max=120"`
	RepEmail    string    `json:"rep_email" validate:"required,email"`
	RepPhone    string    `json:"rep_phone" validate:"omitempty,max=32"`
	CampusName  string    `json:"campus_name" validate:"required,max=160"`
	VoucherCode string    `json:"voucher_code" validate:"omitempty,max=64"`
}

// CreateBookingResult intentionally omits the order id and amount; the pay
// token is the client's only handle on the payment flow.
type CreateBookingResult struct {
	BookingID uuid.UUID `json:"booking_id"`
	EventID   uuid.UUID `json:"event_id"`
	PayToken  string    `json:"pay_token"`
}
