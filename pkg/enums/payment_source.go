package enums

import "fmt"

// PaymentSource identifies which entry point produced a status observation.
type PaymentSource string

const (
	PaymentSourceWebhook PaymentSource = "webhook"
	PaymentSourcePoll    PaymentSource = "poll"
	PaymentSourceManual  PaymentSource = "manual"
	PaymentSourceSystem  PaymentSource = "system"
)

var validPaymentSources = []PaymentSource{
	PaymentSourceWebhook,
	PaymentSourcePoll,
	PaymentSourceManual,
	PaymentSourceSystem,
}

// String implements fmt.Stringer.
func (p PaymentSource) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PaymentSource) IsValid() bool {
	for _, candidate := range validPaymentSources {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentSource converts raw input into a PaymentSource.
func ParsePaymentSource(value string) (PaymentSource, error) {
	for _, candidate := range validPaymentSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment source %q", value)
}
