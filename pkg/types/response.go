// Package types holds the JSON envelopes every API response is wrapped in.
package types

// SuccessEnvelope wraps successful payloads under a "data" key.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error shape: a stable machine code, a safe
// message, and optional structured details (field errors and the like).
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps an APIError under an "error" key.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
