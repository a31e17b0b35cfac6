package types

// Envelope is the body of every successful API response.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// SuccessEnvelope is the untyped form handlers write.
type SuccessEnvelope = Envelope[any]

// ErrorBody carries a stable machine code next to a human message. Details
// holds per-field problems for validation failures.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
