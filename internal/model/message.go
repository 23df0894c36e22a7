package model

// ReasonCode enumerates why a scenario is not eligible.
type ReasonCode string

const (
	CodeIRRBelowMin     ReasonCode = "IRR_BELOW_MIN"
	CodePaymentBelowMin ReasonCode = "PAYMENT_BELOW_MIN"
	CodeCapExceeded     ReasonCode = "CAP_EXCEEDED"
	CodeNotFeasible     ReasonCode = "NOT_FEASIBLE"
)

// Warning is a single rejection reason attached to a scenario.
type Warning struct {
	Code        ReasonCode `json:"code"`
	Message     string     `json:"message"`
	Remediation string     `json:"remediation,omitempty"`
}
