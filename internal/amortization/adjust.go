package amortization

import "math"

const (
	// Rate-mode bounds. The 18% reference and the [0.8, 1.2] clamp are
	// placeholder policy constants pending confirmation from credit policy.
	referenceRate = 0.18
	minFactor     = 0.8
	maxFactor     = 1.2
	maxRateTerm   = 84
	minPaymentPct = 0.7

	targetTermCap = 1.5
)

// AdjustInput describes a payment/term pair to re-derive. NewRate is annual.
type AdjustInput struct {
	OriginalPayment float64
	OriginalTerm    int
	NewRate         float64
	TargetPayment   *float64
}

type Adjustment struct {
	MPrime   float64
	NPrime   int
	Feasible bool
}

// Adjust derives a modified payment/term pair. The principal is implied by
// OriginalPayment over OriginalTerm at NewRate/12. With a TargetPayment the
// term is solved for that payment; otherwise a rate-driven factor scales
// the payment and the term follows.
func Adjust(in AdjustInput) Adjustment {
	r := in.NewRate / 12
	principal := PresentValue(in.OriginalPayment, r, in.OriginalTerm)

	var adj Adjustment
	if in.TargetPayment != nil {
		adj = adjustToTarget(principal, r, *in.TargetPayment, in.OriginalTerm)
	} else {
		adj = adjustByRate(principal, r, in.NewRate, in.OriginalPayment)
	}
	if in.OriginalPayment <= 0 || in.OriginalTerm <= 0 {
		adj.Feasible = false
	}
	return adj
}

func adjustToTarget(principal, r, target float64, originalTerm int) Adjustment {
	limit := int(math.Floor(targetTermCap * float64(originalTerm)))
	n, ok := TermFromPayment(principal, r, target)
	if !ok || originalTerm <= 0 || n > limit {
		return Adjustment{MPrime: target, NPrime: limit, Feasible: false}
	}
	return Adjustment{MPrime: target, NPrime: n, Feasible: true}
}

func adjustByRate(principal, r, annual, originalPayment float64) Adjustment {
	factor := annual / referenceRate
	factor = math.Max(minFactor, math.Min(maxFactor, factor))
	mPrime := originalPayment * factor

	n, ok := TermFromPayment(principal, r, mPrime)
	if !ok || n > maxRateTerm {
		return Adjustment{MPrime: mPrime, NPrime: maxRateTerm, Feasible: false}
	}
	feasible := originalPayment > 0 && mPrime >= minPaymentPct*originalPayment
	return Adjustment{MPrime: mPrime, NPrime: n, Feasible: feasible}
}
