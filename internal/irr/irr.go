// Package irr finds the per-period internal rate of return of a cash-flow series.
package irr

import "math"

const (
	DefaultGuess  = 0.02
	MaxIterations = 100

	stepTolerance  = 1e-10
	minDerivative  = 1e-12
	divergenceRate = 100
)

// Result reports the rate found and whether it can be trusted.
// Divergence and stalls are normal outcomes, not errors.
type Result struct {
	IRR        float64 `json:"irr"`
	IsValid    bool    `json:"is_valid"`
	Iterations int     `json:"iterations"`
}

// NPV returns the net present value of flows at rate r and its derivative with respect to r.
func NPV(flows []float64, r float64) (npv, dnpv float64) {
	base := 1 + r
	for t, c := range flows {
		disc := math.Pow(base, float64(t))
		npv += c / disc
		dnpv -= float64(t) * c / (disc * base)
	}
	return npv, dnpv
}

// Solve runs Newton-Raphson from guess. flows[0] is the funded amount (negative),
// the rest are the payment stream.
func Solve(flows []float64, guess float64) Result {
	r := guess
	if len(flows) < 2 || math.IsNaN(r) || math.IsInf(r, 0) {
		return Result{IRR: finiteOr(r, 0)}
	}

	for i := 1; i <= MaxIterations; i++ {
		npv, dnpv := NPV(flows, r)
		if math.IsNaN(npv) || math.IsInf(npv, 0) || math.IsNaN(dnpv) || math.IsInf(dnpv, 0) {
			return Result{IRR: r, Iterations: i}
		}
		if math.Abs(dnpv) < minDerivative {
			return Result{IRR: r, Iterations: i}
		}

		step := npv / dnpv
		next := r - step
		if math.IsNaN(next) || math.IsInf(next, 0) || math.Abs(next) > divergenceRate {
			return Result{IRR: r, Iterations: i}
		}
		r = next

		if math.Abs(step) < stepTolerance {
			return Result{IRR: r, IsValid: true, Iterations: i}
		}
	}

	return Result{IRR: r, Iterations: MaxIterations}
}

// SolveDefault solves from DefaultGuess.
func SolveDefault(flows []float64) Result {
	return Solve(flows, DefaultGuess)
}

// LevelFlows builds [-principal, payment × n].
func LevelFlows(principal, payment float64, n int) []float64 {
	if n < 0 {
		n = 0
	}
	flows := make([]float64, n+1)
	flows[0] = -principal
	for t := 1; t <= n; t++ {
		flows[t] = payment
	}
	return flows
}

func finiteOr(x, fallback float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return fallback
	}
	return x
}
