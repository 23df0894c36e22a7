// Package amortization holds the annuity math behind every restructuring scenario.
package amortization

import "math"

// termEpsilon absorbs floating-point noise before rounding a term up.
const termEpsilon = 1e-9

// Annuity is the level payment that amortizes principal over n periods at rate r.
func Annuity(principal, r float64, n int) float64 {
	if n <= 0 {
		return principal
	}
	if r <= 0 {
		return principal / float64(n)
	}
	return principal * r / (1 - math.Pow(1+r, -float64(n)))
}

// PresentValue is the principal a level payment amortizes over n periods at rate r.
func PresentValue(payment, r float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	if r <= 0 {
		return payment * float64(n)
	}
	return payment * (1 - math.Pow(1+r, -float64(n))) / r
}

// Balance is what remains owed after paying payment for months periods.
func Balance(principal, payment, r float64, months int) float64 {
	if months <= 0 {
		return principal
	}
	if r <= 0 {
		return principal - payment*float64(months)
	}
	g := math.Pow(1+r, float64(months))
	return principal*g - payment*(g-1)/r
}

// CapitalizeInterest rolls unpaid interest into the balance for months periods.
func CapitalizeInterest(principal, r float64, months int) float64 {
	if months <= 0 {
		return principal
	}
	return principal * math.Pow(1+r, float64(months))
}

// TermFromPayment returns the number of payments needed to amortize principal,
// and false when the payment never covers the interest.
func TermFromPayment(principal, r, payment float64) (int, bool) {
	if payment <= 0 || principal < 0 {
		return 0, false
	}
	if principal == 0 {
		return 0, true
	}
	if r <= 0 {
		return ceilTerm(principal / payment), true
	}
	ratio := 1 - r*principal/payment
	if ratio <= 0 {
		return 0, false
	}
	return ceilTerm(-math.Log(ratio) / math.Log(1+r)), true
}

func ceilTerm(x float64) int {
	return int(math.Ceil(x - termEpsilon))
}
