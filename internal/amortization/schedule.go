package amortization

import (
	"time"

	"github.com/shopspring/decimal"

	"restructure-engine/internal/model"
)

// Period is a run of identical payments inside a schedule.
type Period struct {
	Months  int
	Payment float64
}

// Schedule builds the month-by-month table for a payment plan, rounding every
// amount to cents. Interest accrues on the running balance; the final row
// absorbs rounding so the balance closes at zero when the plan amortizes.
// When start is non-zero each row carries its due date.
func Schedule(principal, r float64, periods []Period, start time.Time) []model.ScheduleRow {
	rate := decimal.NewFromFloat(r)
	balance := decimal.NewFromFloat(principal).Round(2)

	total := 0
	for _, p := range periods {
		total += p.Months
	}

	rows := make([]model.ScheduleRow, 0, total)
	month := 0
	for _, p := range periods {
		payment := decimal.NewFromFloat(p.Payment).Round(2)
		for i := 0; i < p.Months; i++ {
			month++
			interest := balance.Mul(rate).Round(2)
			due := payment
			if month == total && balance.Add(interest).Sub(payment).Abs().LessThan(payment) {
				due = balance.Add(interest)
			}
			principalPaid := due.Sub(interest)
			balance = balance.Sub(principalPaid)
			if balance.IsNegative() {
				balance = decimal.Zero
			}

			row := model.ScheduleRow{
				Month:     month,
				Payment:   due.InexactFloat64(),
				Principal: principalPaid.InexactFloat64(),
				Interest:  interest.InexactFloat64(),
				Balance:   balance.InexactFloat64(),
			}
			if !start.IsZero() {
				row.DueDate = start.AddDate(0, month-1, 0).Format("2006-01-02")
			}
			rows = append(rows, row)
		}
	}
	return rows
}
