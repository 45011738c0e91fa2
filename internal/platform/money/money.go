// Package money implements fixed-point currency arithmetic for billing.
// Amounts are integers in the smallest unit of their currency (cents for
// USD, whole francs for CDF) and are never held as floats between
// operations. Rates and percentages are plain scalars, not amounts.
//
// Two rules shape every function here: each step rounds to the nearest
// integer immediately (multi-step computations stay reproducible), and
// malformed numeric input degrades to zero instead of failing -- a billing
// request is better served by a zero line than by a crash.
package money

import "math"

// TaxBreakdown is the result of adding tax to a net amount or extracting
// tax from a gross amount.
type TaxBreakdown struct {
	Net   int64 `json:"net"`
	Tax   int64 `json:"tax"`
	Gross int64 `json:"gross"`
}

// Coverage is the split of a total between an insurance company and the
// patient.
type Coverage struct {
	CompanyShare int64 `json:"company_share"`
	PatientShare int64 `json:"patient_share"`
}

// round converts a scalar result back to an integer amount, rounding half
// away from zero. Non-finite input collapses to zero.
func round(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(math.Round(f))
}

// Add sums any number of amounts.
func Add(amounts ...int64) int64 {
	var sum int64
	for _, a := range amounts {
		sum += a
	}
	return sum
}

// Subtract returns a minus b.
func Subtract(a, b int64) int64 {
	return a - b
}

// Multiply scales an amount by a factor, rounding immediately.
func Multiply(amount int64, factor float64) int64 {
	return round(float64(amount) * factor)
}

// Divide divides an amount by a divisor, rounding immediately. A zero or
// non-finite divisor yields zero.
func Divide(amount int64, divisor float64) int64 {
	if divisor == 0 || math.IsNaN(divisor) || math.IsInf(divisor, 0) {
		return 0
	}
	return round(float64(amount) / divisor)
}

// PercentageOf returns percent% of amount, rounded at this step.
func PercentageOf(amount int64, percent float64) int64 {
	return round(float64(amount) * percent / 100)
}

// ApplyDiscount reduces an amount by a percentage discount.
func ApplyDiscount(amount int64, percent float64) int64 {
	return amount - PercentageOf(amount, percent)
}

// AddTax computes the tax on a net amount and the resulting gross.
func AddTax(net int64, percent float64) TaxBreakdown {
	tax := PercentageOf(net, percent)
	return TaxBreakdown{Net: net, Tax: tax, Gross: net + tax}
}

// ExtractTax splits a tax-inclusive gross into net and tax portions.
// Because both AddTax and ExtractTax round at their own step, extracting
// tax from an AddTax result does not always reproduce the original net;
// billing reports depend on these per-step-rounded figures, so the
// behavior is kept as is.
func ExtractTax(gross int64, percent float64) TaxBreakdown {
	net := Divide(gross, 1+percent/100)
	return TaxBreakdown{Net: net, Tax: gross - net, Gross: gross}
}

// CalculateCoverage splits a total between company and patient shares.
// The patient share is the exact remainder, so the two shares always sum
// to the total, including for percentages like 33 that do not divide
// evenly.
func CalculateCoverage(total int64, coveragePercent float64) Coverage {
	company := PercentageOf(total, coveragePercent)
	return Coverage{CompanyShare: company, PatientShare: total - company}
}

// Split divides an amount into the given number of parts. The first part
// absorbs the integer remainder so the parts always sum to the amount
// exactly. A non-positive part count yields nil.
func Split(amount int64, parts int) []int64 {
	if parts <= 0 {
		return nil
	}
	base := amount / int64(parts)
	out := make([]int64, parts)
	for i := range out {
		out[i] = base
	}
	out[0] += amount - base*int64(parts)
	return out
}

// Convert applies an exchange rate to an amount, rounding at this step.
// The rate is supplied by the caller; this package does not source rates.
func Convert(amount int64, rate float64) int64 {
	return Multiply(amount, rate)
}
