package money

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Basic arithmetic
// ---------------------------------------------------------------------------

func TestAdd(t *testing.T) {
	if got := Add(100, 250, 50); got != 400 {
		t.Errorf("Add(100, 250, 50) = %d, want 400", got)
	}
	if got := Add(); got != 0 {
		t.Errorf("Add() = %d, want 0", got)
	}
	if got := Add(500, -200); got != 300 {
		t.Errorf("Add(500, -200) = %d, want 300", got)
	}
}

func TestSubtract(t *testing.T) {
	if got := Subtract(1000, 250); got != 750 {
		t.Errorf("Subtract(1000, 250) = %d, want 750", got)
	}
	if got := Subtract(100, 250); got != -150 {
		t.Errorf("Subtract(100, 250) = %d, want -150", got)
	}
}

func TestMultiply_RoundsAtStep(t *testing.T) {
	cases := []struct {
		amount int64
		factor float64
		want   int64
	}{
		{100, 1.5, 150},
		{101, 0.5, 51},  // 50.5 rounds away from zero
		{333, 0.1, 33},  // 33.3 rounds down
		{335, 0.01, 3},  // 3.35 rounds up
		{-101, 0.5, -51},
		{0, 99.9, 0},
	}
	for _, c := range cases {
		if got := Multiply(c.amount, c.factor); got != c.want {
			t.Errorf("Multiply(%d, %v) = %d, want %d", c.amount, c.factor, got, c.want)
		}
	}
}

func TestMultiply_FailsOpenOnBadFactor(t *testing.T) {
	if got := Multiply(1000, math.NaN()); got != 0 {
		t.Errorf("Multiply with NaN factor = %d, want 0", got)
	}
	if got := Multiply(1000, math.Inf(1)); got != 0 {
		t.Errorf("Multiply with +Inf factor = %d, want 0", got)
	}
}

func TestDivide(t *testing.T) {
	if got := Divide(1000, 3); got != 333 {
		t.Errorf("Divide(1000, 3) = %d, want 333", got)
	}
	if got := Divide(1001, 2); got != 501 {
		t.Errorf("Divide(1001, 2) = %d, want 501", got)
	}
}

func TestDivide_FailsOpenOnBadDivisor(t *testing.T) {
	if got := Divide(1000, 0); got != 0 {
		t.Errorf("Divide by zero = %d, want 0", got)
	}
	if got := Divide(1000, math.NaN()); got != 0 {
		t.Errorf("Divide by NaN = %d, want 0", got)
	}
	if got := Divide(1000, math.Inf(-1)); got != 0 {
		t.Errorf("Divide by -Inf = %d, want 0", got)
	}
}

// ---------------------------------------------------------------------------
// Percentages, discounts, tax
// ---------------------------------------------------------------------------

func TestPercentageOf(t *testing.T) {
	cases := []struct {
		amount  int64
		percent float64
		want    int64
	}{
		{10000, 16, 1600},
		{10000, 33, 3300},
		{999, 33, 330},   // 329.67 rounds up
		{101, 50, 51},    // 50.5 rounds away from zero
		{10000, 0, 0},
		{10000, 100, 10000},
		{0, 80, 0},
	}
	for _, c := range cases {
		if got := PercentageOf(c.amount, c.percent); got != c.want {
			t.Errorf("PercentageOf(%d, %v) = %d, want %d", c.amount, c.percent, got, c.want)
		}
	}
}

func TestApplyDiscount(t *testing.T) {
	if got := ApplyDiscount(10000, 10); got != 9000 {
		t.Errorf("ApplyDiscount(10000, 10) = %d, want 9000", got)
	}
	// discount amount rounds first, then subtracts
	if got := ApplyDiscount(999, 33); got != 669 {
		t.Errorf("ApplyDiscount(999, 33) = %d, want 669", got)
	}
	if got := ApplyDiscount(10000, 0); got != 10000 {
		t.Errorf("ApplyDiscount(10000, 0) = %d, want 10000", got)
	}
}

func TestAddTax(t *testing.T) {
	b := AddTax(10000, 16)
	if b.Net != 10000 || b.Tax != 1600 || b.Gross != 11600 {
		t.Errorf("AddTax(10000, 16) = %+v, want net 10000 tax 1600 gross 11600", b)
	}

	b = AddTax(105, 15)
	if b.Tax != 16 { // 15.75 rounds up
		t.Errorf("AddTax(105, 15).Tax = %d, want 16", b.Tax)
	}
	if b.Gross != 121 {
		t.Errorf("AddTax(105, 15).Gross = %d, want 121", b.Gross)
	}
}

func TestExtractTax(t *testing.T) {
	b := ExtractTax(11600, 16)
	if b.Net != 10000 || b.Tax != 1600 || b.Gross != 11600 {
		t.Errorf("ExtractTax(11600, 16) = %+v, want net 10000 tax 1600 gross 11600", b)
	}
	if b.Net+b.Tax != b.Gross {
		t.Errorf("net %d + tax %d != gross %d", b.Net, b.Tax, b.Gross)
	}
}

// Each step rounds independently, so extracting tax from a gross and
// re-adding it does not always land on the same gross. These figures are
// load-bearing for existing reports and must not be "fixed".
func TestExtractTax_PerStepRounding(t *testing.T) {
	b := ExtractTax(10, 33)
	if b.Net != 8 || b.Tax != 2 {
		t.Fatalf("ExtractTax(10, 33) = %+v, want net 8 tax 2", b)
	}
	again := AddTax(b.Net, 33)
	if again.Gross != 11 {
		t.Errorf("AddTax(8, 33).Gross = %d, want 11", again.Gross)
	}
}

func TestExtractTax_FailsOpenAtNegativeHundredPercent(t *testing.T) {
	b := ExtractTax(5000, -100) // divisor collapses to zero
	if b.Net != 0 {
		t.Errorf("ExtractTax(5000, -100).Net = %d, want 0", b.Net)
	}
	if b.Gross != 5000 {
		t.Errorf("ExtractTax(5000, -100).Gross = %d, want 5000", b.Gross)
	}
}

// ---------------------------------------------------------------------------
// Coverage split
// ---------------------------------------------------------------------------

func TestCalculateCoverage_SharesAlwaysSumToTotal(t *testing.T) {
	totals := []int64{0, 1, 99, 100, 999, 10000, 333333}
	percents := []float64{0, 33, 50, 67, 80, 100}

	for _, total := range totals {
		for _, pct := range percents {
			cov := CalculateCoverage(total, pct)
			if cov.CompanyShare+cov.PatientShare != total {
				t.Errorf("CalculateCoverage(%d, %v): %d + %d != %d",
					total, pct, cov.CompanyShare, cov.PatientShare, total)
			}
		}
	}
}

func TestCalculateCoverage_Values(t *testing.T) {
	cov := CalculateCoverage(10000, 80)
	if cov.CompanyShare != 8000 || cov.PatientShare != 2000 {
		t.Errorf("CalculateCoverage(10000, 80) = %+v, want 8000/2000", cov)
	}

	cov = CalculateCoverage(100, 33)
	if cov.CompanyShare != 33 || cov.PatientShare != 67 {
		t.Errorf("CalculateCoverage(100, 33) = %+v, want 33/67", cov)
	}

	cov = CalculateCoverage(10000, 0)
	if cov.CompanyShare != 0 || cov.PatientShare != 10000 {
		t.Errorf("CalculateCoverage(10000, 0) = %+v, want 0/10000", cov)
	}
}

// ---------------------------------------------------------------------------
// Split
// ---------------------------------------------------------------------------

func TestSplit_SumAndLengthInvariant(t *testing.T) {
	amounts := []int64{1, 7, 100, 999, 10000, 12345}
	partCounts := []int{1, 2, 3, 4, 7, 12}

	for _, amount := range amounts {
		for _, parts := range partCounts {
			got := Split(amount, parts)
			if len(got) != parts {
				t.Fatalf("Split(%d, %d) returned %d parts", amount, parts, len(got))
			}
			var sum int64
			for _, p := range got {
				sum += p
			}
			if sum != amount {
				t.Errorf("Split(%d, %d) sums to %d", amount, parts, sum)
			}
		}
	}
}

func TestSplit_FirstPartAbsorbsRemainder(t *testing.T) {
	got := Split(10000, 3)
	if got[0] != 3334 || got[1] != 3333 || got[2] != 3333 {
		t.Errorf("Split(10000, 3) = %v, want [3334 3333 3333]", got)
	}

	got = Split(100, 4)
	for i, p := range got {
		if p != 25 {
			t.Errorf("Split(100, 4)[%d] = %d, want 25", i, p)
		}
	}
}

func TestSplit_InvalidParts(t *testing.T) {
	if got := Split(100, 0); got != nil {
		t.Errorf("Split(100, 0) = %v, want nil", got)
	}
	if got := Split(100, -3); got != nil {
		t.Errorf("Split(100, -3) = %v, want nil", got)
	}
}

// ---------------------------------------------------------------------------
// Exchange conversion
// ---------------------------------------------------------------------------

func TestConvert(t *testing.T) {
	// 100 USD cents at 27.50 CDF per cent-equivalent rate
	if got := Convert(100, 27.5); got != 2750 {
		t.Errorf("Convert(100, 27.5) = %d, want 2750", got)
	}
	if got := Convert(333, 0.5); got != 167 { // 166.5 rounds away from zero
		t.Errorf("Convert(333, 0.5) = %d, want 167", got)
	}
	if got := Convert(100, math.NaN()); got != 0 {
		t.Errorf("Convert with NaN rate = %d, want 0", got)
	}
}
