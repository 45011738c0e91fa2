package money

import "github.com/shopspring/decimal"

// currencyDecimals maps ISO currency codes to their decimal-place count.
// Unknown codes fall back to zero decimals: the whole-unit currencies
// (CDF foremost) dominate the clinics this system is deployed in, and a
// wrong guess of zero only affects display, never stored arithmetic.
var currencyDecimals = map[string]int32{
	"CDF": 0,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"CAD": 2,
	"ZAR": 2,
	"KES": 2,
	"NGN": 2,
	"XAF": 0,
	"XOF": 0,
	"RWF": 0,
	"UGX": 0,
	"JPY": 0,
	"KWD": 3,
	"BHD": 3,
	"TND": 3,
}

// Decimals returns the decimal-place count for a currency code.
func Decimals(code string) int32 {
	return currencyDecimals[code]
}

// ToStorage converts a display-form value ("123.45") into smallest-unit
// integer form for the given currency. Malformed input yields zero.
func ToStorage(display string, code string) int64 {
	d, err := decimal.NewFromString(display)
	if err != nil {
		return 0
	}
	return d.Shift(Decimals(code)).Round(0).IntPart()
}

// ToDisplay converts a smallest-unit amount into its display form with the
// currency's decimal places ("12345" -> "123.45" for USD).
func ToDisplay(minor int64, code string) string {
	places := Decimals(code)
	return decimal.New(minor, -places).StringFixed(places)
}

// DisplayFloat converts a smallest-unit amount into a float for report
// shaping (charts, CSV exports). Never feed the result back into
// arithmetic; amounts stay integer end to end.
func DisplayFloat(minor int64, code string) float64 {
	f, _ := decimal.New(minor, -Decimals(code)).Float64()
	return f
}
