package ui

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PlaceholderUSDPrice is the fixed USD price per native unit used for the
// rough value column. It is not a market price.
const PlaceholderUSDPrice = 2000

var (
	minAmount = decimal.RequireFromString("0.0001")
	minUSD    = decimal.RequireFromString("0.01")
)

// toUnits converts a base-10 integer amount in the smallest denomination into
// whole native units.
func toUnits(value string, decimals int) (decimal.Decimal, bool) {
	v, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, false
	}
	return v.Shift(int32(-decimals)), true
}

// FormatAmount renders value (smallest unit) in native units: "0" for zero,
// "< 0.0001" for dust, otherwise up to 6 decimals without trailing zeros.
func FormatAmount(value string, decimals int) string {
	units, ok := toUnits(value, decimals)
	if !ok || units.IsZero() {
		return "0"
	}
	if units.LessThan(minAmount) {
		return "< 0.0001"
	}
	s := units.StringFixed(6)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

// FormatUSD renders value at PlaceholderUSDPrice: "< $0.01" for small
// amounts, otherwise "$x.xx".
func FormatUSD(value string, decimals int) string {
	return FormatUSDAt(value, decimals, decimal.NewFromInt(PlaceholderUSDPrice))
}

// FormatUSDAt renders value at price per native unit.
func FormatUSDAt(value string, decimals int, price decimal.Decimal) string {
	units, ok := toUnits(value, decimals)
	if !ok {
		return "$0.00"
	}
	usd := units.Mul(price)
	if usd.LessThan(minUSD) {
		return "< $0.01"
	}
	return "$" + usd.StringFixed(2)
}

// Prices holds USD prices keyed by upper case native currency symbol.
type Prices map[string]decimal.Decimal

// USD returns the price for symbol, or PlaceholderUSDPrice when unknown.
func (p Prices) USD(symbol string) decimal.Decimal {
	if v, ok := p[strings.ToUpper(symbol)]; ok {
		return v
	}
	return decimal.NewFromInt(PlaceholderUSDPrice)
}

// FormatTimestamp renders a unix timestamp in local time, e.g. "Mar 4, 2024, 09:15 PM".
func FormatTimestamp(unix int64) string {
	return time.Unix(unix, 0).Local().Format("Jan 2, 2006, 03:04 PM")
}

// FormatAge renders how long ago unix was relative to now, e.g. "5m ago".
func FormatAge(unix int64, now time.Time) string {
	d := now.Sub(time.Unix(unix, 0))
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d.Hours())) + "h ago"
	default:
		return strconv.Itoa(int(d.Hours()/24)) + "d ago"
	}
}
