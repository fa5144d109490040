package money

import (
	"fmt"
	"strings"

	"github.com/fjod/cartql/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	USD = "USD"
	INR = "INR"
)

// symbols of the currencies the API can format.
var symbols = map[string]string{
	USD: "$",
	INR: "₹",
}

// Formatter turns integer minor units into display strings. It is built once
// at startup and shared read-only.
type Formatter struct {
	defaultCode string
	units       map[string]unit
	printer     *message.Printer
}

type unit struct {
	symbol string
	scale  int
}

// NewFormatter builds a formatter for the supported currencies with
// defaultCode used when no code (or an unknown one) is requested.
func NewFormatter(defaultCode string) (*Formatter, error) {
	f := &Formatter{
		units:   make(map[string]unit, len(symbols)),
		printer: message.NewPrinter(language.AmericanEnglish),
	}
	for code, sym := range symbols {
		cur, err := currency.ParseISO(code)
		if err != nil {
			return nil, fmt.Errorf("parse currency %s: %w", code, err)
		}
		scale, _ := currency.Standard.Rounding(cur)
		f.units[code] = unit{symbol: sym, scale: scale}
	}

	code := strings.ToUpper(strings.TrimSpace(defaultCode))
	if code == "" {
		code = USD
	}
	if !f.Supports(code) {
		return nil, fmt.Errorf("unsupported default currency %q", defaultCode)
	}
	f.defaultCode = code
	return f, nil
}

func (f *Formatter) DefaultCurrency() string {
	return f.defaultCode
}

func (f *Formatter) Supports(code string) bool {
	_, ok := f.units[strings.ToUpper(code)]
	return ok
}

// Format renders amount in the default currency.
func (f *Formatter) Format(amount int64) string {
	return f.FormatIn(amount, "")
}

// FormatIn renders amount in code; empty or unknown codes use the default.
// This is display formatting only, the amount is never converted.
func (f *Formatter) FormatIn(amount int64, code string) string {
	u, ok := f.units[strings.ToUpper(code)]
	if !ok {
		u = f.units[f.defaultCode]
	}

	major := decimal.New(amount, -int32(u.scale))
	sign := ""
	if major.IsNegative() {
		sign = "-"
		major = major.Abs()
	}

	// integer digits are grouped by the locale printer; the fraction comes
	// from the exact decimal so no digits are lost to float rounding
	text := f.printer.Sprint(number.Decimal(major.IntPart()))
	if u.scale > 0 {
		fixed := major.StringFixed(int32(u.scale))
		text += fixed[strings.IndexByte(fixed, '.'):]
	}
	return sign + u.symbol + text
}

// Money pairs amount with its formatted form.
func (f *Formatter) Money(amount int64, code string) domain.Money {
	return domain.Money{Amount: amount, Formatted: f.FormatIn(amount, code)}
}
