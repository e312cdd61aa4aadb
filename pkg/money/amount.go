package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decimals is the number of fractional digits carried by an Amount.
const Decimals = 6

const scale int64 = 1_000_000

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("amount cannot be negative")
	ErrTooPrecise     = errors.New("amount has more than 6 fractional digits")
)

// Amount is a fixed-point currency value stored as millionths of a unit.
// It encodes to BSON as a plain int64 and to JSON as a decimal number.
type Amount int64

func FromMicros(micros int64) Amount {
	return Amount(micros)
}

func FromUnits(units int64) Amount {
	return Amount(units * scale)
}

func (a Amount) Micros() int64 {
	return int64(a)
}

// Parse reads a non-negative decimal string such as "5", "5.0" or "0.000001".
// A leading "$" is tolerated.
func Parse(s string) (Amount, error) {
	cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if cleaned == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(cleaned, "-") {
		return 0, ErrNegativeAmount
	}
	cleaned = strings.TrimPrefix(cleaned, "+")

	whole, frac, hasFrac := strings.Cut(cleaned, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, ErrInvalidAmount
	}
	if !digits(whole) || !digits(frac) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	if whole == "" {
		whole = "0"
	}
	if hasFrac {
		frac = strings.TrimRight(frac, "0")
	}
	if len(frac) > Decimals {
		return 0, ErrTooPrecise
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	if units > math.MaxInt64/scale {
		return 0, fmt.Errorf("%w: %s overflows", ErrInvalidAmount, s)
	}

	var fracMicros int64
	if frac != "" {
		padded := frac + strings.Repeat("0", Decimals-len(frac))
		fracMicros, err = strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
		}
	}

	return Amount(units*scale + fracMicros), nil
}

// digits reports whether s holds ASCII digits only. ParseInt alone would let
// a sign through.
func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String always renders six fractional digits, e.g. "5.000000".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%06d", sign, v/scale, v%scale)
}

func (a Amount) Add(b Amount) Amount {
	return a + b
}

// ToUnits converts the amount to a token's smallest unit for a mint with
// the given number of decimals, rounding half up when precision is lost.
func (a Amount) ToUnits(decimals int) uint64 {
	if a <= 0 {
		return 0
	}
	v := uint64(a)
	switch {
	case decimals == Decimals:
		return v
	case decimals > Decimals:
		return v * pow10(decimals-Decimals)
	default:
		div := pow10(Decimals - decimals)
		return (v + div/2) / div
	}
}

func pow10(n int) uint64 {
	out := uint64(1)
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if strings.ContainsAny(raw, "eE") {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidAmount, raw)
		}
		raw = strconv.FormatFloat(f, 'f', Decimals, 64)
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
