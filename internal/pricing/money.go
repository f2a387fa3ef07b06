package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPrice is returned when a price string holds no parseable amount.
var ErrInvalidPrice = errors.New("pricing: invalid price")

// Cents is a currency amount in integer cents.
type Cents int64

// ParsePrice parses strings like "$1,250.00" or "95" into cents. Every character
// other than digits and '.' is dropped first. A third decimal rounds half-up.
func ParsePrice(raw string) (Cents, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || strings.Count(cleaned, ".") > 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}

	whole, frac, _ := strings.Cut(cleaned, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	if whole == "" {
		whole = "0"
	}
	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}

	roundUp := false
	if len(frac) > 2 {
		roundUp = frac[2] >= '5'
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}

	total := dollars*100 + cents
	if roundUp {
		total++
	}
	return Cents(total), nil
}

// MustParsePrice is ParsePrice for static table data.
func MustParsePrice(raw string) Cents {
	c, err := ParsePrice(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// String renders the amount as "$1,234.50".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	dollars := strconv.FormatInt(v/100, 10)
	var grouped strings.Builder
	for i, r := range dollars {
		if i > 0 && (len(dollars)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, grouped.String(), v%100)
}
