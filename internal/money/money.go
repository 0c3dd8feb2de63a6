package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrTooManyDecimals  = errors.New("amount has too many decimal places")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrNegativeResult   = errors.New("operation would produce a negative amount")
)

// Money is an exact amount in minor units (e.g. cents) of a single currency.
// All arithmetic is integer arithmetic; fractional intermediate values only
// ever appear inside Percent, which rounds back to minor units explicitly.
type Money struct {
	AmountMinor int64
	Currency    string
}

func New(amountMinor int64, currency string) Money {
	return Money{AmountMinor: amountMinor, Currency: currency}
}

func Zero(currency string) Money {
	return Money{Currency: currency}
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{AmountMinor: m.AmountMinor + other.AmountMinor, Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{AmountMinor: m.AmountMinor - other.AmountMinor, Currency: m.Currency}, nil
}

// SubChecked is Sub with a non-negative result guarantee, used by balance
// mutations that are not allowed to overdraw.
func (m Money) SubChecked(other Money) (Money, error) {
	result, err := m.Sub(other)
	if err != nil {
		return Money{}, err
	}
	if result.AmountMinor < 0 {
		return Money{}, ErrNegativeResult
	}
	return result, nil
}

func (m Money) MulInt(factor int64) Money {
	return Money{AmountMinor: m.AmountMinor * factor, Currency: m.Currency}
}

// Percent returns the given percentage of the amount, rounded to minor units
// with banker's rounding. Percentage math is the only place decimals enter the
// money path.
func (m Money) Percent(percentage decimal.Decimal) Money {
	value := decimal.NewFromInt(m.AmountMinor).Mul(percentage).Div(decimal.NewFromInt(100))
	return Money{AmountMinor: value.RoundBank(0).IntPart(), Currency: m.Currency}
}

func (m Money) IsPositive() bool {
	return m.AmountMinor > 0
}

func (m Money) IsNegative() bool {
	return m.AmountMinor < 0
}

func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.AmountMinor == other.AmountMinor
}

func (m Money) LessThan(other Money) (bool, error) {
	if m.Currency != other.Currency {
		return false, ErrCurrencyMismatch
	}
	return m.AmountMinor < other.AmountMinor, nil
}

func (m Money) String() string {
	return FormatMinor(m.AmountMinor) + " " + m.Currency
}

func ParseMinor(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	sign := int64(1)
	switch trimmed[0] {
	case '-':
		sign = -1
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}
	parts := strings.SplitN(trimmed, ".", 2)
	wholePart := parts[0]
	if wholePart == "" {
		wholePart = "0"
	}
	if !isDigits(wholePart) {
		return 0, ErrInvalidAmount
	}
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > 2 {
		return 0, ErrTooManyDecimals
	}
	if fracPart != "" && !isDigits(fracPart) {
		return 0, ErrInvalidAmount
	}
	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	frac := int64(0)
	if len(fracPart) == 1 {
		frac = int64(fracPart[0]-'0') * 10
	} else if len(fracPart) == 2 {
		value, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		frac = value
	}
	minor := whole*100 + frac
	return sign * minor, nil
}

func FormatMinor(value int64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	whole := value / 100
	frac := value % 100
	formatted := fmt.Sprintf("%d.%02d", whole, frac)
	if negative {
		return "-" + formatted
	}
	return formatted
}

func ValueToInt64(value interface{}) int64 {
	switch v := value.(type) {
	case nil:
		return 0
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case uint32:
		return int64(v)
	case []byte:
		parsed, _ := strconv.ParseInt(string(v), 10, 64)
		return parsed
	case string:
		parsed, _ := strconv.ParseInt(v, 10, 64)
		return parsed
	default:
		parsed, _ := strconv.ParseInt(fmt.Sprint(v), 10, 64)
		return parsed
	}
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
