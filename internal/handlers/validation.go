package handlers

import (
	"errors"
	"strconv"

	"coopledger/internal/money"

	"github.com/shopspring/decimal"
)

var errInvalidAmount = errors.New("invalid amount")
var errInvalidQuantity = errors.New("invalid quantity")
var errInvalidRate = errors.New("invalid rate")

func parseAmountMinor(raw string) (int64, error) {
	amount, err := money.ParseMinor(raw)
	if err != nil || amount <= 0 {
		return 0, errInvalidAmount
	}
	return amount, nil
}

func parseQuantity(raw int64) (int64, error) {
	if raw <= 0 {
		return 0, errInvalidQuantity
	}
	return raw, nil
}

// parseRatePercent accepts an annual interest rate such as "12.5". Anything
// below zero or finer than basis points is rejected.
func parseRatePercent(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(raw)
	if err != nil || rate.IsNegative() {
		return decimal.Zero, errInvalidRate
	}
	if rate.Exponent() < -4 {
		return decimal.Zero, errInvalidRate
	}
	return rate, nil
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
