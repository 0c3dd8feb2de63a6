package loan

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"coopledger/internal/money"
)

var (
	ErrUnknownMethod    = errors.New("unknown disbursement method")
	ErrUnknownFrequency = errors.New("unknown repayment frequency")
	ErrInvalidTerm      = errors.New("invalid loan term")
)

type DisbursementMethod string

const (
	MethodWalletTransfer DisbursementMethod = "wallet_transfer"
	MethodBankTransfer   DisbursementMethod = "bank_transfer"
	MethodCashPickup     DisbursementMethod = "cash_pickup"
	MethodMobileMoney    DisbursementMethod = "mobile_money"
	MethodCryptocurrency DisbursementMethod = "cryptocurrency"
	MethodDirectDeposit  DisbursementMethod = "direct_deposit"
	MethodCheck          DisbursementMethod = "check"
)

// MethodTerms is one row of the disbursement fee table. Fee bounds are in
// minor units; the percentage applies to the principal before clamping.
type MethodTerms struct {
	FeePercent   decimal.Decimal
	MinFeeMinor  int64
	MaxFeeMinor  int64
	BusinessDays int
	Instant      bool
}

var methodTerms = map[DisbursementMethod]MethodTerms{
	MethodWalletTransfer: {FeePercent: decimal.Zero, Instant: true},
	MethodBankTransfer:   {FeePercent: decimal.RequireFromString("1.5"), MinFeeMinor: 500, MaxFeeMinor: 5000, BusinessDays: 2},
	MethodCashPickup:     {FeePercent: decimal.RequireFromString("1"), MinFeeMinor: 200, MaxFeeMinor: 2000, BusinessDays: 1},
	MethodMobileMoney:    {FeePercent: decimal.RequireFromString("2"), MinFeeMinor: 100, MaxFeeMinor: 3000, Instant: true},
	MethodCryptocurrency: {FeePercent: decimal.RequireFromString("2.5"), MinFeeMinor: 1500, MaxFeeMinor: 50000, Instant: true},
	MethodDirectDeposit:  {FeePercent: decimal.RequireFromString("1"), MinFeeMinor: 300, MaxFeeMinor: 2500, BusinessDays: 1},
	MethodCheck:          {FeePercent: decimal.RequireFromString("0.5"), MinFeeMinor: 1000, MaxFeeMinor: 2500, BusinessDays: 5},
}

func TermsFor(method DisbursementMethod) (MethodTerms, error) {
	terms, ok := methodTerms[method]
	if !ok {
		return MethodTerms{}, ErrUnknownMethod
	}
	return terms, nil
}

// DisbursementFee computes the payout fee for a method: percentage of the
// amount clamped to the method's minimum and maximum.
func DisbursementFee(method DisbursementMethod, amount money.Money) (money.Money, error) {
	terms, ok := methodTerms[method]
	if !ok {
		return money.Money{}, ErrUnknownMethod
	}
	fee := amount.Percent(terms.FeePercent)
	if fee.AmountMinor < terms.MinFeeMinor {
		fee.AmountMinor = terms.MinFeeMinor
	}
	if terms.MaxFeeMinor > 0 && fee.AmountMinor > terms.MaxFeeMinor {
		fee.AmountMinor = terms.MaxFeeMinor
	}
	return fee, nil
}

// EstimatedDelivery adds the method's business-day count to the disbursement
// date, skipping Saturdays and Sundays one calendar day at a time. Instant
// methods deliver on the disbursement date itself.
func EstimatedDelivery(method DisbursementMethod, disbursed time.Time) (time.Time, error) {
	terms, ok := methodTerms[method]
	if !ok {
		return time.Time{}, ErrUnknownMethod
	}
	date := disbursed
	remaining := terms.BusinessDays
	for remaining > 0 {
		date = date.AddDate(0, 0, 1)
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			continue
		}
		remaining--
	}
	return date, nil
}

type Frequency string

const (
	FrequencyWeekly       Frequency = "weekly"
	FrequencyBiWeekly     Frequency = "bi_weekly"
	FrequencyMonthly      Frequency = "monthly"
	FrequencyQuarterly    Frequency = "quarterly"
	FrequencySemiAnnually Frequency = "semi_annually"
	FrequencyAnnually     Frequency = "annually"
	FrequencyLumpSum      Frequency = "lump_sum"
)

type frequencyTerms struct {
	paymentsPerYear int64
	intervalDays    int
}

var frequencies = map[Frequency]frequencyTerms{
	FrequencyWeekly:       {52, 7},
	FrequencyBiWeekly:     {26, 14},
	FrequencyMonthly:      {12, 30},
	FrequencyQuarterly:    {4, 90},
	FrequencySemiAnnually: {2, 182},
	FrequencyAnnually:     {1, 365},
	FrequencyLumpSum:      {1, 0},
}

func ValidFrequency(frequency Frequency) bool {
	_, ok := frequencies[frequency]
	return ok
}

type AmortizationPolicy string

const (
	EqualInstallment AmortizationPolicy = "equal_installment"
	EqualPrincipal   AmortizationPolicy = "equal_principal"
)

// Installment is one line of a repayment schedule. AmountDue is always
// PrincipalPortion + InterestPortion.
type Installment struct {
	Number           int
	AmountDue        money.Money
	PrincipalPortion money.Money
	InterestPortion  money.Money
	DueDate          time.Time
}

type ScheduleRequest struct {
	Principal         money.Money
	AnnualRatePercent decimal.Decimal
	TermMonths        int
	Frequency         Frequency
	Policy            AmortizationPolicy
	StartDate         time.Time
}

// RepaymentSchedule generates the full installment plan for a loan. The
// installment count follows the 30-day-month rule, ceil(termMonths*30 /
// intervalDays). A lump-sum loan is a single installment due at startDate
// plus the term; the upstream behavior of always using twelve months ignored
// the term and is not reproduced here.
func RepaymentSchedule(req ScheduleRequest) ([]Installment, error) {
	freq, ok := frequencies[req.Frequency]
	if !ok {
		return nil, ErrUnknownFrequency
	}
	if req.TermMonths <= 0 || !req.Principal.IsPositive() {
		return nil, ErrInvalidTerm
	}

	if req.Frequency == FrequencyLumpSum {
		due := req.StartDate.AddDate(0, req.TermMonths, 0)
		termYears := decimal.NewFromInt(int64(req.TermMonths)).Div(decimal.NewFromInt(12))
		interest := req.Principal.Percent(req.AnnualRatePercent.Mul(termYears))
		total, err := req.Principal.Add(interest)
		if err != nil {
			return nil, err
		}
		return []Installment{{
			Number:           1,
			AmountDue:        total,
			PrincipalPortion: req.Principal,
			InterestPortion:  interest,
			DueDate:          due,
		}}, nil
	}

	count := (req.TermMonths*30 + freq.intervalDays - 1) / freq.intervalDays
	periodicRate := req.AnnualRatePercent.
		Div(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(freq.paymentsPerYear))

	switch req.Policy {
	case EqualPrincipal:
		return equalPrincipalSchedule(req, count, freq.intervalDays, periodicRate)
	case EqualInstallment, "":
		return equalInstallmentSchedule(req, count, freq.intervalDays, periodicRate)
	default:
		return equalInstallmentSchedule(req, count, freq.intervalDays, periodicRate)
	}
}

func equalInstallmentSchedule(req ScheduleRequest, count, intervalDays int, rate decimal.Decimal) ([]Installment, error) {
	principal := decimal.NewFromInt(req.Principal.AmountMinor)
	var payment decimal.Decimal
	if rate.IsZero() {
		payment = principal.Div(decimal.NewFromInt(int64(count)))
	} else {
		// Annuity formula: P·r / (1 - (1+r)^-n).
		onePlus := decimal.NewFromInt(1).Add(rate)
		compound := onePlus.Pow(decimal.NewFromInt(int64(count)))
		payment = principal.Mul(rate).Mul(compound).Div(compound.Sub(decimal.NewFromInt(1)))
	}

	schedule := make([]Installment, 0, count)
	remaining := req.Principal.AmountMinor
	for i := 1; i <= count; i++ {
		interestMinor := decimal.NewFromInt(remaining).Mul(rate).RoundBank(0).IntPart()
		principalMinor := payment.RoundBank(0).IntPart() - interestMinor
		if i == count || principalMinor > remaining {
			// Final installment absorbs rounding drift so the principal
			// portions sum exactly to the principal.
			principalMinor = remaining
		}
		remaining -= principalMinor
		schedule = append(schedule, Installment{
			Number:           i,
			AmountDue:        money.New(principalMinor+interestMinor, req.Principal.Currency),
			PrincipalPortion: money.New(principalMinor, req.Principal.Currency),
			InterestPortion:  money.New(interestMinor, req.Principal.Currency),
			DueDate:          req.StartDate.AddDate(0, 0, (i-1)*intervalDays),
		})
	}
	return schedule, nil
}

func equalPrincipalSchedule(req ScheduleRequest, count, intervalDays int, rate decimal.Decimal) ([]Installment, error) {
	base := req.Principal.AmountMinor / int64(count)
	schedule := make([]Installment, 0, count)
	remaining := req.Principal.AmountMinor
	for i := 1; i <= count; i++ {
		principalMinor := base
		if i == count {
			principalMinor = remaining
		}
		interestMinor := decimal.NewFromInt(remaining).Mul(rate).RoundBank(0).IntPart()
		remaining -= principalMinor
		schedule = append(schedule, Installment{
			Number:           i,
			AmountDue:        money.New(principalMinor+interestMinor, req.Principal.Currency),
			PrincipalPortion: money.New(principalMinor, req.Principal.Currency),
			InterestPortion:  money.New(interestMinor, req.Principal.Currency),
			DueDate:          req.StartDate.AddDate(0, 0, (i-1)*intervalDays),
		})
	}
	return schedule, nil
}
