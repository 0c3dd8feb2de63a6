package loan

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"coopledger/internal/money"
)

func TestDisbursementFeeClampsToMinimum(t *testing.T) {
	// 1.5% of 100.00 is 1.50, below the 5.00 floor.
	fee, err := DisbursementFee(MethodBankTransfer, money.New(10000, "USD"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee.AmountMinor != 500 {
		t.Fatalf("expected 500, got %d", fee.AmountMinor)
	}
}

func TestDisbursementFeeClampsToMaximum(t *testing.T) {
	// 1.5% of 10000.00 is 150.00, above the 50.00 cap.
	fee, err := DisbursementFee(MethodBankTransfer, money.New(1000000, "USD"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee.AmountMinor != 5000 {
		t.Fatalf("expected 5000, got %d", fee.AmountMinor)
	}
}

func TestDisbursementFeeWalletTransferIsFree(t *testing.T) {
	fee, err := DisbursementFee(MethodWalletTransfer, money.New(123456, "USD"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee.AmountMinor != 0 {
		t.Fatalf("expected 0, got %d", fee.AmountMinor)
	}
}

func TestDisbursementFeeUnknownMethod(t *testing.T) {
	if _, err := DisbursementFee("carrier_pigeon", money.New(100, "USD")); err != ErrUnknownMethod {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
}

func TestEstimatedDeliverySkipsWeekends(t *testing.T) {
	// Friday 2026-01-02 plus 2 business days lands on Tuesday.
	friday := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	delivery, err := EstimatedDelivery(MethodBankTransfer, friday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	if !delivery.Equal(want) {
		t.Fatalf("expected %s, got %s", want, delivery)
	}
}

func TestEstimatedDeliveryInstantMethod(t *testing.T) {
	now := time.Date(2026, 1, 3, 12, 0, 0, 0, time.UTC)
	delivery, err := EstimatedDelivery(MethodWalletTransfer, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !delivery.Equal(now) {
		t.Fatalf("instant method must deliver same day, got %s", delivery)
	}
}

func TestRepaymentScheduleMonthlyCount(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	schedule, err := RepaymentSchedule(ScheduleRequest{
		Principal:         money.New(120000, "USD"),
		AnnualRatePercent: decimal.RequireFromString("5"),
		TermMonths:        12,
		Frequency:         FrequencyMonthly,
		StartDate:         start,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schedule) != 12 {
		t.Fatalf("expected 12 installments, got %d", len(schedule))
	}
	if !schedule[0].DueDate.Equal(start) {
		t.Fatalf("first due date must be the start date, got %s", schedule[0].DueDate)
	}
	lastWant := start.AddDate(0, 0, 11*30)
	if !schedule[11].DueDate.Equal(lastWant) {
		t.Fatalf("expected last due %s, got %s", lastWant, schedule[11].DueDate)
	}
}

func TestRepaymentSchedulePrincipalConservation(t *testing.T) {
	schedule, err := RepaymentSchedule(ScheduleRequest{
		Principal:         money.New(100001, "USD"),
		AnnualRatePercent: decimal.RequireFromString("12"),
		TermMonths:        6,
		Frequency:         FrequencyMonthly,
		StartDate:         time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var principalSum int64
	for _, installment := range schedule {
		principalSum += installment.PrincipalPortion.AmountMinor
		if installment.AmountDue.AmountMinor != installment.PrincipalPortion.AmountMinor+installment.InterestPortion.AmountMinor {
			t.Fatalf("installment %d total does not match its split", installment.Number)
		}
	}
	if principalSum != 100001 {
		t.Fatalf("principal portions sum to %d, want 100001", principalSum)
	}
}

func TestRepaymentScheduleWeeklyCount(t *testing.T) {
	schedule, err := RepaymentSchedule(ScheduleRequest{
		Principal:         money.New(50000, "USD"),
		AnnualRatePercent: decimal.Zero,
		TermMonths:        3,
		Frequency:         FrequencyWeekly,
		StartDate:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// ceil(3*30/7) = 13.
	if len(schedule) != 13 {
		t.Fatalf("expected 13 installments, got %d", len(schedule))
	}
}

func TestRepaymentScheduleLumpSumUsesTerm(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	schedule, err := RepaymentSchedule(ScheduleRequest{
		Principal:         money.New(100000, "USD"),
		AnnualRatePercent: decimal.RequireFromString("10"),
		TermMonths:        6,
		Frequency:         FrequencyLumpSum,
		StartDate:         start,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schedule) != 1 {
		t.Fatalf("expected 1 installment, got %d", len(schedule))
	}
	want := start.AddDate(0, 6, 0)
	if !schedule[0].DueDate.Equal(want) {
		t.Fatalf("lump sum due date must follow the term: want %s, got %s", want, schedule[0].DueDate)
	}
	// Half a year at 10% on 1000.00 is 50.00 interest.
	if schedule[0].InterestPortion.AmountMinor != 5000 {
		t.Fatalf("expected 5000 interest, got %d", schedule[0].InterestPortion.AmountMinor)
	}
}

func TestRepaymentScheduleEqualPrincipal(t *testing.T) {
	schedule, err := RepaymentSchedule(ScheduleRequest{
		Principal:         money.New(90000, "USD"),
		AnnualRatePercent: decimal.RequireFromString("12"),
		TermMonths:        3,
		Frequency:         FrequencyMonthly,
		Policy:            EqualPrincipal,
		StartDate:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schedule) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(schedule))
	}
	for _, installment := range schedule {
		if installment.PrincipalPortion.AmountMinor != 30000 {
			t.Fatalf("installment %d principal = %d, want 30000", installment.Number, installment.PrincipalPortion.AmountMinor)
		}
	}
	// Interest declines with the outstanding balance.
	if schedule[0].InterestPortion.AmountMinor <= schedule[2].InterestPortion.AmountMinor {
		t.Fatalf("interest must decline across installments")
	}
}

func TestRepaymentScheduleRejectsBadInput(t *testing.T) {
	if _, err := RepaymentSchedule(ScheduleRequest{
		Principal:  money.New(1000, "USD"),
		TermMonths: 12,
		Frequency:  "fortnightly",
	}); err != ErrUnknownFrequency {
		t.Fatalf("expected ErrUnknownFrequency, got %v", err)
	}
	if _, err := RepaymentSchedule(ScheduleRequest{
		Principal:  money.New(0, "USD"),
		TermMonths: 12,
		Frequency:  FrequencyMonthly,
	}); err != ErrInvalidTerm {
		t.Fatalf("expected ErrInvalidTerm, got %v", err)
	}
}
