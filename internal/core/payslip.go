package core

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// Statutory rates applied to the remaining base amount.
var (
	RatePension       = decimal.NewFromFloat(0.065)
	RateFiringPayment = decimal.NewFromFloat(0.0833)
	RateBituahLeumi   = decimal.NewFromFloat(0.036)
)

// Breakdown is the computed monthly payslip. All figures derive from
// the base amount and the month's Shevah coverage total; nothing here
// is persisted.
type Breakdown struct {
	BaseAmount    decimal.Decimal
	ShevahTotal   decimal.Decimal
	RemainingBase decimal.Decimal
	Pension       decimal.Decimal
	FiringPayment decimal.Decimal
	BituahLeumi   decimal.Decimal
	MonthlyTotal  decimal.Decimal
}

// ComputeBreakdown applies the statutory rates to the base amount net
// of Shevah coverage. The remaining base is not clamped: heavy coverage
// can push it, and the total, negative.
func ComputeBreakdown(baseAmount, shevahTotal decimal.Decimal) Breakdown {
	remaining := baseAmount.Sub(shevahTotal)
	pension := remaining.Mul(RatePension)
	firing := remaining.Mul(RateFiringPayment)
	bituah := remaining.Mul(RateBituahLeumi)
	return Breakdown{
		BaseAmount:    baseAmount,
		ShevahTotal:   shevahTotal,
		RemainingBase: remaining,
		Pension:       pension,
		FiringPayment: firing,
		BituahLeumi:   bituah,
		MonthlyTotal:  remaining.Add(pension).Add(firing).Add(bituah),
	}
}

// ShevahTotal sums hours times hourly rate over a month's coverage rows.
func ShevahTotal(rows []ShevahRow) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(decimal.NewFromFloat(r.Hours).Mul(decimal.NewFromFloat(r.AmountPerHour)))
	}
	return total
}

// BaseAmountFor resolves the base amount for a month, preferring a
// per-calendar-year override when one is configured.
func BaseAmountFor(monthKey string, base float64, yearlyOverrides map[string]float64) decimal.Decimal {
	if len(monthKey) >= 4 {
		if v, ok := yearlyOverrides[monthKey[:4]]; ok && v != 0 {
			return decimal.NewFromFloat(v)
		}
	}
	return decimal.NewFromFloat(base)
}

// OneTimePayment is a monthly payable derived from a chargeable
// activity occurrence.
type OneTimePayment struct {
	ID     string          `json:"id"`
	Type   ActivityType    `json:"type"`
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// MonthlyOneTimePayments derives payable lines from the month's
// shabbat and pocket-money activities. Lines are keyed type_date, so
// duplicate same-day same-type activities collapse into a single
// charge. Types with a zero configured charge produce no line.
func MonthlyOneTimePayments(activities []Activity, charges ActivityCharges) []OneTimePayment {
	seen := make(map[string]bool)
	var payments []OneTimePayment
	for _, a := range activities {
		if a.Type != ActivityShabbat && a.Type != ActivityPocketMoney {
			continue
		}
		charge := charges[a.Type]
		if charge == 0 {
			continue
		}
		id := string(a.Type) + "_" + a.Date
		if seen[id] {
			continue
		}
		seen[id] = true
		payments = append(payments, OneTimePayment{
			ID:     id,
			Type:   a.Type,
			Date:   a.Date,
			Amount: decimal.NewFromFloat(charge),
		})
	}
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].Date != payments[j].Date {
			return payments[i].Date < payments[j].Date
		}
		return payments[i].ID < payments[j].ID
	})
	return payments
}

// Keys of the yearly one-time payment lines.
const (
	YearlyKeyMedicalInsurance = "medicalInsurance"
	YearlyKeyTaagidPayment    = "taagidPayment"
	YearlyKeyTaagidHandling   = "taagidHandling"
	YearlyKeyHavraa           = "havraa"
)

// YearlyPaymentLine is one payable of a contract year.
type YearlyPaymentLine struct {
	Key    string          `json:"key"`
	Amount decimal.Decimal `json:"amount"`
}

// HavraaTotal is the annual recreation allowance: amount per day times
// the number of days. Havraa is yearly-only and never part of the
// monthly total.
func HavraaTotal(set YearlyPaymentSet) decimal.Decimal {
	return decimal.NewFromFloat(set.HavraaAmountPerDay).Mul(decimal.NewFromFloat(set.HavraaDays))
}

// YearlyPaymentLines expands a payment set into its payable lines in a
// fixed display order.
func YearlyPaymentLines(set YearlyPaymentSet) []YearlyPaymentLine {
	return []YearlyPaymentLine{
		{Key: YearlyKeyMedicalInsurance, Amount: decimal.NewFromFloat(set.MedicalInsurance)},
		{Key: YearlyKeyTaagidPayment, Amount: decimal.NewFromFloat(set.TaagidPayment)},
		{Key: YearlyKeyTaagidHandling, Amount: decimal.NewFromFloat(set.TaagidHandling)},
		{Key: YearlyKeyHavraa, Amount: HavraaTotal(set)},
	}
}

// ExpectedExpenses is the advisory full-contract-year projection shown
// by the Settings calculator. Never persisted as a payable.
type ExpectedExpenses struct {
	YearlyBase              decimal.Decimal `json:"yearlyBase"`
	VacationDaysCost        decimal.Decimal `json:"vacationDaysCost"`
	HolidayVacationDaysCost decimal.Decimal `json:"holidayVacationDaysCost"`
	PocketMoneyCost         decimal.Decimal `json:"pocketMoneyCost"`
	ShabbatCost             decimal.Decimal `json:"shabbatCost"`
	YearlyOneTimeTotal      decimal.Decimal `json:"yearlyOneTimeTotal"`
	Total                   decimal.Decimal `json:"total"`
	Params                  CalcParams      `json:"calculationParams"`
}

// ComputeExpectedExpenses projects a worst-case contract year: zero
// Shevah coverage, every frequency parameter fully used, plus the
// yearly one-time payments with Havraa at amount-per-day times days.
func ComputeExpectedExpenses(base decimal.Decimal, charges ActivityCharges, set YearlyPaymentSet, params CalcParams) ExpectedExpenses {
	monthly := ComputeBreakdown(base, decimal.Zero).MonthlyTotal
	yearlyBase := monthly.Mul(decimal.NewFromInt(12))

	vacation := decimal.NewFromFloat(charges[ActivityVacationDay]).
		Mul(decimal.NewFromFloat(params.VacationDaysPerYear))
	holiday := decimal.NewFromFloat(charges[ActivityHolidayVacationDay]).
		Mul(decimal.NewFromFloat(params.HolidayVacationDaysPerYear))
	pocket := decimal.NewFromFloat(charges[ActivityPocketMoney]).
		Mul(decimal.NewFromFloat(params.PocketMoneyWeeksPerYear))
	shabbat := decimal.NewFromFloat(charges[ActivityShabbat]).
		Mul(decimal.NewFromFloat(params.ShabbatPerMonth)).
		Mul(decimal.NewFromFloat(params.ShabbatMonthsPerYear))

	oneTime := decimal.NewFromFloat(set.MedicalInsurance).
		Add(decimal.NewFromFloat(set.TaagidPayment)).
		Add(decimal.NewFromFloat(set.TaagidHandling)).
		Add(HavraaTotal(set))

	total := yearlyBase.Add(vacation).Add(holiday).Add(pocket).Add(shabbat).Add(oneTime)

	return ExpectedExpenses{
		YearlyBase:              yearlyBase,
		VacationDaysCost:        vacation,
		HolidayVacationDaysCost: holiday,
		PocketMoneyCost:         pocket,
		ShabbatCost:             shabbat,
		YearlyOneTimeTotal:      oneTime,
		Total:                   total,
		Params:                  params,
	}
}

// PaymentID builds the monthly one-time payment id for an activity
// occurrence.
func PaymentID(typ ActivityType, date string) string {
	return string(typ) + "_" + date
}

// FormatYearlyBaseKey converts a calendar year to the string key used
// by the yearlyBaseAmounts override map.
func FormatYearlyBaseKey(year int) string {
	return strconv.Itoa(year)
}
