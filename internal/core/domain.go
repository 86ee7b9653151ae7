package core

import (
	"errors"
	"strings"
	"time"
)

const (
	RoleAdmin     Role = "admin"
	RoleCaretaker Role = "caretaker"
)

const (
	ActivityVacationDay        ActivityType = "vacationDay"
	ActivitySickDay            ActivityType = "sickDay"
	ActivityShabbat            ActivityType = "shabbat"
	ActivityPocketMoney        ActivityType = "pocketMoney"
	ActivityHospitalVisit      ActivityType = "hospitalVisit"
	ActivityHolidayVacationDay ActivityType = "holidayVacationDay"
)

const (
	StatusPending PaymentStatus = "pending"
	StatusPartial PaymentStatus = "partial"
	StatusPaid    PaymentStatus = "paid"
)

// DateLayout is the wire format for activity and contract dates.
const DateLayout = "2006-01-02"

type (
	Role          string
	ActivityType  string
	PaymentStatus string

	// Activity is a single dated worklog entry. Activities are grouped
	// by month key in the Worklog collection.
	Activity struct {
		ID   int64        `json:"id"`
		Type ActivityType `json:"type"`
		Date string       `json:"date"`
	}

	// Worklog buckets activities by month key (YYYY-MM). An activity
	// belongs to exactly one bucket, determined by its date.
	Worklog map[string][]Activity

	// ShevahRow is one line of third-party-funded coverage for a month.
	// Its monetary contribution is hours times amount per hour.
	ShevahRow struct {
		ID            int64   `json:"id"`
		Hours         float64 `json:"hours"`
		AmountPerHour float64 `json:"amountPerHour"`
	}

	// ShevahCoverage holds coverage rows per month key.
	ShevahCoverage map[string][]ShevahRow

	ElderFinancialEntry struct {
		ID     int64   `json:"id"`
		Name   string  `json:"name"`
		Amount float64 `json:"amount"`
	}

	// ElderExpenseEntry is either an amount entry or an hours entry,
	// discriminated by Type. The unused field stays nil.
	ElderExpenseEntry struct {
		ID     int64    `json:"id"`
		Name   string   `json:"name"`
		Type   string   `json:"type"`
		Amount *float64 `json:"amount"`
		Hours  *float64 `json:"hours"`
	}

	ElderFinancials map[string][]ElderFinancialEntry
	ElderExpenses   map[string][]ElderExpenseEntry

	// Payslip is the per-month payment record. Maps are created lazily
	// on first write; a zero Payslip is valid and means "nothing paid,
	// nothing recorded yet".
	//
	// Yearly payment statuses live inside whichever month's record was
	// on screen when the status changed. That placement is load-bearing
	// for stored data and is kept as-is.
	Payslip struct {
		PaymentStatus             PaymentStatus                       `json:"paymentStatus,omitempty"`
		MonthlyPaidAmount         float64                             `json:"monthlyPaidAmount,omitempty"`
		MonthlyPaymentStatuses    map[string]PaymentStatus            `json:"monthlyPaymentStatuses,omitempty"`
		MonthlyPaymentPaidAmounts map[string]float64                  `json:"monthlyPaymentPaidAmounts,omitempty"`
		YearlyPaymentStatuses     map[string]map[string]PaymentStatus `json:"yearlyPaymentStatuses,omitempty"`
		YearlyPaymentPaidAmounts  map[string]map[string]float64       `json:"yearlyPaymentPaidAmounts,omitempty"`
	}

	// Payslips is the stored collection, one record per month key.
	Payslips map[string]*Payslip

	// YearlyPaymentSet holds the one-time payments of a contract year.
	YearlyPaymentSet struct {
		MedicalInsurance   float64 `json:"medicalInsurance"`
		TaagidPayment      float64 `json:"taagidPayment"`
		TaagidHandling     float64 `json:"taagidHandling"`
		HavraaAmountPerDay float64 `json:"havraaAmountPerDay"`
		HavraaDays         float64 `json:"havraaDays"`
	}

	// YearlyPayments maps contract-year keys (year_N) to payment sets.
	YearlyPayments map[string]YearlyPaymentSet

	// ActivityCharges maps an activity type to its flat charge.
	ActivityCharges map[ActivityType]float64

	// CalcParams are the frequency knobs of the expected-expenses
	// projection. All editable in Settings.
	CalcParams struct {
		VacationDaysPerYear        float64 `json:"vacationDaysPerYear"`
		HolidayVacationDaysPerYear float64 `json:"holidayVacationDaysPerYear"`
		PocketMoneyWeeksPerYear    float64 `json:"pocketMoneyWeeksPerYear"`
		ShabbatPerMonth            float64 `json:"shabbatPerMonth"`
		ShabbatMonthsPerYear       float64 `json:"shabbatMonthsPerYear"`
	}
)

var (
	ErrInvalidActivityType = errors.New("invalid activity type")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidStatus       = errors.New("invalid payment status")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyName           = errors.New("empty name")
)

// DefaultMonthlyBaseAmount is used until a family configures its own.
const DefaultMonthlyBaseAmount = 6250.0

func DefaultActivityCharges() ActivityCharges {
	return ActivityCharges{
		ActivityVacationDay:        250,
		ActivitySickDay:            0,
		ActivityShabbat:            426.4,
		ActivityPocketMoney:        100,
		ActivityHospitalVisit:      0,
		ActivityHolidayVacationDay: 426.4,
	}
}

func DefaultYearlyPaymentSet() YearlyPaymentSet {
	return YearlyPaymentSet{
		MedicalInsurance:   0,
		TaagidPayment:      2000,
		TaagidHandling:     840,
		HavraaAmountPerDay: 174,
		HavraaDays:         5,
	}
}

func DefaultCalcParams() CalcParams {
	return CalcParams{
		VacationDaysPerYear:        12,
		HolidayVacationDaysPerYear: 12,
		PocketMoneyWeeksPerYear:    52,
		ShabbatPerMonth:            3,
		ShabbatMonthsPerYear:       12,
	}
}

func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleCaretaker
}

func ValidStatus(s PaymentStatus) bool {
	switch s {
	case StatusPending, StatusPartial, StatusPaid:
		return true
	}
	return false
}

func ValidActivityType(t ActivityType) bool {
	switch t {
	case ActivityVacationDay, ActivitySickDay, ActivityShabbat,
		ActivityPocketMoney, ActivityHospitalVisit, ActivityHolidayVacationDay:
		return true
	}
	return false
}

func (a Activity) Validate() error {
	if !ValidActivityType(a.Type) {
		return ErrInvalidActivityType
	}
	if _, err := time.Parse(DateLayout, a.Date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

func (r ShevahRow) Validate() error {
	if r.Hours < 0 || r.AmountPerHour < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e ElderFinancialEntry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (e ElderExpenseEntry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if e.Type != "amount" && e.Type != "hours" {
		return errors.New("entry type must be amount or hours")
	}
	return nil
}

// SetMonthlyStatus updates the monthly payment status. A transition to
// anything other than partial resets the paid amount.
func (p *Payslip) SetMonthlyStatus(status PaymentStatus) {
	p.PaymentStatus = status
	if status != StatusPartial {
		p.MonthlyPaidAmount = 0
	}
}

func (p *Payslip) SetMonthlyPaidAmount(amount float64) {
	p.MonthlyPaidAmount = amount
}

// SetPaymentStatus updates the status of a monthly one-time payment,
// identified by its type_date payment id.
func (p *Payslip) SetPaymentStatus(paymentID string, status PaymentStatus) {
	if p.MonthlyPaymentStatuses == nil {
		p.MonthlyPaymentStatuses = make(map[string]PaymentStatus)
	}
	if p.MonthlyPaymentPaidAmounts == nil {
		p.MonthlyPaymentPaidAmounts = make(map[string]float64)
	}
	p.MonthlyPaymentStatuses[paymentID] = status
	if status != StatusPartial {
		p.MonthlyPaymentPaidAmounts[paymentID] = 0
	}
}

func (p *Payslip) SetPaymentPaidAmount(paymentID string, amount float64) {
	if p.MonthlyPaymentPaidAmounts == nil {
		p.MonthlyPaymentPaidAmounts = make(map[string]float64)
	}
	p.MonthlyPaymentPaidAmounts[paymentID] = amount
}

// SetYearlyStatus updates the status of a yearly one-time payment for
// the given contract-year key.
func (p *Payslip) SetYearlyStatus(yearKey, paymentKey string, status PaymentStatus) {
	if p.YearlyPaymentStatuses == nil {
		p.YearlyPaymentStatuses = make(map[string]map[string]PaymentStatus)
	}
	if p.YearlyPaymentStatuses[yearKey] == nil {
		p.YearlyPaymentStatuses[yearKey] = make(map[string]PaymentStatus)
	}
	if p.YearlyPaymentPaidAmounts == nil {
		p.YearlyPaymentPaidAmounts = make(map[string]map[string]float64)
	}
	if p.YearlyPaymentPaidAmounts[yearKey] == nil {
		p.YearlyPaymentPaidAmounts[yearKey] = make(map[string]float64)
	}
	p.YearlyPaymentStatuses[yearKey][paymentKey] = status
	if status != StatusPartial {
		p.YearlyPaymentPaidAmounts[yearKey][paymentKey] = 0
	}
}

func (p *Payslip) SetYearlyPaidAmount(yearKey, paymentKey string, amount float64) {
	if p.YearlyPaymentPaidAmounts == nil {
		p.YearlyPaymentPaidAmounts = make(map[string]map[string]float64)
	}
	if p.YearlyPaymentPaidAmounts[yearKey] == nil {
		p.YearlyPaymentPaidAmounts[yearKey] = make(map[string]float64)
	}
	p.YearlyPaymentPaidAmounts[yearKey][paymentKey] = amount
}

// NormalizeYearlyPayments converts raw stored yearly payment sets into
// typed ones, stripping the legacy bituahLeumi field that older data
// carried before that deduction moved into the monthly payslip. It
// reports whether anything was stripped so callers can persist the
// cleaned form once instead of re-stripping on every read.
func NormalizeYearlyPayments(raw map[string]map[string]float64) (YearlyPayments, bool) {
	out := make(YearlyPayments, len(raw))
	changed := false
	for yearKey, fields := range raw {
		if _, ok := fields["bituahLeumi"]; ok {
			changed = true
		}
		out[yearKey] = YearlyPaymentSet{
			MedicalInsurance:   fields["medicalInsurance"],
			TaagidPayment:      fields["taagidPayment"],
			TaagidHandling:     fields["taagidHandling"],
			HavraaAmountPerDay: fields["havraaAmountPerDay"],
			HavraaDays:         fields["havraaDays"],
		}
	}
	return out, changed
}
