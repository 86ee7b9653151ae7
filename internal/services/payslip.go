package services

import (
	"context"
	"fmt"
	"time"

	"caretaker/internal/cache"
	"caretaker/internal/core"
	"caretaker/internal/ledger"
	"caretaker/internal/log"
	"caretaker/internal/store"
)

const payslipsKey = "payslips"

// MonthView is the fully assembled payslip of one month: the computed
// breakdown, the payable lines derived from the worklog, and the
// persisted statuses layered on top. Figures are plain floats for the
// JSON surface.
type MonthView struct {
	MonthKey string `json:"monthKey"`

	BaseAmount    float64 `json:"baseAmount"`
	ShevahTotal   float64 `json:"shevahTotal"`
	RemainingBase float64 `json:"remainingBase"`
	Pension       float64 `json:"pension"`
	FiringPayment float64 `json:"firingPayment"`
	BituahLeumi   float64 `json:"bituahLeumi"`
	MonthlyTotal  float64 `json:"monthlyTotal"`

	PaymentStatus     core.PaymentStatus `json:"paymentStatus"`
	MonthlyPaidAmount float64            `json:"monthlyPaidAmount"`

	OneTimePayments []OneTimePaymentView `json:"oneTimePayments"`

	YearKey        string              `json:"yearKey"`
	YearLabel      string              `json:"yearLabel"`
	YearlyPayments []YearlyPaymentView `json:"yearlyPayments"`
}

// OneTimePaymentView is a monthly payable line with its status.
type OneTimePaymentView struct {
	ID         string             `json:"id"`
	Type       core.ActivityType  `json:"type"`
	Date       string             `json:"date"`
	Amount     float64            `json:"amount"`
	Status     core.PaymentStatus `json:"status"`
	PaidAmount float64            `json:"paidAmount"`
}

// YearlyPaymentView is a contract-year payable line with its status.
type YearlyPaymentView struct {
	Key        string             `json:"key"`
	Amount     float64            `json:"amount"`
	Status     core.PaymentStatus `json:"status"`
	PaidAmount float64            `json:"paidAmount"`
}

// PayslipService assembles month views and persists status changes.
// Views are memoized per family and month; any write drops the whole
// family's cached views.
type PayslipService struct {
	stores   *store.Manager
	settings *SettingsService
	worklog  *ledger.Worklog
	shevah   *ledger.Shevah
	views    *cache.Cache[MonthView]
	logger   *log.Logger
}

func NewPayslipService(stores *store.Manager, settings *SettingsService, worklog *ledger.Worklog, shevah *ledger.Shevah, views *cache.Cache[MonthView], logger *log.Logger) *PayslipService {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentPayslip)
	}
	return &PayslipService{
		stores:   stores,
		settings: settings,
		worklog:  worklog,
		shevah:   shevah,
		views:    views,
		logger:   logger,
	}
}

func viewCacheKey(familyID, monthKey string) string {
	return familyID + ":payslip:" + monthKey
}

// Month assembles the payslip view of one month.
func (p *PayslipService) Month(ctx context.Context, familyID, monthKey string) (MonthView, error) {
	if p.views != nil {
		if view, ok := p.views.Get(viewCacheKey(familyID, monthKey)); ok {
			return view, nil
		}
	}

	monthStart, err := core.ParseMonthKey(monthKey)
	if err != nil {
		return MonthView{}, err
	}

	settings, err := p.settings.Settings(ctx, familyID)
	if err != nil {
		return MonthView{}, err
	}
	charges, err := p.settings.Charges(ctx, familyID)
	if err != nil {
		return MonthView{}, err
	}

	shevahRows, err := p.shevah.Month(ctx, familyID, monthKey)
	if err != nil {
		return MonthView{}, err
	}
	activities, err := p.worklog.Month(ctx, familyID, monthKey)
	if err != nil {
		return MonthView{}, err
	}

	record, err := p.record(ctx, familyID, monthKey)
	if err != nil {
		return MonthView{}, err
	}

	base := core.BaseAmountFor(monthKey, settings.MonthlyBaseAmount, settings.YearlyBaseAmounts)
	breakdown := core.ComputeBreakdown(base, core.ShevahTotal(shevahRows))

	view := MonthView{
		MonthKey:          monthKey,
		BaseAmount:        core.Float(breakdown.BaseAmount),
		ShevahTotal:       core.Float(breakdown.ShevahTotal),
		RemainingBase:     core.Float(breakdown.RemainingBase),
		Pension:           core.Float(breakdown.Pension),
		FiringPayment:     core.Float(breakdown.FiringPayment),
		BituahLeumi:       core.Float(breakdown.BituahLeumi),
		MonthlyTotal:      core.Float(breakdown.MonthlyTotal),
		PaymentStatus:     core.StatusPending,
		MonthlyPaidAmount: record.MonthlyPaidAmount,
	}
	if record.PaymentStatus != "" {
		view.PaymentStatus = record.PaymentStatus
	}

	for _, payment := range core.MonthlyOneTimePayments(activities, charges) {
		line := OneTimePaymentView{
			ID:     payment.ID,
			Type:   payment.Type,
			Date:   payment.Date,
			Amount: core.Float(payment.Amount),
			Status: core.StatusPending,
		}
		if status, ok := record.MonthlyPaymentStatuses[payment.ID]; ok {
			line.Status = status
		}
		line.PaidAmount = record.MonthlyPaymentPaidAmounts[payment.ID]
		view.OneTimePayments = append(view.OneTimePayments, line)
	}

	if err := p.attachYearlyPayments(ctx, familyID, monthStart, record, &view); err != nil {
		return MonthView{}, err
	}

	if p.views != nil {
		p.views.Set(viewCacheKey(familyID, monthKey), view)
	}
	return view, nil
}

// attachYearlyPayments resolves the contract year the month falls in
// and layers the stored statuses over its payment lines. Statuses are
// read from the viewed month's record, which is where they were
// written; that placement is part of the stored data's shape.
func (p *PayslipService) attachYearlyPayments(ctx context.Context, familyID string, monthStart time.Time, record core.Payslip, view *MonthView) error {
	start, err := p.settings.ContractStart(ctx, familyID)
	if err != nil {
		// Without a contract start there is no contract year to show;
		// the monthly figures stand on their own.
		return nil
	}

	year := core.ContractYear(monthStart, start)
	if year < 0 {
		return nil
	}
	view.YearKey = core.ContractYearKey(year)
	view.YearLabel = fmt.Sprintf("Year %d", year+1)

	set, err := p.settings.YearlyPaymentSet(ctx, familyID, view.YearKey)
	if err != nil {
		return err
	}

	for _, line := range core.YearlyPaymentLines(set) {
		payment := YearlyPaymentView{
			Key:    line.Key,
			Amount: core.Float(line.Amount),
			Status: core.StatusPending,
		}
		if status, ok := record.YearlyPaymentStatuses[view.YearKey][line.Key]; ok {
			payment.Status = status
		}
		payment.PaidAmount = record.YearlyPaymentPaidAmounts[view.YearKey][line.Key]
		view.YearlyPayments = append(view.YearlyPayments, payment)
	}
	return nil
}

// SetMonthlyStatus updates the month's overall payment status.
func (p *PayslipService) SetMonthlyStatus(ctx context.Context, familyID, monthKey string, status core.PaymentStatus) error {
	if !core.ValidStatus(status) {
		return core.ErrInvalidStatus
	}
	return p.mutate(ctx, familyID, monthKey, func(record *core.Payslip) {
		record.SetMonthlyStatus(status)
	})
}

// SetMonthlyPaidAmount records a partial payment against the month.
func (p *PayslipService) SetMonthlyPaidAmount(ctx context.Context, familyID, monthKey string, amount float64) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}
	return p.mutate(ctx, familyID, monthKey, func(record *core.Payslip) {
		record.SetMonthlyPaidAmount(amount)
	})
}

// SetPaymentStatus updates one monthly one-time payment line.
func (p *PayslipService) SetPaymentStatus(ctx context.Context, familyID, monthKey, paymentID string, status core.PaymentStatus) error {
	if !core.ValidStatus(status) {
		return core.ErrInvalidStatus
	}
	return p.mutate(ctx, familyID, monthKey, func(record *core.Payslip) {
		record.SetPaymentStatus(paymentID, status)
	})
}

// SetPaymentPaidAmount records a partial payment against one monthly
// one-time payment line.
func (p *PayslipService) SetPaymentPaidAmount(ctx context.Context, familyID, monthKey, paymentID string, amount float64) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}
	return p.mutate(ctx, familyID, monthKey, func(record *core.Payslip) {
		record.SetPaymentPaidAmount(paymentID, amount)
	})
}

// SetYearlyStatus updates one contract-year payment line, stored in
// the currently viewed month's record.
func (p *PayslipService) SetYearlyStatus(ctx context.Context, familyID, monthKey, yearKey, paymentKey string, status core.PaymentStatus) error {
	if !core.ValidStatus(status) {
		return core.ErrInvalidStatus
	}
	return p.mutate(ctx, familyID, monthKey, func(record *core.Payslip) {
		record.SetYearlyStatus(yearKey, paymentKey, status)
	})
}

// SetYearlyPaidAmount records a partial payment against one
// contract-year payment line.
func (p *PayslipService) SetYearlyPaidAmount(ctx context.Context, familyID, monthKey, yearKey, paymentKey string, amount float64) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}
	return p.mutate(ctx, familyID, monthKey, func(record *core.Payslip) {
		record.SetYearlyPaidAmount(yearKey, paymentKey, amount)
	})
}

// InvalidateFamily drops the family's cached month views. Called by
// handlers after worklog, coverage or settings writes that feed the
// assembled view.
func (p *PayslipService) InvalidateFamily(familyID string) {
	if p.views != nil {
		p.views.DeletePrefix(familyID + ":")
	}
}

func (p *PayslipService) record(ctx context.Context, familyID, monthKey string) (core.Payslip, error) {
	payslips, err := store.Get(ctx, p.stores.Family(familyID), payslipsKey, core.Payslips{})
	if err != nil {
		return core.Payslip{}, err
	}
	if record := payslips[monthKey]; record != nil {
		return *record, nil
	}
	return core.Payslip{}, nil
}

func (p *PayslipService) mutate(ctx context.Context, familyID, monthKey string, apply func(*core.Payslip)) error {
	if _, err := core.ParseMonthKey(monthKey); err != nil {
		return err
	}

	fs := p.stores.Family(familyID)
	payslips, err := store.Get(ctx, fs, payslipsKey, core.Payslips{})
	if err != nil {
		return err
	}

	record := payslips[monthKey]
	if record == nil {
		record = &core.Payslip{}
		payslips[monthKey] = record
	}
	apply(record)

	if err := store.Set(ctx, fs, payslipsKey, payslips); err != nil {
		return err
	}

	p.InvalidateFamily(familyID)

	p.logger.InfoContext(ctx, "Updated payslip record",
		log.FieldOperation, log.OpUpdate,
		log.FieldFamilyID, familyID,
		log.FieldMonthKey, monthKey)
	return nil
}
