package services

import (
	"context"
	"math"
	"testing"
	"time"

	"caretaker/internal/actionlog"
	"caretaker/internal/auth"
	"caretaker/internal/cache"
	"caretaker/internal/core"
	"caretaker/internal/ledger"
	"caretaker/internal/store"
)

type payslipFixture struct {
	stores   *store.Manager
	settings *SettingsService
	worklog  *ledger.Worklog
	shevah   *ledger.Shevah
	payslips *PayslipService
}

func newPayslipFixture(t *testing.T) *payslipFixture {
	t.Helper()
	stores := newTestStores(t, nil)
	settings := NewSettingsService(stores, nil)
	worklog := ledger.NewWorklog(stores, actionlog.NewLogger(stores, nil), nil)
	shevah := ledger.NewShevah(stores, nil)
	views := cache.New[MonthView](100, time.Minute)
	payslips := NewPayslipService(stores, settings, worklog, shevah, views, nil)

	if err := settings.Initialize(context.Background(), "fam1", "Cohen", "2024-01-15", 6250); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return &payslipFixture{
		stores:   stores,
		settings: settings,
		worklog:  worklog,
		shevah:   shevah,
		payslips: payslips,
	}
}

func famSession() auth.Session {
	return auth.Session{Token: "tok", Username: "rivka", FamilyID: "fam1", Role: core.RoleAdmin}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMonthViewBreakdown(t *testing.T) {
	f := newPayslipFixture(t)
	ctx := context.Background()

	view, err := f.payslips.Month(ctx, "fam1", "2025-02")
	if err != nil {
		t.Fatalf("Month: %v", err)
	}

	if !almostEqual(view.BaseAmount, 6250) {
		t.Errorf("base = %v", view.BaseAmount)
	}
	if !almostEqual(view.Pension, 406.25) {
		t.Errorf("pension = %v", view.Pension)
	}
	if !almostEqual(view.FiringPayment, 520.625) {
		t.Errorf("firing payment = %v", view.FiringPayment)
	}
	if !almostEqual(view.BituahLeumi, 225) {
		t.Errorf("bituah leumi = %v", view.BituahLeumi)
	}
	if !almostEqual(view.MonthlyTotal, 7401.875) {
		t.Errorf("monthly total = %v", view.MonthlyTotal)
	}
	if view.PaymentStatus != core.StatusPending {
		t.Errorf("status = %s", view.PaymentStatus)
	}

	// 2025-02 falls in the second contract year of a 2024-01-15 start.
	if view.YearKey != "year_1" || view.YearLabel != "Year 2" {
		t.Errorf("year = %s %s", view.YearKey, view.YearLabel)
	}
	if len(view.YearlyPayments) != 4 {
		t.Fatalf("yearly lines = %d", len(view.YearlyPayments))
	}
	for _, line := range view.YearlyPayments {
		if line.Key == core.YearlyKeyHavraa && !almostEqual(line.Amount, 870) {
			t.Errorf("havraa = %v", line.Amount)
		}
	}
}

func TestMonthViewShevahOffset(t *testing.T) {
	f := newPayslipFixture(t)
	ctx := context.Background()

	if _, err := f.shevah.Add(ctx, "fam1", "2025-02", 10, 40); err != nil {
		t.Fatalf("Add: %v", err)
	}

	view, err := f.payslips.Month(ctx, "fam1", "2025-02")
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	if !almostEqual(view.ShevahTotal, 400) || !almostEqual(view.RemainingBase, 5850) {
		t.Fatalf("shevah=%v remaining=%v", view.ShevahTotal, view.RemainingBase)
	}
}

func TestMonthViewOneTimePayments(t *testing.T) {
	f := newPayslipFixture(t)
	ctx := context.Background()
	sess := famSession()

	// Two same-day shabbat activities collapse into one payment line.
	_, _ = f.worklog.AddActivity(ctx, sess, core.ActivityShabbat, "2025-02-07")
	_, _ = f.worklog.AddActivity(ctx, sess, core.ActivityShabbat, "2025-02-07")
	_, _ = f.worklog.AddActivity(ctx, sess, core.ActivityPocketMoney, "2025-02-03")
	// Uncharged types never become payment lines.
	_, _ = f.worklog.AddActivity(ctx, sess, core.ActivitySickDay, "2025-02-05")

	view, err := f.payslips.Month(ctx, "fam1", "2025-02")
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	if len(view.OneTimePayments) != 2 {
		t.Fatalf("payment lines = %d", len(view.OneTimePayments))
	}
	// Sorted by date.
	if view.OneTimePayments[0].ID != "pocketMoney_2025-02-03" {
		t.Errorf("first line = %s", view.OneTimePayments[0].ID)
	}
	if view.OneTimePayments[1].ID != "shabbat_2025-02-07" || !almostEqual(view.OneTimePayments[1].Amount, 426.4) {
		t.Errorf("shabbat line = %+v", view.OneTimePayments[1])
	}
}

func TestStatusUpdatesAndCacheInvalidation(t *testing.T) {
	f := newPayslipFixture(t)
	ctx := context.Background()

	// Prime the cache.
	if _, err := f.payslips.Month(ctx, "fam1", "2025-02"); err != nil {
		t.Fatalf("Month: %v", err)
	}

	if err := f.payslips.SetMonthlyStatus(ctx, "fam1", "2025-02", core.StatusPartial); err != nil {
		t.Fatalf("SetMonthlyStatus: %v", err)
	}
	if err := f.payslips.SetMonthlyPaidAmount(ctx, "fam1", "2025-02", 3000); err != nil {
		t.Fatalf("SetMonthlyPaidAmount: %v", err)
	}

	view, err := f.payslips.Month(ctx, "fam1", "2025-02")
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	if view.PaymentStatus != core.StatusPartial || !almostEqual(view.MonthlyPaidAmount, 3000) {
		t.Fatalf("view = %s %v", view.PaymentStatus, view.MonthlyPaidAmount)
	}

	// Leaving partial resets the paid amount.
	if err := f.payslips.SetMonthlyStatus(ctx, "fam1", "2025-02", core.StatusPaid); err != nil {
		t.Fatalf("SetMonthlyStatus: %v", err)
	}
	view, _ = f.payslips.Month(ctx, "fam1", "2025-02")
	if view.PaymentStatus != core.StatusPaid || view.MonthlyPaidAmount != 0 {
		t.Fatalf("view after paid = %s %v", view.PaymentStatus, view.MonthlyPaidAmount)
	}

	if err := f.payslips.SetMonthlyStatus(ctx, "fam1", "2025-02", "settled"); err == nil {
		t.Fatal("invalid status accepted")
	}
}

func TestOneTimePaymentStatus(t *testing.T) {
	f := newPayslipFixture(t)
	ctx := context.Background()

	_, _ = f.worklog.AddActivity(ctx, famSession(), core.ActivityShabbat, "2025-02-07")
	paymentID := core.PaymentID(core.ActivityShabbat, "2025-02-07")

	if err := f.payslips.SetPaymentStatus(ctx, "fam1", "2025-02", paymentID, core.StatusPartial); err != nil {
		t.Fatalf("SetPaymentStatus: %v", err)
	}
	if err := f.payslips.SetPaymentPaidAmount(ctx, "fam1", "2025-02", paymentID, 200); err != nil {
		t.Fatalf("SetPaymentPaidAmount: %v", err)
	}

	view, err := f.payslips.Month(ctx, "fam1", "2025-02")
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	line := view.OneTimePayments[0]
	if line.Status != core.StatusPartial || !almostEqual(line.PaidAmount, 200) {
		t.Fatalf("line = %+v", line)
	}
}

func TestYearlyStatusLivesInViewedMonth(t *testing.T) {
	f := newPayslipFixture(t)
	ctx := context.Background()

	if err := f.payslips.SetYearlyStatus(ctx, "fam1", "2025-02", "year_1", core.YearlyKeyTaagidPayment, core.StatusPaid); err != nil {
		t.Fatalf("SetYearlyStatus: %v", err)
	}

	view, err := f.payslips.Month(ctx, "fam1", "2025-02")
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	var taagid *YearlyPaymentView
	for i := range view.YearlyPayments {
		if view.YearlyPayments[i].Key == core.YearlyKeyTaagidPayment {
			taagid = &view.YearlyPayments[i]
		}
	}
	if taagid == nil || taagid.Status != core.StatusPaid {
		t.Fatalf("taagid line = %+v", taagid)
	}

	// The status was written into the 2025-02 record. Viewing another
	// month of the same contract year does not see it; this mirrors
	// how the data has always been stored.
	other, err := f.payslips.Month(ctx, "fam1", "2025-03")
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	for _, line := range other.YearlyPayments {
		if line.Key == core.YearlyKeyTaagidPayment && line.Status != core.StatusPending {
			t.Fatalf("status leaked across months: %+v", line)
		}
	}
}

func TestMonthBeforeContractHasNoYear(t *testing.T) {
	f := newPayslipFixture(t)

	view, err := f.payslips.Month(context.Background(), "fam1", "2023-06")
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	if view.YearKey != "" || len(view.YearlyPayments) != 0 {
		t.Fatalf("pre-contract month got year %q", view.YearKey)
	}
}
