package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"caretaker/internal/backend"
	"caretaker/internal/core"
	"caretaker/internal/storage"
	"caretaker/internal/store"
)

func newTestStores(t *testing.T, be backend.Backend) *store.Manager {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return store.NewManager(repo, be, nil, nil)
}

func TestInitializeSeedsDefaults(t *testing.T) {
	stores := newTestStores(t, nil)
	svc := NewSettingsService(stores, nil)
	ctx := context.Background()

	if err := svc.Initialize(ctx, "fam1", "Cohen", "2024-01-15", 6250); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	settings, err := svc.Settings(ctx, "fam1")
	if err != nil || settings.FamilyName != "Cohen" || settings.MonthlyBaseAmount != 6250 {
		t.Fatalf("settings = %+v err=%v", settings, err)
	}

	charges, err := svc.Charges(ctx, "fam1")
	if err != nil || charges[core.ActivityShabbat] != 426.4 {
		t.Fatalf("charges = %v err=%v", charges, err)
	}

	params, err := svc.CalcParams(ctx, "fam1")
	if err != nil || params.PocketMoneyWeeksPerYear != 52 {
		t.Fatalf("params = %+v err=%v", params, err)
	}

	// Re-running must not clobber configured values.
	settings.MonthlyBaseAmount = 7000
	if err := svc.UpdateSettings(ctx, "fam1", settings); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if err := svc.Initialize(ctx, "fam1", "Other", "2020-01-01", 1); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	settings, _ = svc.Settings(ctx, "fam1")
	if settings.MonthlyBaseAmount != 7000 || settings.FamilyName != "Cohen" {
		t.Fatalf("settings overwritten: %+v", settings)
	}
}

func TestSettingsDefaultBaseAmount(t *testing.T) {
	svc := NewSettingsService(newTestStores(t, nil), nil)

	settings, err := svc.Settings(context.Background(), "fam1")
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if settings.MonthlyBaseAmount != core.DefaultMonthlyBaseAmount {
		t.Fatalf("base amount = %v", settings.MonthlyBaseAmount)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	svc := NewSettingsService(newTestStores(t, nil), nil)
	ctx := context.Background()

	bad := []FamilySettings{
		{ContractStartDate: "2024-01-15", MonthlyBaseAmount: 0},
		{ContractStartDate: "2024-01-15", MonthlyBaseAmount: -5},
		{ContractStartDate: "15/01/2024", MonthlyBaseAmount: 6250},
		{ContractStartDate: "2024-01-15", MonthlyBaseAmount: 6250, YearlyBaseAmounts: map[string]float64{"2025": -1}},
	}
	for i, settings := range bad {
		if err := svc.UpdateSettings(ctx, "fam1", settings); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestUpdateSettingsAwaitsBackend(t *testing.T) {
	be := backend.NewMemory()
	svc := NewSettingsService(newTestStores(t, be), nil)
	ctx := context.Background()

	settings := FamilySettings{
		FamilyName:        "Cohen",
		ContractStartDate: "2024-01-15",
		MonthlyBaseAmount: 7000,
	}
	if err := svc.UpdateSettings(ctx, "fam1", settings); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	// No polling: the settings write is mirrored before returning.
	if _, ok, _ := be.Fetch(ctx, "fam1", settingsKey); !ok {
		t.Fatal("settings not on backend after update")
	}
}

func TestYearlyPaymentsNormalization(t *testing.T) {
	stores := newTestStores(t, nil)
	svc := NewSettingsService(stores, nil)
	ctx := context.Background()

	// Old stored data still carries the retired bituahLeumi field.
	raw := map[string]map[string]float64{
		"year_0": {
			"medicalInsurance":   100,
			"taagidPayment":      2000,
			"taagidHandling":     840,
			"havraaAmountPerDay": 174,
			"havraaDays":         5,
			"bituahLeumi":        300,
		},
	}
	if err := store.Set(ctx, stores.Family("fam1"), yearlyPaymentsKey, raw); err != nil {
		t.Fatalf("seed: %v", err)
	}

	payments, err := svc.YearlyPayments(ctx, "fam1")
	if err != nil {
		t.Fatalf("YearlyPayments: %v", err)
	}
	if payments["year_0"].MedicalInsurance != 100 {
		t.Fatalf("payments = %+v", payments)
	}

	// The cleaned form was persisted: the raw field is gone.
	var stored map[string]map[string]float64
	stored, err = store.Get(ctx, stores.Family("fam1"), yearlyPaymentsKey, stored)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if _, ok := stored["year_0"]["bituahLeumi"]; ok {
		t.Fatal("legacy field not stripped from storage")
	}
}

func TestYearlyPaymentSetDefaults(t *testing.T) {
	svc := NewSettingsService(newTestStores(t, nil), nil)
	ctx := context.Background()

	set, err := svc.YearlyPaymentSet(ctx, "fam1", "year_3")
	if err != nil {
		t.Fatalf("YearlyPaymentSet: %v", err)
	}
	if set != core.DefaultYearlyPaymentSet() {
		t.Fatalf("set = %+v", set)
	}

	custom := core.YearlyPaymentSet{MedicalInsurance: 500, HavraaAmountPerDay: 180, HavraaDays: 6}
	if err := svc.UpdateYearlyPaymentSet(ctx, "fam1", "year_3", custom); err != nil {
		t.Fatalf("UpdateYearlyPaymentSet: %v", err)
	}
	set, _ = svc.YearlyPaymentSet(ctx, "fam1", "year_3")
	if set != custom {
		t.Fatalf("set = %+v", set)
	}
	// Other years still fall back to defaults.
	set, _ = svc.YearlyPaymentSet(ctx, "fam1", "year_4")
	if set != core.DefaultYearlyPaymentSet() {
		t.Fatalf("unconfigured year = %+v", set)
	}
}

func TestContractYears(t *testing.T) {
	svc := NewSettingsService(newTestStores(t, nil), nil)
	ctx := context.Background()

	if err := svc.Initialize(ctx, "fam1", "Cohen", "2024-01-15", 6250); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	asOf := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	years, err := svc.ContractYears(ctx, "fam1", asOf, false)
	if err != nil {
		t.Fatalf("ContractYears: %v", err)
	}
	if len(years) != 2 {
		t.Fatalf("got %d years", len(years))
	}
	if years[1].Key != "year_1" || years[1].Label != "Year 2" {
		t.Fatalf("current year = %+v", years[1])
	}
}

func TestExpectedExpensesDefaults(t *testing.T) {
	svc := NewSettingsService(newTestStores(t, nil), nil)
	ctx := context.Background()

	if err := svc.Initialize(ctx, "fam1", "Cohen", "2024-01-15", 6250); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	expenses, err := svc.ExpectedExpenses(ctx, "fam1", "year_1")
	if err != nil {
		t.Fatalf("ExpectedExpenses: %v", err)
	}

	// 7401.875 monthly times 12, plus every charge at full frequency,
	// plus the default one-time set with havraa at 174 x 5.
	if !expenses.YearlyBase.Equal(decimal.RequireFromString("88822.5")) {
		t.Errorf("yearly base = %s", expenses.YearlyBase)
	}
	if !expenses.VacationDaysCost.Equal(decimal.RequireFromString("3000")) {
		t.Errorf("vacation = %s", expenses.VacationDaysCost)
	}
	if !expenses.PocketMoneyCost.Equal(decimal.RequireFromString("5200")) {
		t.Errorf("pocket money = %s", expenses.PocketMoneyCost)
	}
	if !expenses.YearlyOneTimeTotal.Equal(decimal.RequireFromString("3710")) {
		t.Errorf("one-time = %s", expenses.YearlyOneTimeTotal)
	}
	if !expenses.Total.Equal(decimal.RequireFromString("121199.7")) {
		t.Errorf("total = %s", expenses.Total)
	}
}
