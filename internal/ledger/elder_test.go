package ledger

import (
	"context"
	"errors"
	"testing"

	"caretaker/internal/core"
)

func fptr(v float64) *float64 { return &v }

func TestElderFinancialsCRUD(t *testing.T) {
	e := NewElder(newTestStores(t), nil)
	ctx := context.Background()

	entry, err := e.AddFinancial(ctx, "fam1", "2025-02", core.ElderFinancialEntry{Name: "pension", Amount: 3200})
	if err != nil {
		t.Fatalf("AddFinancial: %v", err)
	}

	entries, source, err := e.Financials(ctx, "fam1", "2025-02")
	if err != nil || len(entries) != 1 || source != "2025-02" {
		t.Fatalf("Financials: %d entries source=%q err=%v", len(entries), source, err)
	}

	if _, err := e.AddFinancial(ctx, "fam1", "2025-02", core.ElderFinancialEntry{Name: "  "}); !errors.Is(err, core.ErrEmptyName) {
		t.Fatalf("empty name: %v", err)
	}

	if err := e.DeleteFinancial(ctx, "fam1", "2025-02", entry.ID); err != nil {
		t.Fatalf("DeleteFinancial: %v", err)
	}
	if err := e.DeleteFinancial(ctx, "fam1", "2025-02", entry.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestElderExpenseValidation(t *testing.T) {
	e := NewElder(newTestStores(t), nil)
	ctx := context.Background()

	if _, err := e.AddExpense(ctx, "fam1", "2025-02", core.ElderExpenseEntry{Name: "taxi", Type: "km"}); err == nil {
		t.Fatal("bad expense type accepted")
	}
	if _, err := e.AddExpense(ctx, "fam1", "2025-02", core.ElderExpenseEntry{Name: "taxi", Type: "amount", Amount: fptr(80)}); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
}

func TestPreviousMonthFallback(t *testing.T) {
	e := NewElder(newTestStores(t), nil)
	ctx := context.Background()

	_, _ = e.AddFinancial(ctx, "fam1", "2024-11", core.ElderFinancialEntry{Name: "old", Amount: 100})
	_, _ = e.AddFinancial(ctx, "fam1", "2025-01", core.ElderFinancialEntry{Name: "pension", Amount: 3200})

	// 2025-03 is empty: the latest earlier month with entries serves.
	entries, source, err := e.Financials(ctx, "fam1", "2025-03")
	if err != nil {
		t.Fatalf("Financials: %v", err)
	}
	if source != "2025-01" || len(entries) != 1 || entries[0].Name != "pension" {
		t.Fatalf("fallback: source=%q entries=%+v", source, entries)
	}

	// Months before any data stay empty, no forward fallback.
	entries, source, err = e.Financials(ctx, "fam1", "2024-05")
	if err != nil || len(entries) != 0 || source != "2024-05" {
		t.Fatalf("early month: source=%q entries=%d err=%v", source, len(entries), err)
	}
}

func TestBalance(t *testing.T) {
	e := NewElder(newTestStores(t), nil)
	ctx := context.Background()

	_, _ = e.AddFinancial(ctx, "fam1", "2025-02", core.ElderFinancialEntry{Name: "pension", Amount: 3200})
	_, _ = e.AddFinancial(ctx, "fam1", "2025-02", core.ElderFinancialEntry{Name: "support", Amount: 800})
	_, _ = e.AddExpense(ctx, "fam1", "2025-02", core.ElderExpenseEntry{Name: "pharmacy", Type: "amount", Amount: fptr(350)})
	// Hours entries carry no amount and do not subtract.
	_, _ = e.AddExpense(ctx, "fam1", "2025-02", core.ElderExpenseEntry{Name: "extra care", Type: "hours", Hours: fptr(6)})

	balance, err := e.Balance(ctx, "fam1", "2025-02")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance.FinancialsTotal != 4000 || balance.ExpensesTotal != 350 {
		t.Fatalf("totals = %+v", balance)
	}
	if balance.BottomLine != 3650 {
		t.Fatalf("bottom line = %v", balance.BottomLine)
	}
}
