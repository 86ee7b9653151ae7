package ledger

import (
	"context"
	"errors"
	"testing"

	"caretaker/internal/core"
)

func TestShevahAddAndTotal(t *testing.T) {
	s := NewShevah(newTestStores(t), nil)
	ctx := context.Background()

	if _, err := s.Add(ctx, "fam1", "2025-02", 10, 40); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(ctx, "fam1", "2025-02", 5, 40); err != nil {
		t.Fatalf("Add: %v", err)
	}

	rows, err := s.Month(ctx, "fam1", "2025-02")
	if err != nil || len(rows) != 2 {
		t.Fatalf("Month: %d rows err=%v", len(rows), err)
	}

	total, err := s.MonthTotal(ctx, "fam1", "2025-02")
	if err != nil {
		t.Fatalf("MonthTotal: %v", err)
	}
	if total != 600 {
		t.Fatalf("total = %v, want 600", total)
	}

	// Other months are unaffected.
	if other, _ := s.MonthTotal(ctx, "fam1", "2025-03"); other != 0 {
		t.Fatalf("other month total = %v", other)
	}
}

func TestShevahValidation(t *testing.T) {
	s := NewShevah(newTestStores(t), nil)
	ctx := context.Background()

	if _, err := s.Add(ctx, "fam1", "2025-02", -1, 40); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("negative hours: %v", err)
	}
	if _, err := s.Add(ctx, "fam1", "February 2025", 1, 40); err == nil {
		t.Fatal("bad month key accepted")
	}
}

func TestShevahDelete(t *testing.T) {
	s := NewShevah(newTestStores(t), nil)
	ctx := context.Background()

	row, err := s.Add(ctx, "fam1", "2025-02", 10, 40)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Delete(ctx, "fam1", "2025-02", row.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if rows, _ := s.Month(ctx, "fam1", "2025-02"); len(rows) != 0 {
		t.Fatalf("rows after delete = %d", len(rows))
	}

	if err := s.Delete(ctx, "fam1", "2025-02", row.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}
