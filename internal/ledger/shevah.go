package ledger

import (
	"context"
	"time"

	"caretaker/internal/core"
	"caretaker/internal/log"
	"caretaker/internal/store"
)

const shevahKey = "shevahCoverage"

// Shevah manages the third-party coverage rows that offset the monthly
// base amount.
type Shevah struct {
	stores *store.Manager
	logger *log.Logger
}

func NewShevah(stores *store.Manager, logger *log.Logger) *Shevah {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentLedger)
	}
	return &Shevah{stores: stores, logger: logger}
}

// Month returns the coverage rows of one month.
func (s *Shevah) Month(ctx context.Context, familyID, monthKey string) ([]core.ShevahRow, error) {
	coverage, err := store.Get(ctx, s.stores.Family(familyID), shevahKey, core.ShevahCoverage{})
	if err != nil {
		return nil, err
	}
	return coverage[monthKey], nil
}

// Add appends a coverage row to a month.
func (s *Shevah) Add(ctx context.Context, familyID, monthKey string, hours, amountPerHour float64) (core.ShevahRow, error) {
	row := core.ShevahRow{Hours: hours, AmountPerHour: amountPerHour}
	if err := row.Validate(); err != nil {
		return core.ShevahRow{}, err
	}
	if _, err := core.ParseMonthKey(monthKey); err != nil {
		return core.ShevahRow{}, err
	}

	fs := s.stores.Family(familyID)
	coverage, err := store.Get(ctx, fs, shevahKey, core.ShevahCoverage{})
	if err != nil {
		return core.ShevahRow{}, err
	}

	row.ID = nextShevahID(coverage)
	coverage[monthKey] = append(coverage[monthKey], row)

	if err := store.Set(ctx, fs, shevahKey, coverage); err != nil {
		return core.ShevahRow{}, err
	}

	s.logger.InfoContext(ctx, "Added coverage row",
		log.FieldOperation, log.OpCreate,
		log.FieldFamilyID, familyID,
		log.FieldMonthKey, monthKey)

	return row, nil
}

// Delete removes a coverage row from a month.
func (s *Shevah) Delete(ctx context.Context, familyID, monthKey string, id int64) error {
	fs := s.stores.Family(familyID)
	coverage, err := store.Get(ctx, fs, shevahKey, core.ShevahCoverage{})
	if err != nil {
		return err
	}

	rows := coverage[monthKey]
	for i, row := range rows {
		if row.ID != id {
			continue
		}
		coverage[monthKey] = append(rows[:i], rows[i+1:]...)
		if len(coverage[monthKey]) == 0 {
			delete(coverage, monthKey)
		}
		return store.Set(ctx, fs, shevahKey, coverage)
	}
	return ErrEntryNotFound
}

// MonthTotal returns the monetary offset of one month's coverage.
func (s *Shevah) MonthTotal(ctx context.Context, familyID, monthKey string) (float64, error) {
	rows, err := s.Month(ctx, familyID, monthKey)
	if err != nil {
		return 0, err
	}
	return core.Float(core.ShevahTotal(rows)), nil
}

func nextShevahID(coverage core.ShevahCoverage) int64 {
	id := time.Now().UnixMilli()
	for _, rows := range coverage {
		for _, row := range rows {
			if row.ID >= id {
				id = row.ID + 1
			}
		}
	}
	return id
}
