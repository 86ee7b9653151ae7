package ledger

import (
	"context"
	"time"

	"caretaker/internal/core"
	"caretaker/internal/log"
	"caretaker/internal/store"
)

const (
	elderFinancialsKey = "elderFinancials"
	elderExpensesKey   = "elderExpenses"
)

// Elder manages the elder's own finance lists: incoming amounts and
// expense entries, independent of the caretaker payslip.
type Elder struct {
	stores *store.Manager
	logger *log.Logger
}

func NewElder(stores *store.Manager, logger *log.Logger) *Elder {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentLedger)
	}
	return &Elder{stores: stores, logger: logger}
}

// Financials returns a month's entries. An empty month falls back to
// the most recent earlier month that has entries; the second return
// names the month actually served.
func (e *Elder) Financials(ctx context.Context, familyID, monthKey string) ([]core.ElderFinancialEntry, string, error) {
	all, err := store.Get(ctx, e.stores.Family(familyID), elderFinancialsKey, core.ElderFinancials{})
	if err != nil {
		return nil, "", err
	}
	entries, source := monthWithFallback(all, monthKey)
	return entries, source, nil
}

// Expenses returns a month's expense entries with the same fallback.
func (e *Elder) Expenses(ctx context.Context, familyID, monthKey string) ([]core.ElderExpenseEntry, string, error) {
	all, err := store.Get(ctx, e.stores.Family(familyID), elderExpensesKey, core.ElderExpenses{})
	if err != nil {
		return nil, "", err
	}
	entries, source := monthWithFallback(all, monthKey)
	return entries, source, nil
}

// AddFinancial appends an entry to a month.
func (e *Elder) AddFinancial(ctx context.Context, familyID, monthKey string, entry core.ElderFinancialEntry) (core.ElderFinancialEntry, error) {
	if err := entry.Validate(); err != nil {
		return core.ElderFinancialEntry{}, err
	}
	if _, err := core.ParseMonthKey(monthKey); err != nil {
		return core.ElderFinancialEntry{}, err
	}

	fs := e.stores.Family(familyID)
	all, err := store.Get(ctx, fs, elderFinancialsKey, core.ElderFinancials{})
	if err != nil {
		return core.ElderFinancialEntry{}, err
	}

	entry.ID = nextElderID(func(yield func(int64)) {
		for _, entries := range all {
			for _, x := range entries {
				yield(x.ID)
			}
		}
	})
	all[monthKey] = append(all[monthKey], entry)

	if err := store.Set(ctx, fs, elderFinancialsKey, all); err != nil {
		return core.ElderFinancialEntry{}, err
	}

	e.logger.InfoContext(ctx, "Added elder financial entry",
		log.FieldOperation, log.OpCreate,
		log.FieldFamilyID, familyID,
		log.FieldMonthKey, monthKey)

	return entry, nil
}

// DeleteFinancial removes an entry from a month.
func (e *Elder) DeleteFinancial(ctx context.Context, familyID, monthKey string, id int64) error {
	fs := e.stores.Family(familyID)
	all, err := store.Get(ctx, fs, elderFinancialsKey, core.ElderFinancials{})
	if err != nil {
		return err
	}

	entries := all[monthKey]
	for i, entry := range entries {
		if entry.ID != id {
			continue
		}
		all[monthKey] = append(entries[:i], entries[i+1:]...)
		if len(all[monthKey]) == 0 {
			delete(all, monthKey)
		}
		return store.Set(ctx, fs, elderFinancialsKey, all)
	}
	return ErrEntryNotFound
}

// AddExpense appends an expense entry to a month.
func (e *Elder) AddExpense(ctx context.Context, familyID, monthKey string, entry core.ElderExpenseEntry) (core.ElderExpenseEntry, error) {
	if err := entry.Validate(); err != nil {
		return core.ElderExpenseEntry{}, err
	}
	if _, err := core.ParseMonthKey(monthKey); err != nil {
		return core.ElderExpenseEntry{}, err
	}

	fs := e.stores.Family(familyID)
	all, err := store.Get(ctx, fs, elderExpensesKey, core.ElderExpenses{})
	if err != nil {
		return core.ElderExpenseEntry{}, err
	}

	entry.ID = nextElderID(func(yield func(int64)) {
		for _, entries := range all {
			for _, x := range entries {
				yield(x.ID)
			}
		}
	})
	all[monthKey] = append(all[monthKey], entry)

	if err := store.Set(ctx, fs, elderExpensesKey, all); err != nil {
		return core.ElderExpenseEntry{}, err
	}

	e.logger.InfoContext(ctx, "Added elder expense entry",
		log.FieldOperation, log.OpCreate,
		log.FieldFamilyID, familyID,
		log.FieldMonthKey, monthKey)

	return entry, nil
}

// DeleteExpense removes an expense entry from a month.
func (e *Elder) DeleteExpense(ctx context.Context, familyID, monthKey string, id int64) error {
	fs := e.stores.Family(familyID)
	all, err := store.Get(ctx, fs, elderExpensesKey, core.ElderExpenses{})
	if err != nil {
		return err
	}

	entries := all[monthKey]
	for i, entry := range entries {
		if entry.ID != id {
			continue
		}
		all[monthKey] = append(entries[:i], entries[i+1:]...)
		if len(all[monthKey]) == 0 {
			delete(all, monthKey)
		}
		return store.Set(ctx, fs, elderExpensesKey, all)
	}
	return ErrEntryNotFound
}

// BottomLine is the month's balance of the elder ledgers.
type BottomLine struct {
	MonthKey        string  `json:"monthKey"`
	FinancialsMonth string  `json:"financialsMonth"`
	ExpensesMonth   string  `json:"expensesMonth"`
	FinancialsTotal float64 `json:"financialsTotal"`
	ExpensesTotal   float64 `json:"expensesTotal"`
	BottomLine      float64 `json:"bottomLine"`
}

// Balance computes financials minus expense amounts for a month.
// Hours-typed expense entries carry no amount and do not subtract.
func (e *Elder) Balance(ctx context.Context, familyID, monthKey string) (BottomLine, error) {
	financials, finMonth, err := e.Financials(ctx, familyID, monthKey)
	if err != nil {
		return BottomLine{}, err
	}
	expenses, expMonth, err := e.Expenses(ctx, familyID, monthKey)
	if err != nil {
		return BottomLine{}, err
	}

	var finTotal, expTotal float64
	for _, entry := range financials {
		finTotal += entry.Amount
	}
	for _, entry := range expenses {
		if entry.Type == "amount" && entry.Amount != nil {
			expTotal += *entry.Amount
		}
	}

	return BottomLine{
		MonthKey:        monthKey,
		FinancialsMonth: finMonth,
		ExpensesMonth:   expMonth,
		FinancialsTotal: finTotal,
		ExpensesTotal:   expTotal,
		BottomLine:      finTotal - expTotal,
	}, nil
}

// monthWithFallback serves the requested month, or the most recent
// earlier month with entries when the requested one is empty.
func monthWithFallback[T any](m map[string][]T, monthKey string) ([]T, string) {
	if entries := m[monthKey]; len(entries) > 0 {
		return entries, monthKey
	}
	best := ""
	for key, entries := range m {
		if len(entries) == 0 || key >= monthKey {
			continue
		}
		if key > best {
			best = key
		}
	}
	if best == "" {
		return nil, monthKey
	}
	return m[best], best
}

// nextElderID picks a millisecond-timestamp id bumped past existing
// ones so rapid adds stay unique.
func nextElderID(each func(func(int64))) int64 {
	id := time.Now().UnixMilli()
	each(func(existing int64) {
		if existing >= id {
			id = existing + 1
		}
	})
	return id
}
