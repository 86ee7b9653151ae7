// Package ledger holds the month-keyed record books: the worklog
// calendar, third-party coverage rows, and the elder finance lists.
// Every collection is stored as one family key and bucketed by month.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caretaker/internal/actionlog"
	"caretaker/internal/auth"
	"caretaker/internal/core"
	"caretaker/internal/log"
	"caretaker/internal/store"
)

const worklogKey = "worklog"

var ErrEntryNotFound = errors.New("entry not found")

type Worklog struct {
	stores  *store.Manager
	actions *actionlog.Logger
	logger  *log.Logger
}

func NewWorklog(stores *store.Manager, actions *actionlog.Logger, logger *log.Logger) *Worklog {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentLedger)
	}
	return &Worklog{stores: stores, actions: actions, logger: logger}
}

// All returns the full worklog of a family.
func (w *Worklog) All(ctx context.Context, familyID string) (core.Worklog, error) {
	return store.Get(ctx, w.stores.Family(familyID), worklogKey, core.Worklog{})
}

// Month returns the activities of one month bucket.
func (w *Worklog) Month(ctx context.Context, familyID, monthKey string) ([]core.Activity, error) {
	wl, err := w.All(ctx, familyID)
	if err != nil {
		return nil, err
	}
	return wl[monthKey], nil
}

// AddActivity appends a dated activity to the bucket its date falls
// in and records the mutation in the action log.
func (w *Worklog) AddActivity(ctx context.Context, session auth.Session, typ core.ActivityType, date string) (core.Activity, error) {
	activity := core.Activity{Type: typ, Date: date}
	if err := activity.Validate(); err != nil {
		return core.Activity{}, err
	}

	monthKey, err := core.MonthKeyForDate(date)
	if err != nil {
		return core.Activity{}, err
	}

	fs := w.stores.Family(session.FamilyID)
	wl, err := store.Get(ctx, fs, worklogKey, core.Worklog{})
	if err != nil {
		return core.Activity{}, err
	}

	activity.ID = nextWorklogID(wl)
	wl[monthKey] = append(wl[monthKey], activity)

	if err := store.Set(ctx, fs, worklogKey, wl); err != nil {
		return core.Activity{}, err
	}

	if err := w.actions.Log(ctx, session, "add_activity",
		fmt.Sprintf("%s on %s", typ, date)); err != nil {
		w.logger.WarnContext(ctx, "Failed to log action",
			log.FieldFamilyID, session.FamilyID, log.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Added activity",
		log.FieldOperation, log.OpCreate,
		log.FieldFamilyID, session.FamilyID,
		log.FieldMonthKey, monthKey,
		"activity_type", string(typ))

	return activity, nil
}

// DeleteActivity removes an activity by id. The month is not part of
// the address, so every bucket is scanned.
func (w *Worklog) DeleteActivity(ctx context.Context, session auth.Session, id int64) error {
	fs := w.stores.Family(session.FamilyID)
	wl, err := store.Get(ctx, fs, worklogKey, core.Worklog{})
	if err != nil {
		return err
	}

	var removed *core.Activity
	for monthKey, activities := range wl {
		for i, a := range activities {
			if a.ID != id {
				continue
			}
			removed = &a
			wl[monthKey] = append(activities[:i], activities[i+1:]...)
			if len(wl[monthKey]) == 0 {
				delete(wl, monthKey)
			}
			break
		}
		if removed != nil {
			break
		}
	}
	if removed == nil {
		return ErrEntryNotFound
	}

	if err := store.Set(ctx, fs, worklogKey, wl); err != nil {
		return err
	}

	if err := w.actions.Log(ctx, session, "delete_activity",
		fmt.Sprintf("%s on %s", removed.Type, removed.Date)); err != nil {
		w.logger.WarnContext(ctx, "Failed to log action",
			log.FieldFamilyID, session.FamilyID, log.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Deleted activity",
		log.FieldOperation, log.OpDelete,
		log.FieldFamilyID, session.FamilyID,
		"activity_type", string(removed.Type))

	return nil
}

// Allowances summarizes the vacation-type day quotas for the
// anniversary window containing asOf.
func (w *Worklog) Allowances(ctx context.Context, familyID string, contractStart, asOf time.Time) ([]core.DayAllowance, error) {
	wl, err := w.All(ctx, familyID)
	if err != nil {
		return nil, err
	}
	return []core.DayAllowance{
		core.DayAllowanceFor(wl, core.ActivityVacationDay, contractStart, asOf, core.AnnualDayAllowance),
		core.DayAllowanceFor(wl, core.ActivityHolidayVacationDay, contractStart, asOf, core.AnnualDayAllowance),
	}, nil
}

// nextWorklogID picks a millisecond-timestamp id, bumped past any
// existing id so that rapid consecutive adds stay unique.
func nextWorklogID(wl core.Worklog) int64 {
	id := time.Now().UnixMilli()
	for _, activities := range wl {
		for _, a := range activities {
			if a.ID >= id {
				id = a.ID + 1
			}
		}
	}
	return id
}
