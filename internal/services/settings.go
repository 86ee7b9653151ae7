// Package services orchestrates the domain over the family store: the
// settings surface and the assembled payslip views.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caretaker/internal/core"
	"caretaker/internal/log"
	"caretaker/internal/store"
)

// Store keys of the settings surface.
const (
	settingsKey       = "settings"
	chargesKey        = "activityCharges"
	yearlyPaymentsKey = "yearlyPayments"
	calcParamsKey     = "calcParams"
)

// FamilySettings is the account-level configuration.
type FamilySettings struct {
	FamilyName        string             `json:"familyName"`
	ContractStartDate string             `json:"contractStartDate"`
	MonthlyBaseAmount float64            `json:"monthlyBaseAmount"`
	YearlyBaseAmounts map[string]float64 `json:"yearlyBaseAmounts,omitempty"`
}

func (s FamilySettings) Validate() error {
	if s.MonthlyBaseAmount <= 0 {
		return errors.New("monthly base amount must be positive")
	}
	if _, err := time.Parse(core.DateLayout, s.ContractStartDate); err != nil {
		return fmt.Errorf("contract start date must be %s", core.DateLayout)
	}
	for year, amount := range s.YearlyBaseAmounts {
		if amount < 0 {
			return fmt.Errorf("yearly base amount for %s must not be negative", year)
		}
	}
	return nil
}

type SettingsService struct {
	stores *store.Manager
	logger *log.Logger
}

func NewSettingsService(stores *store.Manager, logger *log.Logger) *SettingsService {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentApp)
	}
	return &SettingsService{stores: stores, logger: logger}
}

// Initialize seeds a fresh family's settings at registration. Existing
// keys are left alone, so re-running after a partial failure is safe.
func (s *SettingsService) Initialize(ctx context.Context, familyID, familyName, contractStartDate string, monthlyBaseAmount float64) error {
	fs := s.stores.Family(familyID)

	if _, ok, err := fs.GetRaw(ctx, settingsKey); err != nil {
		return err
	} else if !ok {
		settings := FamilySettings{
			FamilyName:        familyName,
			ContractStartDate: contractStartDate,
			MonthlyBaseAmount: monthlyBaseAmount,
		}
		if err := settings.Validate(); err != nil {
			return err
		}
		if err := store.Set(ctx, fs, settingsKey, settings); err != nil {
			return err
		}
	}

	if err := s.EnsureDefaults(ctx, familyID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Initialized family settings",
		log.FieldOperation, log.OpCreate,
		log.FieldFamilyID, familyID)
	return nil
}

// EnsureDefaults seeds the charge table and calculation parameters for
// keys not present yet. Called at registration and on login so older
// accounts pick up newly introduced settings.
func (s *SettingsService) EnsureDefaults(ctx context.Context, familyID string) error {
	fs := s.stores.Family(familyID)

	if _, ok, err := fs.GetRaw(ctx, chargesKey); err != nil {
		return err
	} else if !ok {
		if err := store.Set(ctx, fs, chargesKey, core.DefaultActivityCharges()); err != nil {
			return err
		}
	}

	if _, ok, err := fs.GetRaw(ctx, calcParamsKey); err != nil {
		return err
	} else if !ok {
		if err := store.Set(ctx, fs, calcParamsKey, core.DefaultCalcParams()); err != nil {
			return err
		}
	}

	return nil
}

// Settings returns the family configuration, with the stock base
// amount for families that never configured one.
func (s *SettingsService) Settings(ctx context.Context, familyID string) (FamilySettings, error) {
	def := FamilySettings{MonthlyBaseAmount: core.DefaultMonthlyBaseAmount}
	return store.Get(ctx, s.stores.Family(familyID), settingsKey, def)
}

// UpdateSettings persists the configuration and awaits the backend
// write; losing a base-amount change to a sync failure would silently
// skew every later payslip.
func (s *SettingsService) UpdateSettings(ctx context.Context, familyID string, settings FamilySettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := store.SetToBackend(ctx, s.stores.Family(familyID), settingsKey, settings); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Updated family settings",
		log.FieldOperation, log.OpUpdate,
		log.FieldFamilyID, familyID)
	return nil
}

// ContractStart parses the configured contract start date.
func (s *SettingsService) ContractStart(ctx context.Context, familyID string) (time.Time, error) {
	settings, err := s.Settings(ctx, familyID)
	if err != nil {
		return time.Time{}, err
	}
	if settings.ContractStartDate == "" {
		return time.Time{}, errors.New("contract start date not configured")
	}
	start, err := time.Parse(core.DateLayout, settings.ContractStartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse contract start date: %w", err)
	}
	return start, nil
}

// Charges returns the per-activity charge table.
func (s *SettingsService) Charges(ctx context.Context, familyID string) (core.ActivityCharges, error) {
	return store.Get(ctx, s.stores.Family(familyID), chargesKey, core.DefaultActivityCharges())
}

// UpdateCharges persists the charge table.
func (s *SettingsService) UpdateCharges(ctx context.Context, familyID string, charges core.ActivityCharges) error {
	for typ, charge := range charges {
		if !core.ValidActivityType(typ) {
			return fmt.Errorf("%w: %s", core.ErrInvalidActivityType, typ)
		}
		if charge < 0 {
			return fmt.Errorf("charge for %s must not be negative", typ)
		}
	}
	return store.Set(ctx, s.stores.Family(familyID), chargesKey, charges)
}

// CalcParams returns the expected-expenses frequency parameters.
func (s *SettingsService) CalcParams(ctx context.Context, familyID string) (core.CalcParams, error) {
	return store.Get(ctx, s.stores.Family(familyID), calcParamsKey, core.DefaultCalcParams())
}

// UpdateCalcParams persists the frequency parameters.
func (s *SettingsService) UpdateCalcParams(ctx context.Context, familyID string, params core.CalcParams) error {
	return store.Set(ctx, s.stores.Family(familyID), calcParamsKey, params)
}

// YearlyPayments returns every configured contract-year payment set.
// Stored sets still carrying the legacy bituahLeumi field are cleaned
// and the cleaned form is written back once.
func (s *SettingsService) YearlyPayments(ctx context.Context, familyID string) (core.YearlyPayments, error) {
	fs := s.stores.Family(familyID)
	raw, err := store.Get(ctx, fs, yearlyPaymentsKey, map[string]map[string]float64{})
	if err != nil {
		return nil, err
	}

	payments, changed := core.NormalizeYearlyPayments(raw)
	if changed {
		if err := store.Set(ctx, fs, yearlyPaymentsKey, payments); err != nil {
			s.logger.WarnContext(ctx, "Failed to persist normalized yearly payments",
				log.FieldFamilyID, familyID, log.FieldError, err)
		} else {
			s.logger.InfoContext(ctx, "Normalized legacy yearly payments",
				log.FieldFamilyID, familyID)
		}
	}
	return payments, nil
}

// YearlyPaymentSet returns one contract year's payment set, or the
// defaults when the year was never configured.
func (s *SettingsService) YearlyPaymentSet(ctx context.Context, familyID, yearKey string) (core.YearlyPaymentSet, error) {
	payments, err := s.YearlyPayments(ctx, familyID)
	if err != nil {
		return core.YearlyPaymentSet{}, err
	}
	if set, ok := payments[yearKey]; ok {
		return set, nil
	}
	return core.DefaultYearlyPaymentSet(), nil
}

// UpdateYearlyPaymentSet persists one contract year's payment set.
func (s *SettingsService) UpdateYearlyPaymentSet(ctx context.Context, familyID, yearKey string, set core.YearlyPaymentSet) error {
	payments, err := s.YearlyPayments(ctx, familyID)
	if err != nil {
		return err
	}
	if payments == nil {
		payments = core.YearlyPayments{}
	}
	payments[yearKey] = set
	return store.Set(ctx, s.stores.Family(familyID), yearlyPaymentsKey, payments)
}

// ContractYears enumerates the family's contract years around now.
func (s *SettingsService) ContractYears(ctx context.Context, familyID string, asOf time.Time, includeFuture bool) ([]core.ContractYearPeriod, error) {
	start, err := s.ContractStart(ctx, familyID)
	if err != nil {
		return nil, err
	}
	return core.ListContractYears(start, asOf, includeFuture), nil
}

// ExpectedExpenses projects a full contract year from the family's
// current configuration.
func (s *SettingsService) ExpectedExpenses(ctx context.Context, familyID, yearKey string) (core.ExpectedExpenses, error) {
	settings, err := s.Settings(ctx, familyID)
	if err != nil {
		return core.ExpectedExpenses{}, err
	}
	charges, err := s.Charges(ctx, familyID)
	if err != nil {
		return core.ExpectedExpenses{}, err
	}
	set, err := s.YearlyPaymentSet(ctx, familyID, yearKey)
	if err != nil {
		return core.ExpectedExpenses{}, err
	}
	params, err := s.CalcParams(ctx, familyID)
	if err != nil {
		return core.ExpectedExpenses{}, err
	}

	base := core.BaseAmountFor(core.MonthKey(time.Now()), settings.MonthlyBaseAmount, settings.YearlyBaseAmounts)
	return core.ComputeExpectedExpenses(base, charges, set, params), nil
}
