package core

import "testing"

func TestActivityValidate(t *testing.T) {
	cases := []struct {
		a  Activity
		ok bool
	}{
		{Activity{ID: 1, Type: ActivityVacationDay, Date: "2025-02-10"}, true},
		{Activity{ID: 2, Type: ActivityShabbat, Date: "2025-02-07"}, true},
		{Activity{ID: 3, Type: "holiday", Date: "2025-02-10"}, false},
		{Activity{ID: 4, Type: ActivitySickDay, Date: "10/02/2025"}, false},
		{Activity{ID: 5, Type: ActivitySickDay, Date: ""}, false},
	}
	for _, tc := range cases {
		err := tc.a.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%+v expected valid, got %v", tc.a, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%+v expected error", tc.a)
		}
	}
}

func TestPayslipStatusResetsPaidAmount(t *testing.T) {
	p := &Payslip{}
	p.SetMonthlyStatus(StatusPartial)
	p.SetMonthlyPaidAmount(3000)
	if p.MonthlyPaidAmount != 3000 {
		t.Fatalf("paid amount = %v", p.MonthlyPaidAmount)
	}

	p.SetMonthlyStatus(StatusPaid)
	if p.MonthlyPaidAmount != 0 {
		t.Fatalf("transition to paid should zero paid amount, got %v", p.MonthlyPaidAmount)
	}

	// Idempotent: setting pending twice yields the same state.
	p.SetMonthlyStatus(StatusPending)
	p.SetMonthlyStatus(StatusPending)
	if p.PaymentStatus != StatusPending || p.MonthlyPaidAmount != 0 {
		t.Fatalf("unexpected state %+v", p)
	}
}

func TestPayslipOneTimePaymentStatus(t *testing.T) {
	p := &Payslip{}
	id := PaymentID(ActivityShabbat, "2025-02-07")

	p.SetPaymentStatus(id, StatusPartial)
	p.SetPaymentPaidAmount(id, 200)
	if p.MonthlyPaymentPaidAmounts[id] != 200 {
		t.Fatalf("paid amount = %v", p.MonthlyPaymentPaidAmounts[id])
	}

	p.SetPaymentStatus(id, StatusPending)
	if p.MonthlyPaymentPaidAmounts[id] != 0 {
		t.Fatalf("non-partial status should zero paid amount, got %v", p.MonthlyPaymentPaidAmounts[id])
	}
}

func TestPayslipYearlyPaymentStatus(t *testing.T) {
	p := &Payslip{}

	p.SetYearlyStatus("year_1", YearlyKeyTaagidPayment, StatusPartial)
	p.SetYearlyPaidAmount("year_1", YearlyKeyTaagidPayment, 500)
	if p.YearlyPaymentPaidAmounts["year_1"][YearlyKeyTaagidPayment] != 500 {
		t.Fatalf("paid amount not recorded")
	}

	p.SetYearlyStatus("year_1", YearlyKeyTaagidPayment, StatusPaid)
	if p.YearlyPaymentPaidAmounts["year_1"][YearlyKeyTaagidPayment] != 0 {
		t.Fatalf("transition to paid should zero paid amount")
	}
	if p.YearlyPaymentStatuses["year_1"][YearlyKeyTaagidPayment] != StatusPaid {
		t.Fatalf("status not recorded")
	}
}

func TestNormalizeYearlyPayments(t *testing.T) {
	raw := map[string]map[string]float64{
		"year_0": {
			"medicalInsurance":   100,
			"taagidPayment":      2000,
			"taagidHandling":     840,
			"havraaAmountPerDay": 174,
			"havraaDays":         5,
			"bituahLeumi":        225, // legacy, now computed monthly
		},
		"year_1": {
			"taagidPayment": 2000,
		},
	}

	normalized, changed := NormalizeYearlyPayments(raw)
	if !changed {
		t.Fatal("expected legacy field strip to be reported")
	}
	y0 := normalized["year_0"]
	if y0.MedicalInsurance != 100 || y0.TaagidPayment != 2000 || y0.HavraaDays != 5 {
		t.Fatalf("unexpected year_0 set: %+v", y0)
	}
	if normalized["year_1"].TaagidPayment != 2000 {
		t.Fatalf("unexpected year_1 set: %+v", normalized["year_1"])
	}

	_, changed = NormalizeYearlyPayments(map[string]map[string]float64{
		"year_2": {"taagidPayment": 2000},
	})
	if changed {
		t.Fatal("clean input should not report a change")
	}
}

func TestDefaults(t *testing.T) {
	charges := DefaultActivityCharges()
	if charges[ActivityShabbat] != 426.4 || charges[ActivityVacationDay] != 250 {
		t.Fatalf("unexpected charges %+v", charges)
	}
	set := DefaultYearlyPaymentSet()
	if set.TaagidPayment != 2000 || set.TaagidHandling != 840 {
		t.Fatalf("unexpected yearly set %+v", set)
	}
	params := DefaultCalcParams()
	if params.PocketMoneyWeeksPerYear != 52 || params.ShabbatPerMonth != 3 {
		t.Fatalf("unexpected params %+v", params)
	}
}
