package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// NoInsurance is the plan key holding the self-pay price of every procedure.
const NoInsurance = "No Insurance"

// Plan names used by the default table.
const (
	PlanMedicare            = "Medicare"
	PlanMedicaid            = "Medicaid"
	PlanDeltaDental         = "Delta Dental"
	PlanCigna               = "Cigna"
	PlanAetna               = "Aetna"
	PlanMetLife             = "MetLife"
	PlanGuardian            = "Guardian"
	PlanUnitedHealthcare    = "United Healthcare"
	PlanBlueCrossBlueShield = "Blue Cross Blue Shield"
	PlanHumana              = "Humana"
	PlanOther               = "Other"
)

// ErrUnknownProcedure is returned for procedures missing from the table.
var ErrUnknownProcedure = errors.New("pricing: unknown procedure")

// Table maps procedure -> plan -> price string. It is read-only after construction.
type Table map[string]map[string]string

// CostOf returns the listed price of procedure under plan, falling back to the
// No Insurance price when the plan has no entry for that procedure.
func (t Table) CostOf(procedure, plan string) (string, error) {
	prices, ok := t[procedure]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProcedure, procedure)
	}
	if price, ok := prices[plan]; ok {
		return price, nil
	}
	price, ok := prices[NoInsurance]
	if !ok {
		return "", fmt.Errorf("pricing: %q has no %s price", procedure, NoInsurance)
	}
	return price, nil
}

// HasPlan reports whether procedure lists an explicit price for plan.
func (t Table) HasPlan(procedure, plan string) bool {
	_, ok := t[procedure][plan]
	return ok
}

// Procedures returns the procedure names in alphabetical order.
func (t Table) Procedures() []string {
	out := make([]string, 0, len(t))
	for name := range t {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Plans returns every plan mentioned in the table, No Insurance first.
func (t Table) Plans() []string {
	seen := map[string]struct{}{}
	for _, prices := range t {
		for plan := range prices {
			seen[plan] = struct{}{}
		}
	}
	delete(seen, NoInsurance)
	out := make([]string, 0, len(seen)+1)
	for plan := range seen {
		out = append(out, plan)
	}
	sort.Strings(out)
	return append([]string{NoInsurance}, out...)
}

// LookupProcedure resolves a case-insensitive procedure name to its table key.
func (t Table) LookupProcedure(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if _, ok := t[name]; ok {
		return name, true
	}
	for key := range t {
		if strings.EqualFold(key, name) {
			return key, true
		}
	}
	return "", false
}

// DefaultTable is the practice fee schedule.
func DefaultTable() Table {
	return Table{
		"Routine Cleaning": {
			NoInsurance: "$120.00", PlanMedicare: "$85.00", PlanMedicaid: "$40.00",
			PlanDeltaDental: "$60.00", PlanCigna: "$65.00", PlanAetna: "$70.00",
			PlanMetLife: "$62.50", PlanGuardian: "$68.00", PlanUnitedHealthcare: "$66.00",
			PlanBlueCrossBlueShield: "$64.00", PlanHumana: "$72.00",
		},
		"Dental Exam": {
			NoInsurance: "$95.00", PlanMedicare: "$60.00", PlanMedicaid: "$25.00",
			PlanDeltaDental: "$45.00", PlanCigna: "$48.00", PlanAetna: "$50.00",
			PlanMetLife: "$47.00", PlanGuardian: "$49.00", PlanUnitedHealthcare: "$46.00",
			PlanBlueCrossBlueShield: "$44.00", PlanHumana: "$52.00",
		},
		"X-Rays": {
			NoInsurance: "$150.00", PlanMedicare: "$90.00", PlanMedicaid: "$35.00",
			PlanDeltaDental: "$75.00", PlanCigna: "$80.00", PlanAetna: "$82.00",
			PlanMetLife: "$78.00", PlanGuardian: "$79.00", PlanUnitedHealthcare: "$77.00",
			PlanBlueCrossBlueShield: "$76.00", PlanHumana: "$85.00",
		},
		"Deep Cleaning": {
			NoInsurance: "$275.00", PlanMedicare: "$180.00", PlanMedicaid: "$90.00",
			PlanDeltaDental: "$150.00", PlanCigna: "$160.00", PlanAetna: "$165.00",
			PlanMetLife: "$155.00", PlanGuardian: "$158.00", PlanUnitedHealthcare: "$162.00",
			PlanBlueCrossBlueShield: "$152.00",
		},
		"Filling": {
			NoInsurance: "$200.00", PlanMedicare: "$140.00", PlanMedicaid: "$60.00",
			PlanDeltaDental: "$110.00", PlanCigna: "$115.00", PlanAetna: "$120.00",
			PlanMetLife: "$112.00", PlanGuardian: "$118.00", PlanUnitedHealthcare: "$116.00",
			PlanBlueCrossBlueShield: "$114.00", PlanHumana: "$125.00",
		},
		"Root Canal": {
			NoInsurance: "$1,100.00", PlanMedicare: "$750.00", PlanMedicaid: "$300.00",
			PlanDeltaDental: "$550.00", PlanCigna: "$575.00", PlanAetna: "$600.00",
			PlanMetLife: "$560.00", PlanGuardian: "$590.00", PlanUnitedHealthcare: "$580.00",
			PlanBlueCrossBlueShield: "$565.00", PlanHumana: "$620.00",
		},
		"Crown": {
			NoInsurance: "$1,250.00", PlanMedicare: "$900.00", PlanMedicaid: "$400.00",
			PlanDeltaDental: "$625.00", PlanCigna: "$650.00", PlanAetna: "$675.00",
			PlanMetLife: "$640.00", PlanGuardian: "$660.00", PlanUnitedHealthcare: "$655.00",
			PlanBlueCrossBlueShield: "$630.00",
		},
		"Extraction": {
			NoInsurance: "$225.00", PlanMedicare: "$150.00", PlanMedicaid: "$55.00",
			PlanDeltaDental: "$110.00", PlanCigna: "$118.00", PlanAetna: "$122.00",
			PlanMetLife: "$112.00", PlanGuardian: "$120.00", PlanUnitedHealthcare: "$119.00",
			PlanBlueCrossBlueShield: "$115.00", PlanHumana: "$128.00",
		},
		"Wisdom Tooth Removal": {
			NoInsurance: "$450.00", PlanMedicare: "$320.00", PlanMedicaid: "$140.00",
			PlanDeltaDental: "$240.00", PlanCigna: "$250.00", PlanAetna: "$255.00",
			PlanMetLife: "$245.00", PlanGuardian: "$252.00", PlanUnitedHealthcare: "$248.00",
			PlanBlueCrossBlueShield: "$242.00",
		},
		"Dental Implant": {
			NoInsurance: "$3,500.00", PlanMedicare: "$2,800.00", PlanMedicaid: "$2,200.00",
			PlanDeltaDental: "$2,400.00", PlanCigna: "$2,450.00", PlanAetna: "$2,500.00",
			PlanMetLife: "$2,420.00", PlanGuardian: "$2,480.00",
		},
		"Dentures": {
			NoInsurance: "$1,800.00", PlanMedicare: "$1,300.00", PlanMedicaid: "$650.00",
			PlanDeltaDental: "$950.00", PlanCigna: "$990.00", PlanAetna: "$1,020.00",
			PlanMetLife: "$970.00", PlanHumana: "$1,050.00",
		},
		"Teeth Whitening": {
			NoInsurance: "$399.99",
		},
	}
}
