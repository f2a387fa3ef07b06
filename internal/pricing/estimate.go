package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingSelection is returned when an estimate is requested for no procedures.
var ErrMissingSelection = errors.New("pricing: no procedures selected")

// Line is one itemized procedure of an estimate.
type Line struct {
	Procedure string `json:"procedure"`
	Upfront   Cents  `json:"upfront_cents"`
	Final     Cents  `json:"final_cents"`
}

// Estimate is the result of a cost calculation.
//
// Direct estimates (Medicare/Medicaid) carry the plan price in both Upfront and
// Final. Every other plan pays the No Insurance price upfront and is reimbursed
// down to the plan price later.
type Estimate struct {
	Plan         string `json:"plan"`
	Direct       bool   `json:"direct"`
	Unlisted     bool   `json:"unlisted_plan"`
	Lines        []Line `json:"lines"`
	TotalUpfront Cents  `json:"total_upfront_cents"`
	TotalFinal   Cents  `json:"total_final_cents"`
}

// IsGovernmentPlan reports whether plan is Medicare or Medicaid.
func IsGovernmentPlan(plan string) bool {
	plan = strings.TrimSpace(plan)
	return strings.EqualFold(plan, PlanMedicare) || strings.EqualFold(plan, PlanMedicaid)
}

// Engine computes estimates against a cost table.
type Engine struct {
	table Table
	plans []string
}

// NewEngine builds an engine; a nil table means DefaultTable.
func NewEngine(table Table) *Engine {
	if table == nil {
		table = DefaultTable()
	}
	return &Engine{table: table, plans: table.Plans()}
}

// Table exposes the underlying cost table.
func (e *Engine) Table() Table {
	return e.table
}

// CanonicalPlan maps a plan name to the table's spelling. The second result is
// false when the table has no such plan.
func (e *Engine) CanonicalPlan(plan string) (string, bool) {
	plan = strings.TrimSpace(plan)
	for _, known := range e.plans {
		if strings.EqualFold(known, plan) {
			return known, true
		}
	}
	return plan, false
}

// EstimateSingle prices one procedure under plan.
func (e *Engine) EstimateSingle(procedure, plan string) (Estimate, error) {
	return e.EstimateMultiple([]string{procedure}, plan)
}

// EstimateMultiple prices every procedure under plan and totals the lines.
func (e *Engine) EstimateMultiple(procedures []string, plan string) (Estimate, error) {
	if len(procedures) == 0 {
		return Estimate{}, ErrMissingSelection
	}
	plan, listed := e.CanonicalPlan(plan)
	if plan == "" {
		plan = NoInsurance
		listed = true
	}

	est := Estimate{
		Plan:     plan,
		Direct:   IsGovernmentPlan(plan),
		Unlisted: !listed || plan == PlanOther,
		Lines:    make([]Line, 0, len(procedures)),
	}
	for _, procedure := range procedures {
		line, err := e.line(procedure, plan, est.Direct)
		if err != nil {
			return Estimate{}, err
		}
		est.Lines = append(est.Lines, line)
		est.TotalUpfront += line.Upfront
		est.TotalFinal += line.Final
	}
	return est, nil
}

func (e *Engine) line(procedure, plan string, direct bool) (Line, error) {
	planRaw, err := e.table.CostOf(procedure, plan)
	if err != nil {
		return Line{}, err
	}
	final, err := ParsePrice(planRaw)
	if err != nil {
		return Line{}, fmt.Errorf("pricing: %s/%s: %w", procedure, plan, err)
	}
	if direct {
		return Line{Procedure: procedure, Upfront: final, Final: final}, nil
	}

	selfPayRaw, err := e.table.CostOf(procedure, NoInsurance)
	if err != nil {
		return Line{}, err
	}
	upfront, err := ParsePrice(selfPayRaw)
	if err != nil {
		return Line{}, fmt.Errorf("pricing: %s/%s: %w", procedure, NoInsurance, err)
	}
	return Line{Procedure: procedure, Upfront: upfront, Final: final}, nil
}

// Summary renders the estimate as the bot's reply text.
func (est Estimate) Summary() string {
	var b strings.Builder
	switch {
	case est.Direct && len(est.Lines) == 1:
		fmt.Fprintf(&b, "Estimated cost for %s with %s: %s", est.Lines[0].Procedure, est.Plan, est.Lines[0].Final)
	case est.Direct:
		fmt.Fprintf(&b, "Estimated costs with %s:\n", est.Plan)
		for _, line := range est.Lines {
			fmt.Fprintf(&b, "- %s: %s\n", line.Procedure, line.Final)
		}
		fmt.Fprintf(&b, "Total: %s", est.TotalFinal)
	case est.Plan == NoInsurance:
		if len(est.Lines) == 1 {
			fmt.Fprintf(&b, "Estimated cost for %s without insurance: %s, due at your visit.", est.Lines[0].Procedure, est.Lines[0].Upfront)
		} else {
			b.WriteString("Estimated costs without insurance:\n")
			for _, line := range est.Lines {
				fmt.Fprintf(&b, "- %s: %s\n", line.Procedure, line.Upfront)
			}
			fmt.Fprintf(&b, "Total due at your visit: %s", est.TotalUpfront)
		}
	case len(est.Lines) == 1:
		line := est.Lines[0]
		fmt.Fprintf(&b, "Estimated cost for %s with %s:\n", line.Procedure, est.Plan)
		fmt.Fprintf(&b, "Due upfront at your visit (No Insurance price): %s\n", line.Upfront)
		fmt.Fprintf(&b, "Your final cost once %s processes the claim: %s. The difference of %s is reimbursed to you later.",
			est.Plan, line.Final, line.Upfront-line.Final)
	default:
		fmt.Fprintf(&b, "Estimated costs with %s:\n", est.Plan)
		for _, line := range est.Lines {
			fmt.Fprintf(&b, "- %s: %s upfront, %s after reimbursement\n", line.Procedure, line.Upfront, line.Final)
		}
		fmt.Fprintf(&b, "Total due upfront: %s\n", est.TotalUpfront)
		fmt.Fprintf(&b, "Total after reimbursement: %s", est.TotalFinal)
	}
	if est.Unlisted && est.Plan != NoInsurance {
		fmt.Fprintf(&b, "\nWe don't have a fee schedule on file for %s, so these figures use our No Insurance price. Please confirm your coverage with %s directly.", est.Plan, est.Plan)
	}
	return b.String()
}
