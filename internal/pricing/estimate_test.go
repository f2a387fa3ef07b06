package pricing

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateSingleGovernmentPlansAreDirect(t *testing.T) {
	engine := NewEngine(nil)
	table := engine.Table()

	for _, plan := range []string{PlanMedicare, PlanMedicaid} {
		for _, procedure := range table.Procedures() {
			est, err := engine.EstimateSingle(procedure, plan)
			require.NoError(t, err)

			raw, err := table.CostOf(procedure, plan)
			require.NoError(t, err)
			want := MustParsePrice(raw)

			assert.True(t, est.Direct)
			assert.Equal(t, want, est.TotalFinal, "%s/%s", procedure, plan)
			assert.Equal(t, want, est.TotalUpfront, "%s/%s", procedure, plan)

			summary := strings.ToLower(est.Summary())
			assert.Contains(t, summary, strings.ToLower(raw))
			assert.NotContains(t, summary, "upfront")
			assert.NotContains(t, summary, "reimburs")
		}
	}
}

func TestEstimateSinglePrivatePlansSplitUpfrontAndFinal(t *testing.T) {
	engine := NewEngine(nil)
	table := engine.Table()

	for _, plan := range table.Plans() {
		if IsGovernmentPlan(plan) {
			continue
		}
		for _, procedure := range table.Procedures() {
			est, err := engine.EstimateSingle(procedure, plan)
			require.NoError(t, err)
			assert.False(t, est.Direct)

			selfPay, _ := table.CostOf(procedure, NoInsurance)
			planPrice, _ := table.CostOf(procedure, plan)
			assert.Equal(t, MustParsePrice(selfPay), est.TotalUpfront, "%s/%s", procedure, plan)
			assert.Equal(t, MustParsePrice(planPrice), est.TotalFinal, "%s/%s", procedure, plan)
		}
	}
}

func TestEstimateSummaryPrivateMentionsReimbursement(t *testing.T) {
	est, err := NewEngine(nil).EstimateSingle("Routine Cleaning", PlanDeltaDental)
	require.NoError(t, err)

	summary := est.Summary()
	assert.Contains(t, summary, "$120.00")
	assert.Contains(t, summary, "$60.00")
	assert.Contains(t, summary, "reimbursed")
}

func TestEstimateMultipleTotalsMatchSingles(t *testing.T) {
	engine := NewEngine(nil)
	procedures := engine.Table().Procedures()
	rng := rand.New(rand.NewSource(42))

	for _, plan := range []string{PlanMedicare, PlanAetna, NoInsurance, "Other"} {
		for size := 1; size <= 20; size++ {
			set := make([]string, size)
			for i := range set {
				set[i] = procedures[rng.Intn(len(procedures))]
			}

			multi, err := engine.EstimateMultiple(set, plan)
			require.NoError(t, err)
			require.Len(t, multi.Lines, size)

			var upfront, final Cents
			for _, procedure := range set {
				single, err := engine.EstimateSingle(procedure, plan)
				require.NoError(t, err)
				upfront += single.TotalUpfront
				final += single.TotalFinal
			}
			assert.InDelta(t, int64(final), int64(multi.TotalFinal), 1, "plan %s size %d", plan, size)
			assert.InDelta(t, int64(upfront), int64(multi.TotalUpfront), 1, "plan %s size %d", plan, size)
		}
	}
}

func TestEstimateMultipleItemizesGovernmentPlans(t *testing.T) {
	est, err := NewEngine(nil).EstimateMultiple([]string{"Routine Cleaning", "X-Rays"}, PlanMedicaid)
	require.NoError(t, err)

	summary := est.Summary()
	assert.Contains(t, summary, "- Routine Cleaning: $40.00")
	assert.Contains(t, summary, "- X-Rays: $35.00")
	assert.Contains(t, summary, "Total: $75.00")
}

func TestEstimateMultipleEmptySelection(t *testing.T) {
	_, err := NewEngine(nil).EstimateMultiple(nil, PlanMedicare)
	assert.ErrorIs(t, err, ErrMissingSelection)
}

func TestEstimateUnknownProcedure(t *testing.T) {
	_, err := NewEngine(nil).EstimateSingle("Veneers", PlanMedicare)
	assert.ErrorIs(t, err, ErrUnknownProcedure)
}

func TestEstimateOtherProviderUsesSelfPayWithNote(t *testing.T) {
	est, err := NewEngine(nil).EstimateSingle("Filling", "Acme Mutual")
	require.NoError(t, err)

	assert.True(t, est.Unlisted)
	assert.Equal(t, Cents(20000), est.TotalUpfront)
	assert.Equal(t, Cents(20000), est.TotalFinal)
	assert.Contains(t, est.Summary(), "confirm your coverage with Acme Mutual")
}

func TestCanonicalPlanIgnoresCase(t *testing.T) {
	plan, ok := NewEngine(nil).CanonicalPlan("medicare")
	assert.True(t, ok)
	assert.Equal(t, PlanMedicare, plan)
}
