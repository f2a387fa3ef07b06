package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostOfDirectLookup(t *testing.T) {
	table := DefaultTable()

	price, err := table.CostOf("Routine Cleaning", PlanMedicare)
	require.NoError(t, err)
	assert.Equal(t, "$85.00", price)
}

func TestCostOfFallsBackToNoInsurance(t *testing.T) {
	table := DefaultTable()

	price, err := table.CostOf("Teeth Whitening", PlanDeltaDental)
	require.NoError(t, err)
	assert.Equal(t, "$399.99", price)

	price, err = table.CostOf("Crown", "Acme Dental Mutual")
	require.NoError(t, err)
	assert.Equal(t, "$1,250.00", price)
}

func TestCostOfUnknownProcedure(t *testing.T) {
	_, err := DefaultTable().CostOf("Laser Gum Surgery", NoInsurance)
	assert.ErrorIs(t, err, ErrUnknownProcedure)
}

func TestEveryTablePriceParses(t *testing.T) {
	for procedure, prices := range DefaultTable() {
		require.Contains(t, prices, NoInsurance, procedure)
		for plan, raw := range prices {
			_, err := ParsePrice(raw)
			assert.NoError(t, err, "%s/%s", procedure, plan)
		}
	}
}

func TestPlansListsNoInsuranceFirst(t *testing.T) {
	plans := DefaultTable().Plans()
	require.NotEmpty(t, plans)
	assert.Equal(t, NoInsurance, plans[0])
	assert.Contains(t, plans, PlanMedicare)
	assert.Contains(t, plans, PlanBlueCrossBlueShield)
	assert.NotContains(t, plans[1:], NoInsurance)
}

func TestLookupProcedureIgnoresCase(t *testing.T) {
	name, ok := DefaultTable().LookupProcedure("  routine cleaning ")
	require.True(t, ok)
	assert.Equal(t, "Routine Cleaning", name)

	_, ok = DefaultTable().LookupProcedure("braces")
	assert.False(t, ok)
}
