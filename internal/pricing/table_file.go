package pricing

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidTable is returned when a cost table file cannot be used.
var ErrInvalidTable = errors.New("pricing: invalid cost table")

// LoadTable reads a fee schedule from a YAML or JSON file shaped like
//
//	Routine Cleaning:
//	  No Insurance: "$120.00"
//	  Delta Dental: "$60.00"
//
// Every procedure needs a No Insurance price and every price must parse.
func LoadTable(path string) (Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pricing: read cost table: %w", err)
	}
	var table Table
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Validate checks that the table can price every procedure it lists.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no procedures", ErrInvalidTable)
	}
	for procedure, plans := range t {
		if _, ok := plans[NoInsurance]; !ok {
			return fmt.Errorf("%w: %s has no %q price", ErrInvalidTable, procedure, NoInsurance)
		}
		for plan, price := range plans {
			if _, err := ParsePrice(price); err != nil {
				return fmt.Errorf("%w: %s/%s: %w", ErrInvalidTable, procedure, plan, err)
			}
		}
	}
	return nil
}
