package composition

import "github.com/shopspring/decimal"

// Demo returns the built-in composition table used when no compositions file
// is configured: two tokenizable ETFs over Singapore-listed constituents.
func Demo() *Table {
	table, err := New(map[string]map[string]decimal.Decimal{
		"ES3": {
			"D05": decimal.NewFromInt(5),
			"O39": decimal.NewFromInt(2),
		},
		"A35": {
			"SGOV": decimal.NewFromInt(10),
		},
	})
	if err != nil {
		// The demo table is static; a validation failure is a programming error.
		panic(err)
	}
	return table
}
