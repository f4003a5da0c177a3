package countries

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"strconv"
)

//go:embed us_states.csv
var statesCSV []byte

// StatePopulations parses the embedded US-state population table, keyed by
// state name as it appears in the Province_State column of the source.
func StatePopulations() (map[string]float64, error) {
	reader := csv.NewReader(bytes.NewReader(statesCSV))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse state table: %w", err)
	}

	populations := make(map[string]float64, len(rows))
	for _, row := range rows[1:] {
		if len(row) < 2 {
			continue
		}
		pop, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("state population for %q: %w", row[0], err)
		}
		populations[row[0]] = pop
	}
	return populations, nil
}
