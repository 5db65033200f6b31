package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// QuantsFileName is the measurement results file written per campaign.
const QuantsFileName = "quants.csv"

// ResultRow is one completed job's measurement output.
type ResultRow map[string]string

// WriteQuants writes one CSV row per result to dir/quants.csv, creating dir
// if needed. Columns are the sorted union of all row keys; missing cells are
// left empty.
func WriteQuants(dir string, rows []ResultRow) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create quants dir: %w", err)
	}

	columns := unionColumns(rows)
	out := filepath.Join(dir, QuantsFileName)
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", out, err)
	}
	defer f.Close()

	wr := csv.NewWriter(f)
	if err := wr.Write(columns); err != nil {
		return "", err
	}
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = row[col]
		}
		if err := wr.Write(record); err != nil {
			return "", err
		}
	}
	wr.Flush()
	if err := wr.Error(); err != nil {
		return "", err
	}
	return out, nil
}

func unionColumns(rows []ResultRow) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for col := range row {
			seen[col] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for col := range seen {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}
