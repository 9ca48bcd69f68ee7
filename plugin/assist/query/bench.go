package query

import (
	"fmt"
	"sort"
)

// BenchAllocationUpdate is a CPH (cases-per-hour) bench allocation edit
// against the backend's edit view. Months carries the allocation for each of
// the three planning months.
type BenchAllocationUpdate struct {
	Platform string             `json:"platform"`
	Market   string             `json:"market"`
	CaseType string             `json:"case_type"`
	Months   map[string]float64 `json:"months"`
}

var requiredBenchMonths = []string{"month1", "month2", "month3"}

// ValidateBenchAllocationUpdate checks that the update names all three
// planning months. A missing month is reported by key so the user can see
// exactly what to add.
func ValidateBenchAllocationUpdate(update BenchAllocationUpdate) error {
	if update.Months == nil {
		return fmt.Errorf("months map is required: missing %v", requiredBenchMonths)
	}
	missing := make([]string, 0)
	for _, key := range requiredBenchMonths {
		if _, ok := update.Months[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("months map missing required key(s): %v", missing)
	}
	return nil
}
