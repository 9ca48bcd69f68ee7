package assist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/staffsense/staffsense/plugin/assist/preprocess"
	"github.com/staffsense/staffsense/plugin/assist/query"
	"github.com/staffsense/staffsense/plugin/forecastapi"
)

var cphValueRe = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\b`)

// parseCPHUpdate builds a bench-allocation edit from the preprocessed
// message. The user must name exactly three values, one per planning month,
// and the filters must pin down a single allocation row.
func parseCPHUpdate(msg *preprocess.PreprocessedMessage) (*query.BenchAllocationUpdate, error) {
	update := &query.BenchAllocationUpdate{}
	if len(msg.Resolved.Platforms) > 0 {
		update.Platform = msg.Resolved.Platforms[0]
	}
	if len(msg.Resolved.Markets) > 0 {
		update.Market = msg.Resolved.Markets[0]
	}
	if len(msg.Resolved.CaseTypes) > 0 {
		update.CaseType = msg.Resolved.CaseTypes[0]
	}
	if update.Platform == "" {
		return nil, fmt.Errorf("name the platform whose CPH you want to change, for example \"set Amisys claims CPH to 4.2 4.5 4.1\"")
	}

	values := make([]float64, 0, 3)
	for _, m := range cphValueRe.FindAllStringSubmatch(msg.Corrected, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		// Years and month numbers are query scope, not CPH values.
		if v == float64(int64(v)) && (v >= 2020 && v <= 2100) {
			continue
		}
		values = append(values, v)
	}

	update.Months = map[string]float64{}
	for i, v := range values {
		if i >= 3 {
			break
		}
		update.Months[fmt.Sprintf("month%d", i+1)] = v
	}

	if err := query.ValidateBenchAllocationUpdate(*update); err != nil {
		return nil, fmt.Errorf("a CPH update needs one value for each of the three planning months: %w", err)
	}
	return update, nil
}

func cphSummary(req forecastapi.CPHUpdateRequest) string {
	scope := []string{req.Platform}
	if req.Market != "" {
		scope = append(scope, req.Market)
	}
	if req.CaseType != "" {
		scope = append(scope, req.CaseType)
	}
	return fmt.Sprintf("Set CPH for %s to month1=%.2f, month2=%.2f, month3=%.2f.",
		strings.Join(scope, " / "),
		req.Months["month1"], req.Months["month2"], req.Months["month3"])
}
