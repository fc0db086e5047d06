package results

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const notAvailable = "n/a"

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(false).
		Headers(headers...)
}

// cell formats a value for the console, n/a for missing.
func cell(v Value, ok bool) string {
	if !ok || v.IsMissing() {
		return notAvailable
	}
	if f, isFloat := v.Number(); isFloat && v.Kind() == KindFloat {
		return strconv.FormatFloat(f, 'f', 5, 64)
	}
	return v.Text()
}

// RoundTable renders the records of one round: the worker, every request
// parameter and the main outputs.
func RoundTable(round []Record) string {
	if len(round) == 0 {
		return ""
	}
	headers := []string{FieldWorkerID}
	for _, name := range round[0].Names() {
		if !IsOutput(name) {
			headers = append(headers, name)
		}
	}
	headers = append(headers, FieldAveF, FieldVarF, FieldMaxJump, FieldValid)

	t := newTable(headers...)
	for _, r := range round {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = cell(r.Get(h))
		}
		t.Row(row...)
	}
	return t.String()
}

// SummaryTable renders the ensemble mean and deviation of the given fields.
func SummaryTable(s Summary, fields ...string) string {
	headers := append([]string(nil), s.Params...)
	headers = append(headers, "N")
	for _, f := range fields {
		headers = append(headers, f, f+"_std")
	}
	t := newTable(headers...)
	for _, r := range s.Rows {
		row := make([]string, 0, len(headers))
		for _, p := range r.Params {
			row = append(row, cell(p.Value, true))
		}
		row = append(row, strconv.Itoa(r.Samples))
		for _, f := range fields {
			st, ok := r.Stats[f]
			if !ok {
				row = append(row, notAvailable, notAvailable)
				continue
			}
			row = append(row, cell(Float(st.Mean), true), cell(Float(st.Std), true))
		}
		t.Row(row...)
	}
	return t.String()
}

// ProfileTable renders an integrated profile.
func ProfileTable(p Profile, coord, target string) string {
	t := newTable(coord, target+"_int", target+"_int_std")
	for _, pt := range p.Points {
		t.Row(cell(Float(pt.Coordinate), true), cell(Float(pt.Integral), true), cell(Float(pt.IntegralStd), true))
	}
	return t.String()
}
