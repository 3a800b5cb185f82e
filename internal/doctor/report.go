package doctor

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
)

// CheckStatus is the outcome of a single check.
type CheckStatus string

const (
	OK   CheckStatus = "OK"
	WARN CheckStatus = "WARN"
	FAIL CheckStatus = "FAIL"
	SKIP CheckStatus = "SKIP"
)

// Layer names the network or protocol layer a check exercised.
type Layer string

const (
	L3    Layer = "L3-Network"
	L4    Layer = "L4-TCP"
	Kafka Layer = "L7-Kafka"
	Redis Layer = "L7-Redis"
	MCP   Layer = "L7-MCP"
)

// Row is a single check result.
type Row struct {
	Component string      `json:"component"`
	Target    string      `json:"target"`
	Layer     Layer       `json:"layer"`
	Status    CheckStatus `json:"status"`
	Detail    string      `json:"detail"`
	Hint      string      `json:"hint,omitempty"`
}

// CheckStats counts results per layer.
type CheckStats struct {
	OK   int `json:"ok"`
	WARN int `json:"warn"`
	FAIL int `json:"fail"`
	SKIP int `json:"skip"`
}

// Report collects all check results of one run.
type Report struct {
	Rows       []Row                `json:"rows"`
	Summary    map[Layer]CheckStats `json:"summary"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	HasFailed  bool                 `json:"-"`
}

func newReport() *Report {
	return &Report{Summary: map[Layer]CheckStats{}, StartedAt: time.Now()}
}

func (r *Report) add(row Row) {
	r.Rows = append(r.Rows, row)
	st := r.Summary[row.Layer]
	switch row.Status {
	case OK:
		st.OK++
	case WARN:
		st.WARN++
	case FAIL:
		st.FAIL++
		r.HasFailed = true
	case SKIP:
		st.SKIP++
	}
	r.Summary[row.Layer] = st
}

// Print writes a human readable table of r to w.
func (r *Report) Print(w io.Writer) {
	for _, row := range r.Rows {
		fmt.Fprintf(w, "%s %-7s %-11s %-28s %s\n", statusLabel(row.Status), row.Component, row.Layer, row.Target, row.Detail)
		if row.Hint != "" {
			fmt.Fprintf(w, "        hint: %s\n", row.Hint)
		}
	}

	layers := make([]string, 0, len(r.Summary))
	for l := range r.Summary {
		layers = append(layers, string(l))
	}
	sort.Strings(layers)
	fmt.Fprintln(w)
	for _, l := range layers {
		st := r.Summary[Layer(l)]
		fmt.Fprintf(w, "%-11s ok=%d warn=%d fail=%d skip=%d\n", l, st.OK, st.WARN, st.FAIL, st.SKIP)
	}
}

// WriteJSON writes r as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func statusLabel(s CheckStatus) string {
	switch s {
	case OK:
		return color.GreenString("[ OK ]")
	case WARN:
		return color.YellowString("[WARN]")
	case FAIL:
		return color.RedString("[FAIL]")
	default:
		return "[SKIP]"
	}
}
