package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Report output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the supported report formats.
var Formats = []string{FormatText, FormatJSON, FormatYAML}

// reportDoc is the serialized report. It carries no run id, timestamps or
// durations, so the same input always renders the same bytes.
type reportDoc struct {
	File        string        `json:"file" yaml:"file"`
	DryRun      bool          `json:"dry_run" yaml:"dry_run"`
	Status      string        `json:"status" yaml:"status"`
	Stats       Stats         `json:"stats" yaml:"stats"`
	SuccessRate string        `json:"success_rate" yaml:"success_rate"`
	Orders      []reportOrder `json:"orders" yaml:"orders"`
	Errors      []reportError `json:"errors" yaml:"errors"`
}

type reportOrder struct {
	OrderNumber string           `json:"order_number" yaml:"order_number"`
	Decisions   []reportDecision `json:"decisions" yaml:"decisions"`
}

type reportDecision struct {
	Entity string `json:"entity" yaml:"entity"`
	Action string `json:"action" yaml:"action"`
	Key    string `json:"key" yaml:"key"`
	ID     int64  `json:"id" yaml:"id"`
	Basis  string `json:"basis,omitempty" yaml:"basis,omitempty"`
}

type reportError struct {
	Row    int    `json:"row" yaml:"row"`
	Kind   string `json:"kind" yaml:"kind"`
	Code   string `json:"code" yaml:"code"`
	Reason string `json:"reason" yaml:"reason"`
}

func (r *Result) doc() reportDoc {
	d := reportDoc{
		File:        r.FileName,
		DryRun:      r.DryRun,
		Status:      r.Status,
		Stats:       r.Stats,
		SuccessRate: fmt.Sprintf("%.1f%%", r.Stats.SuccessRate()),
		Orders:      []reportOrder{},
		Errors:      []reportError{},
	}
	for _, od := range r.Decisions.ByOrder() {
		o := reportOrder{OrderNumber: od.OrderNumber}
		for _, dec := range od.Decisions {
			o.Decisions = append(o.Decisions, reportDecision{
				Entity: string(dec.Entity),
				Action: dec.Action.Label(r.DryRun),
				Key:    dec.Key,
				ID:     dec.ID,
				Basis:  string(dec.Basis),
			})
		}
		d.Orders = append(d.Orders, o)
	}
	for _, e := range r.Errors {
		d.Errors = append(d.Errors, reportError{
			Row:    e.Row,
			Kind:   string(e.Kind),
			Code:   e.Code(),
			Reason: e.Reason,
		})
	}
	return d
}

// WriteReport renders the result to w in format.
func WriteReport(w io.Writer, r *Result, format string) error {
	switch format {
	case FormatText, "":
		return writeText(w, r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r.doc())
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r.doc()); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown report format %q (want %s)", format, strings.Join(Formats, ", "))
	}
}

func writeText(w io.Writer, r *Result) error {
	d := r.doc()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	mode := "live"
	if d.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(tw, "Summary: %s (%s)\n", d.File, mode)
	fmt.Fprintf(tw, "  Total rows\t%d\n", d.Stats.TotalRows)
	fmt.Fprintf(tw, "  Valid records\t%d\n", d.Stats.ValidRecords)
	fmt.Fprintf(tw, "  Errors\t%d\n", d.Stats.Errors)
	fmt.Fprintf(tw, "  Success rate\t%s\n", d.SuccessRate)
	if d.Stats.SyntheticEmails > 0 {
		fmt.Fprintf(tw, "  Synthetic emails\t%d\n", d.Stats.SyntheticEmails)
	}

	created := "CREATED"
	if d.DryRun {
		created = "WOULD CREATE"
	}
	fmt.Fprintf(tw, "\nENTITY\tFOUND\t%s\tSKIPPED\n", created)
	for _, kind := range entityDisplayOrder {
		t := d.Stats.Entities[kind]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", kind, t.Found, t.Created, t.Skipped)
	}

	if len(d.Orders) > 0 {
		fmt.Fprintln(tw, "\nDecisions:")
		for _, o := range d.Orders {
			fmt.Fprintf(tw, "Order %s\n", o.OrderNumber)
			for _, dec := range o.Decisions {
				line := fmt.Sprintf("  %s\t%s\t%s\t#%d", dec.Entity, dec.Action, dec.Key, dec.ID)
				if dec.Basis != "" {
					line += "\tby " + dec.Basis
				}
				fmt.Fprintln(tw, line)
			}
		}
	}

	if len(d.Errors) > 0 {
		fmt.Fprintln(tw, "\nErrors:")
		for _, e := range d.Errors {
			fmt.Fprintf(tw, "  row %d\t%s\t%s\t%s\n", e.Row, e.Kind, e.Code, e.Reason)
		}
	}

	return tw.Flush()
}
