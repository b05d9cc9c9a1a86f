package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/salesync/internal/ingest"
	"github.com/JonMunkholm/salesync/internal/store"
	"gopkg.in/yaml.v3"
)

type importDoc struct {
	Kind          string           `json:"kind" yaml:"kind"`
	File          string           `json:"file" yaml:"file"`
	TotalRows     int              `json:"total_rows" yaml:"total_rows"`
	Companies     int              `json:"companies_created" yaml:"companies_created"`
	People        int              `json:"people_created" yaml:"people_created"`
	Products      int              `json:"products" yaml:"products"`
	OrdersCreated int              `json:"orders_created" yaml:"orders_created"`
	OrdersSkipped int              `json:"orders_skipped" yaml:"orders_skipped"`
	LineItems     int              `json:"line_items_created" yaml:"line_items_created"`
	Errors        []importErrorDoc `json:"errors" yaml:"errors"`
}

type importErrorDoc struct {
	Row    int    `json:"row" yaml:"row"`
	Kind   string `json:"kind" yaml:"kind"`
	Code   string `json:"code" yaml:"code"`
	Reason string `json:"reason" yaml:"reason"`
}

type runDoc struct {
	ID               string  `json:"id" yaml:"id"`
	FileName         string  `json:"file_name" yaml:"file_name"`
	StartedAt        string  `json:"started_at" yaml:"started_at"`
	DurationSeconds  float64 `json:"duration_seconds" yaml:"duration_seconds"`
	TotalRows        int     `json:"total_rows" yaml:"total_rows"`
	ValidRecords     int     `json:"valid_records" yaml:"valid_records"`
	Errors           int     `json:"errors" yaml:"errors"`
	OrdersCreated    int     `json:"orders_created" yaml:"orders_created"`
	OrdersSkipped    int     `json:"orders_skipped" yaml:"orders_skipped"`
	LineItemsCreated int     `json:"line_items_created" yaml:"line_items_created"`
	Status           string  `json:"status" yaml:"status"`
}

// encode writes v as JSON or YAML. It reports false for the text format.
func encode(w io.Writer, v any, format string) (bool, error) {
	switch format {
	case ingest.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case ingest.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func writeImportResult(w io.Writer, r *ingest.ImportResult, format string) error {
	doc := importDoc{
		Kind:          r.Kind,
		File:          r.FileName,
		TotalRows:     r.TotalRows,
		Companies:     r.Companies,
		People:        r.People,
		Products:      r.Products,
		OrdersCreated: r.OrdersCreated,
		OrdersSkipped: r.OrdersSkipped,
		LineItems:     r.LineItems,
		Errors:        []importErrorDoc{},
	}
	for _, e := range r.Errors {
		doc.Errors = append(doc.Errors, importErrorDoc{
			Row:    e.Row,
			Kind:   string(e.Kind),
			Code:   e.Code(),
			Reason: e.Reason,
		})
	}

	if ok, err := encode(w, doc, format); ok {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Import:\t%s (%s)\n", doc.File, doc.Kind)
	fmt.Fprintf(tw, "Total rows:\t%d\n", doc.TotalRows)
	fmt.Fprintf(tw, "Companies created:\t%d\n", doc.Companies)
	fmt.Fprintf(tw, "People created:\t%d\n", doc.People)
	fmt.Fprintf(tw, "Products:\t%d\n", doc.Products)
	if doc.OrdersCreated > 0 || doc.OrdersSkipped > 0 {
		fmt.Fprintf(tw, "Orders created:\t%d\n", doc.OrdersCreated)
		fmt.Fprintf(tw, "Orders skipped:\t%d\n", doc.OrdersSkipped)
		fmt.Fprintf(tw, "Line items created:\t%d\n", doc.LineItems)
	}
	fmt.Fprintf(tw, "Errors:\t%d\n", len(doc.Errors))
	for _, e := range doc.Errors {
		fmt.Fprintf(tw, "  row %d\t%s\t%s\t%s\n", e.Row, e.Kind, e.Code, e.Reason)
	}
	return tw.Flush()
}

func writeRuns(w io.Writer, runs []store.Run, format string) error {
	docs := make([]runDoc, 0, len(runs))
	for _, r := range runs {
		docs = append(docs, runDoc{
			ID:               r.ID.String(),
			FileName:         r.FileName,
			StartedAt:        r.StartedAt.UTC().Format(time.RFC3339),
			DurationSeconds:  r.Duration.Seconds(),
			TotalRows:        r.TotalRows,
			ValidRecords:     r.ValidRecords,
			Errors:           r.Errors,
			OrdersCreated:    r.OrdersCreated,
			OrdersSkipped:    r.OrdersSkipped,
			LineItemsCreated: r.LineItemsCreated,
			Status:           r.Status,
		})
	}

	if ok, err := encode(w, docs, format); ok {
		return err
	}

	if len(docs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tFILE\tSTATUS\tROWS\tERRORS\tCREATED\tSKIPPED\tDURATION")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%.1fs\n",
			d.StartedAt, d.FileName, d.Status, d.TotalRows, d.Errors,
			d.OrdersCreated, d.OrdersSkipped, d.DurationSeconds)
	}
	return tw.Flush()
}
