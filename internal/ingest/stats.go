package ingest

import "github.com/JonMunkholm/salesync/internal/core"

// Stats are the counters of one run.
type Stats struct {
	TotalRows        int `json:"total_rows" yaml:"total_rows"`
	ValidRecords     int `json:"valid_records" yaml:"valid_records"`
	Processed        int `json:"processed" yaml:"processed"`
	Committed        int `json:"committed" yaml:"committed"`
	Errors           int `json:"errors" yaml:"errors"`
	ParseErrors      int `json:"parse_errors" yaml:"parse_errors"`
	ValidationErrors int `json:"validation_errors" yaml:"validation_errors"`
	ResolutionErrors int `json:"resolution_errors" yaml:"resolution_errors"`
	SyntheticEmails  int `json:"synthetic_emails" yaml:"synthetic_emails"`

	Entities map[EntityKind]Tally `json:"entities" yaml:"entities"`
}

// SuccessRate is the share of valid records among all data rows, in percent.
func (s Stats) SuccessRate() float64 {
	if s.TotalRows == 0 {
		return 0
	}
	return float64(s.ValidRecords) / float64(s.TotalRows) * 100
}

func (s *Stats) fill(res *Result) {
	s.Errors = len(res.Errors)
	s.ParseErrors, s.ValidationErrors, s.ResolutionErrors = 0, 0, 0
	for _, e := range res.Errors {
		switch e.Kind {
		case core.KindParse:
			s.ParseErrors++
		case core.KindValidation:
			s.ValidationErrors++
		case core.KindResolution:
			s.ResolutionErrors++
		}
	}

	s.Committed = 0
	for _, o := range res.Outcomes {
		if o.State == StateCommitted || o.State == StateOrderCreated {
			s.Committed++
		}
	}

	s.Entities = res.Decisions.Tallies()
}
