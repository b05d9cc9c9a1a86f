package ingest

import "fmt"

// Action is the outcome of one resolution step.
type Action string

const (
	ActionFound        Action = "found"
	ActionCreate       Action = "create"
	ActionSkipExisting Action = "skip_existing"
)

// Label renders the action for reports. Creations in a dry run read
// "would_create".
func (a Action) Label(dryRun bool) string {
	if dryRun && a == ActionCreate {
		return "would_create"
	}
	return string(a)
}

// Decision records one found-or-create step, in occurrence order.
type Decision struct {
	OrderNumber string
	Entity      EntityKind
	Action      Action
	Key         string
	ID          int64
	Basis       MatchBasis
}

// Signature identifies the decision without its id, for comparing a dry
// run with a live run over the same input.
func (d Decision) Signature() string {
	s := fmt.Sprintf("%s %s %s %s", d.OrderNumber, d.Entity, d.Action, d.Key)
	if d.Basis != "" {
		s += " " + string(d.Basis)
	}
	return s
}

// DecisionLog collects decisions for one run.
type DecisionLog struct {
	entries []Decision
}

func (l *DecisionLog) Add(d Decision) {
	l.entries = append(l.entries, d)
}

// Entries returns the decisions in occurrence order.
func (l *DecisionLog) Entries() []Decision {
	return l.entries
}

// Signatures returns Signature for every entry.
func (l *DecisionLog) Signatures() []string {
	out := make([]string, len(l.entries))
	for i, d := range l.entries {
		out[i] = d.Signature()
	}
	return out
}

// OrderDecisions are the decisions made for one order number.
type OrderDecisions struct {
	OrderNumber string
	Decisions   []Decision
}

// ByOrder groups entries by order number, ordered by first appearance.
func (l *DecisionLog) ByOrder() []OrderDecisions {
	var groups []OrderDecisions
	index := make(map[string]int)
	for _, d := range l.entries {
		i, ok := index[d.OrderNumber]
		if !ok {
			i = len(groups)
			index[d.OrderNumber] = i
			groups = append(groups, OrderDecisions{OrderNumber: d.OrderNumber})
		}
		groups[i].Decisions = append(groups[i].Decisions, d)
	}
	return groups
}

// Tally counts actions for one entity kind.
type Tally struct {
	Found   int `json:"found" yaml:"found"`
	Created int `json:"created" yaml:"created"`
	Skipped int `json:"skipped" yaml:"skipped"`
}

// Tallies counts actions per entity kind.
func (l *DecisionLog) Tallies() map[EntityKind]Tally {
	out := make(map[EntityKind]Tally)
	for _, d := range l.entries {
		t := out[d.Entity]
		switch d.Action {
		case ActionFound:
			t.Found++
		case ActionCreate:
			t.Created++
		case ActionSkipExisting:
			t.Skipped++
		}
		out[d.Entity] = t
	}
	return out
}

// entityDisplayOrder is the row order of the entity table in reports.
var entityDisplayOrder = []EntityKind{EntityCompany, EntityPerson, EntityProduct, EntityOrder, EntityLineItem}
