package repository

import "strings"

// EventFilter holds the named list options for events.  Each non-empty
// option contributes exactly one parameterized predicate.
type EventFilter struct {
	Status      string
	StartDate   string
	EndDate     string
	VenueID     *uint64
	CollegeID   *uint64
	RequesterID *uint64
	Search      string

	Page     int
	PageSize int
}

type predicate struct {
	sql  string
	args []any
}

// predicates returns the WHERE predicates in a fixed option order.
func (f EventFilter) predicates() []predicate {
	var out []predicate
	if f.Status != "" {
		out = append(out, predicate{"e.status = ?", []any{f.Status}})
	}
	switch {
	case f.StartDate != "" && f.EndDate != "":
		out = append(out, predicate{"e.date BETWEEN ? AND ?", []any{f.StartDate, f.EndDate}})
	case f.StartDate != "":
		out = append(out, predicate{"e.date >= ?", []any{f.StartDate}})
	case f.EndDate != "":
		out = append(out, predicate{"e.date <= ?", []any{f.EndDate}})
	}
	if f.VenueID != nil {
		out = append(out, predicate{"e.venue_id = ?", []any{*f.VenueID}})
	}
	if f.CollegeID != nil {
		out = append(out, predicate{"e.college_id = ?", []any{*f.CollegeID}})
	}
	if f.RequesterID != nil {
		out = append(out, predicate{"e.requester_id = ?", []any{*f.RequesterID}})
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + escapeLike(strings.ToLower(s)) + "%"
		out = append(out, predicate{"(LOWER(e.title) LIKE ? OR LOWER(e.description) LIKE ?)", []any{like, like}})
	}
	return out
}

// where renders the predicates joined by AND, or "1=1" when there are none.
func (f EventFilter) where() (string, []any) {
	preds := f.predicates()
	if len(preds) == 0 {
		return "1=1", nil
	}
	parts := make([]string, 0, len(preds))
	var args []any
	for _, p := range preds {
		parts = append(parts, p.sql)
		args = append(args, p.args...)
	}
	return strings.Join(parts, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
