package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"sprintboard/internal/dataset"
)

// All leaves a dimension unrestricted.
const All = "All"

var (
	ErrEmptySelection     = errors.New("selection matched no records")
	ErrInvalidFilterValue = errors.New("invalid filter value")
)

// Dimension is a filter name shown to the user.
type Dimension string

const (
	DimProject   Dimension = "project Name"
	DimSprint    Dimension = "sprint Name"
	DimStoryType Dimension = "story Type"
)

// Cascade is the fixed order in which dimensions restrict each other.
var Cascade = []Dimension{DimProject, DimSprint, DimStoryType}

// Field returns the record column a dimension filters on.
func (d Dimension) Field() (dataset.Field, bool) {
	switch d {
	case DimProject:
		return dataset.FieldProject, true
	case DimSprint:
		return dataset.FieldSprint, true
	case DimStoryType:
		return dataset.FieldStoryType, true
	}
	return "", false
}

// Selection maps dimensions to a chosen value. Missing keys mean All.
type Selection map[Dimension]string

// Value returns the restricting value for d, or "" when d is unrestricted.
func (s Selection) Value(d Dimension) string {
	v := s[d]
	if v == All {
		return ""
	}
	return v
}

// Active reports whether any dimension is restricted.
func (s Selection) Active() bool {
	for _, d := range Cascade {
		if s.Value(d) != "" {
			return true
		}
	}
	return false
}

// DimensionOptions is the candidate list offered for one dimension.
type DimensionOptions struct {
	Dimension Dimension `json:"dimension"`
	Selected  string    `json:"selected"`
	Values    []string  `json:"values"`
}

// ApplyFilters keeps records matching every restricted dimension. Each
// selected value must be a candidate of the subset left by the earlier
// dimensions.
func ApplyFilters(records []dataset.Record, sel Selection) ([]dataset.Record, error) {
	if err := sel.validateKeys(); err != nil {
		return nil, err
	}
	subset := records
	for _, d := range Cascade {
		want := sel.Value(d)
		if want == "" {
			continue
		}
		field, _ := d.Field()
		next := keep(subset, field, want)
		if len(next) == 0 {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidFilterValue, d, want)
		}
		subset = next
	}
	if !sel.Active() {
		return append([]dataset.Record(nil), records...), nil
	}
	return subset, nil
}

// Options computes the cascading candidate lists: the list for each
// dimension comes from the records left after the earlier dimensions.
func Options(records []dataset.Record, sel Selection) ([]DimensionOptions, error) {
	if err := sel.validateKeys(); err != nil {
		return nil, err
	}
	out := make([]DimensionOptions, 0, len(Cascade))
	subset := records
	for _, d := range Cascade {
		field, _ := d.Field()
		values := distinct(subset, field)
		sort.Strings(values)
		selected := All
		if want := sel.Value(d); want != "" {
			if !contains(values, want) {
				return nil, fmt.Errorf("%w: %s=%q", ErrInvalidFilterValue, d, want)
			}
			selected = want
			subset = keep(subset, field, want)
		}
		out = append(out, DimensionOptions{
			Dimension: d,
			Selected:  selected,
			Values:    append([]string{All}, values...),
		})
	}
	return out, nil
}

// RequireRows reports ErrEmptySelection for an empty record set.
func RequireRows(records []dataset.Record) error {
	if len(records) == 0 {
		return ErrEmptySelection
	}
	return nil
}

func (s Selection) validateKeys() error {
	for d := range s {
		if _, ok := d.Field(); !ok {
			return fmt.Errorf("%w: unknown dimension %q", ErrInvalidFilterValue, d)
		}
	}
	return nil
}

func distinct(records []dataset.Record, field dataset.Field) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		v, ok := r.Value(field)
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func keep(records []dataset.Record, field dataset.Field, want string) []dataset.Record {
	out := make([]dataset.Record, 0, len(records))
	for _, r := range records {
		if v, ok := r.Value(field); ok && v == want {
			out = append(out, r)
		}
	}
	return out
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
