package pipeline

import (
	"fmt"
	"sort"

	"sprintboard/internal/dataset"
)

// DefaultPlaceholder labels the synthetic row added by PadSingleCategory.
const DefaultPlaceholder = "Default"

// Row is one group of a summary table.
type Row struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

// Table is a small derived count table keyed by one or two dimensions.
// Columns lists the key columns followed by the count column.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Total sums the count column.
func (t Table) Total() int {
	n := 0
	for _, r := range t.Rows {
		n += r.Count
	}
	return n
}

func (t Table) Len() int { return len(t.Rows) }

// CountRecords is the row count of the set.
func CountRecords(records []dataset.Record) int {
	return len(records)
}

// CountDistinct counts the distinct non-null values of field.
func CountDistinct(records []dataset.Record, field dataset.Field) (int, error) {
	if err := dataset.CheckField(field); err != nil {
		return 0, err
	}
	return len(distinct(records, field)), nil
}

// GroupCount groups by one or two fields and counts non-null countField
// values per group. Rows keep the order in which each group first appears;
// records with a null group key are skipped.
func GroupCount(records []dataset.Record, groupFields []dataset.Field, countField dataset.Field) (Table, error) {
	if len(groupFields) == 0 || len(groupFields) > 2 {
		return Table{}, fmt.Errorf("group count needs one or two group fields, got %d", len(groupFields))
	}
	for _, f := range append(append([]dataset.Field(nil), groupFields...), countField) {
		if err := dataset.CheckField(f); err != nil {
			return Table{}, err
		}
	}

	columns := make([]string, 0, len(groupFields)+1)
	for _, f := range groupFields {
		columns = append(columns, string(f))
	}
	columns = append(columns, string(countField)+"_count")
	table := Table{Columns: columns, Rows: []Row{}}

	index := make(map[[2]string]int)
	for _, r := range records {
		keys, ok := groupKeys(r, groupFields)
		if !ok {
			continue
		}
		var id [2]string
		copy(id[:], keys)
		pos, seen := index[id]
		if !seen {
			pos = len(table.Rows)
			index[id] = pos
			table.Rows = append(table.Rows, Row{Keys: keys})
		}
		if _, ok := r.Value(countField); ok {
			table.Rows[pos].Count++
		}
	}
	return table, nil
}

// ValueCounts is the frequency of each non-null value of field, descending
// by count with ties in first-appearance order.
func ValueCounts(records []dataset.Record, field dataset.Field) (Table, error) {
	if err := dataset.CheckField(field); err != nil {
		return Table{}, err
	}
	table, err := GroupCount(records, []dataset.Field{field}, field)
	if err != nil {
		return Table{}, err
	}
	table.Columns = []string{string(field), "count"}
	sort.SliceStable(table.Rows, func(i, j int) bool {
		return table.Rows[i].Count > table.Rows[j].Count
	})
	return table, nil
}

// SizeBy counts records per value of field, including records whose
// countable fields are null.
func SizeBy(records []dataset.Record, field dataset.Field, countColumn string) (Table, error) {
	if err := dataset.CheckField(field); err != nil {
		return Table{}, err
	}
	table := Table{Columns: []string{string(field), countColumn}, Rows: []Row{}}
	index := make(map[string]int)
	for _, r := range records {
		v, ok := r.Value(field)
		if !ok {
			continue
		}
		pos, seen := index[v]
		if !seen {
			pos = len(table.Rows)
			index[v] = pos
			table.Rows = append(table.Rows, Row{Keys: []string{v}})
		}
		table.Rows[pos].Count++
	}
	return table, nil
}

// PadSingleCategory appends a zero-count placeholder row when the table has
// exactly one row, so hierarchical charts get two leaves. The input table is
// left untouched.
func PadSingleCategory(t Table, label string) Table {
	if len(t.Rows) != 1 {
		return t
	}
	if label == "" {
		label = DefaultPlaceholder
	}
	keys := make([]string, len(t.Rows[0].Keys))
	for i := range keys {
		keys[i] = label
	}
	out := Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    append(append([]Row(nil), t.Rows...), Row{Keys: keys}),
	}
	return out
}

// StatusBreakdown counts stories per status, grouped by project. With a
// concrete project it regroups by sprint within that project instead.
func StatusBreakdown(records []dataset.Record, project string) (Table, error) {
	group := dataset.FieldProject
	if project != "" && project != All {
		group = dataset.FieldSprint
		records = keep(records, dataset.FieldProject, project)
	}
	return GroupCount(records, []dataset.Field{group, dataset.FieldStatus}, dataset.FieldStoryKey)
}

func groupKeys(r dataset.Record, fields []dataset.Field) ([]string, bool) {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := r.Value(f)
		if !ok {
			return nil, false
		}
		keys = append(keys, v)
	}
	return keys, true
}
