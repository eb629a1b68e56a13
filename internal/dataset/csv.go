package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Default source headers that get renamed on load.
const (
	DefaultStatusColumn = "storystatus(list)"
	DefaultParentColumn = "parentId(List)"
)

// Columns names the source headers of the renamed columns.
type Columns struct {
	Status string `yaml:"status"`
	Parent string `yaml:"parent"`
}

// DefaultColumns matches the dashboard export.
func DefaultColumns() Columns {
	return Columns{Status: DefaultStatusColumn, Parent: DefaultParentColumn}
}

// sourceHeaders maps each field to the headers accepted for it, in priority order.
func (c Columns) sourceHeaders() map[Field][]string {
	status := firstNonEmpty(c.Status, DefaultStatusColumn)
	parent := firstNonEmpty(c.Parent, DefaultParentColumn)
	return map[Field][]string{
		FieldProject:   {string(FieldProject)},
		FieldSprint:    {string(FieldSprint)},
		FieldSprintID:  {string(FieldSprintID)},
		FieldStoryKey:  {string(FieldStoryKey)},
		FieldStoryType: {string(FieldStoryType)},
		FieldStatus:    {status, string(FieldStatus)},
		FieldParent:    {parent, string(FieldParent)},
	}
}

// LoadFile reads a CSV export from disk into a new snapshot.
func LoadFile(path string, cols Columns) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := ReadCSV(f, cols)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return NewSnapshot(path, records, time.Now()), nil
}

// ReadCSV parses rows with named headers, renaming the status and parent
// columns and normalizing story status to done / not done.
func ReadCSV(r io.Reader, cols Columns) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MissingColumnError{Column: string(FieldProject)}
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, seen := index[h]; !seen {
			index[h] = i
		}
	}

	positions := make(map[Field]int, len(Fields))
	accepted := cols.sourceHeaders()
	for _, f := range Fields {
		pos := -1
		for _, name := range accepted[f] {
			if i, ok := index[name]; ok {
				pos = i
				break
			}
		}
		if pos < 0 {
			return nil, &MissingColumnError{Column: accepted[f][0]}
		}
		positions[f] = pos
	}

	var out []Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		cell := func(f Field) string {
			return strings.TrimSpace(row[positions[f]])
		}
		out = append(out, Record{
			ProjectName: cell(FieldProject),
			SprintName:  cell(FieldSprint),
			SprintID:    cell(FieldSprintID),
			StoryKey:    cell(FieldStoryKey),
			StoryType:   cell(FieldStoryType),
			Status:      NormalizeStatus(cell(FieldStatus)),
			ParentID:    cell(FieldParent),
		})
	}
	return out, nil
}

// NormalizeStatus folds a raw status into done / not done. Empty stays null.
func NormalizeStatus(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "":
		return ""
	case StatusDone:
		return StatusDone
	default:
		return StatusNotDone
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
