package dataset

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Field names a record column as it appears after renaming.
type Field string

const (
	FieldProject   Field = "projectName"
	FieldSprint    Field = "sprintName"
	FieldSprintID  Field = "sprintId"
	FieldStoryKey  Field = "storyKey"
	FieldStoryType Field = "storyType"
	FieldStatus    Field = "story status"
	FieldParent    Field = "parent Id"
)

// Fields lists every column a snapshot must carry.
var Fields = []Field{
	FieldProject,
	FieldSprint,
	FieldSprintID,
	FieldStoryKey,
	FieldStoryType,
	FieldStatus,
	FieldParent,
}

// Story status values after normalization.
const (
	StatusDone    = "done"
	StatusNotDone = "not done"
)

var ErrMissingColumn = errors.New("missing column")

// MissingColumnError names the absent column.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q", e.Column)
}

func (e *MissingColumnError) Unwrap() error { return ErrMissingColumn }

// Record is one story row. Empty strings are null cells.
type Record struct {
	ProjectName string `json:"projectName"`
	SprintName  string `json:"sprintName"`
	SprintID    string `json:"sprintId"`
	StoryKey    string `json:"storyKey"`
	StoryType   string `json:"storyType"`
	Status      string `json:"story status"`
	ParentID    string `json:"parent Id,omitempty"`
}

// Value returns the field value and whether it is non-null.
func (r Record) Value(f Field) (string, bool) {
	var v string
	switch f {
	case FieldProject:
		v = r.ProjectName
	case FieldSprint:
		v = r.SprintName
	case FieldSprintID:
		v = r.SprintID
	case FieldStoryKey:
		v = r.StoryKey
	case FieldStoryType:
		v = r.StoryType
	case FieldStatus:
		v = r.Status
	case FieldParent:
		v = r.ParentID
	default:
		return "", false
	}
	return v, v != ""
}

// Known reports whether f is a record column.
func Known(f Field) bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

// CheckField fails with a MissingColumnError when f is not a record column.
func CheckField(f Field) error {
	if !Known(f) {
		return &MissingColumnError{Column: string(f)}
	}
	return nil
}

// Snapshot is an immutable record set loaded once per session.
type Snapshot struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loaded_at"`
	records  []Record
}

// NewSnapshot copies records into a fresh snapshot.
func NewSnapshot(source string, records []Record, loadedAt time.Time) *Snapshot {
	return RestoreSnapshot(uuid.NewString(), source, records, loadedAt)
}

// RestoreSnapshot rebuilds a snapshot under a known id.
func RestoreSnapshot(id, source string, records []Record, loadedAt time.Time) *Snapshot {
	return &Snapshot{
		ID:       id,
		Source:   source,
		LoadedAt: loadedAt.UTC(),
		records:  append([]Record(nil), records...),
	}
}

// Records returns a copy of the snapshot rows in load order.
func (s *Snapshot) Records() []Record {
	return append([]Record(nil), s.records...)
}

func (s *Snapshot) Len() int { return len(s.records) }
