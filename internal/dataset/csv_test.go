package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `projectName,sprintName,sprintId,storyKey,storyType,storystatus(list),parentId(List)
Apollo,Sprint 1,11,AP-1,Story,Done,AP-100
Apollo,Sprint 1,11,AP-2,Bug,In Progress,
Zephyr,Sprint 7,70,ZE-9,Story, not done ,ZE-1
`

func TestReadCSVRenamesAndNormalizes(t *testing.T) {
	records, err := ReadCSV(strings.NewReader(sampleCSV), DefaultColumns())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, Record{
		ProjectName: "Apollo",
		SprintName:  "Sprint 1",
		SprintID:    "11",
		StoryKey:    "AP-1",
		StoryType:   "Story",
		Status:      StatusDone,
		ParentID:    "AP-100",
	}, records[0])
	assert.Equal(t, StatusNotDone, records[1].Status)
	assert.Equal(t, StatusNotDone, records[2].Status)

	_, ok := records[1].Value(FieldParent)
	assert.False(t, ok, "empty parent cell should be null")
}

func TestReadCSVAcceptsRenamedHeaders(t *testing.T) {
	in := "storyKey,projectName,sprintName,sprintId,storyType,story status,parent Id\nK-1,P,S,1,Task,done,\n"
	records, err := ReadCSV(strings.NewReader(in), DefaultColumns())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "K-1", records[0].StoryKey)
	assert.Equal(t, StatusDone, records[0].Status)
}

func TestReadCSVCustomColumns(t *testing.T) {
	in := "projectName,sprintName,sprintId,storyKey,storyType,state,epic\nP,S,1,K-1,Task,DONE,E-1\n"
	records, err := ReadCSV(strings.NewReader(in), Columns{Status: "state", Parent: "epic"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusDone, records[0].Status)
	assert.Equal(t, "E-1", records[0].ParentID)
}

func TestReadCSVMissingColumn(t *testing.T) {
	in := "projectName,sprintName,sprintId,storyKey,storyType,parentId(List)\nP,S,1,K,Bug,\n"
	_, err := ReadCSV(strings.NewReader(in), DefaultColumns())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumn)

	var mc *MissingColumnError
	require.ErrorAs(t, err, &mc)
	assert.Equal(t, DefaultStatusColumn, mc.Column)
}

func TestReadCSVEmptyInput(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), DefaultColumns())
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestReadCSVHeaderOnly(t *testing.T) {
	in := "projectName,sprintName,sprintId,storyKey,storyType,storystatus(list),parentId(List)\n"
	records, err := ReadCSV(strings.NewReader(in), DefaultColumns())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadFileBuildsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	snap, err := LoadFile(path, DefaultColumns())
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, path, snap.Source)
	assert.Equal(t, 3, snap.Len())

	rows := snap.Records()
	rows[0].ProjectName = "mutated"
	assert.Equal(t, "Apollo", snap.Records()[0].ProjectName, "snapshot must not share its backing slice")
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]string{
		"":         "",
		"done":     StatusDone,
		" DONE ":   StatusDone,
		"not done": StatusNotDone,
		"To Do":    StatusNotDone,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeStatus(raw), "raw=%q", raw)
	}
}

func TestCheckField(t *testing.T) {
	assert.NoError(t, CheckField(FieldStoryKey))
	assert.ErrorIs(t, CheckField(Field("assignee")), ErrMissingColumn)
}
