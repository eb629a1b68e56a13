// Package dashboard assembles the KPIs and summary tables a renderer needs
// for one filter selection.
package dashboard

import (
	"errors"
	"fmt"
	"sort"

	"sprintboard/internal/dataset"
	"sprintboard/internal/pipeline"
)

// Panel names one KPI group or summary table of a view.
type Panel string

const (
	PanelKPIs        Panel = "kpis"
	PanelStatusBar   Panel = "stories_by_project"
	PanelStoryTypes  Panel = "story_types"
	PanelStatusShare Panel = "status_distribution"
	PanelParents     Panel = "stories_by_parent"
)

// AllPanels is the full dashboard, in display order.
var AllPanels = []Panel{PanelKPIs, PanelStatusBar, PanelStoryTypes, PanelStatusShare, PanelParents}

// View states reported to the renderer.
const (
	StateOK            = "ok"
	StateEmpty         = "empty"
	StateInvalidFilter = "invalid_filter"
	StateMissingColumn = "missing_column"
	StateUnavailable   = "unavailable"
)

// ViewSpec says which panels a view shows and how tables are post-processed.
type ViewSpec struct {
	Name              string  `yaml:"name" json:"name"`
	Title             string  `yaml:"title" json:"title"`
	Panels            []Panel `yaml:"panels" json:"panels"`
	PadSingleCategory bool    `yaml:"pad_single_category" json:"pad_single_category"`
	PlaceholderLabel  string  `yaml:"placeholder_label" json:"placeholder_label,omitempty"`
}

// Overview shows every panel.
func Overview() ViewSpec {
	return ViewSpec{
		Name:              "overview",
		Title:             "Project's Dashboard",
		Panels:            append([]Panel(nil), AllPanels...),
		PadSingleCategory: true,
		PlaceholderLabel:  pipeline.DefaultPlaceholder,
	}
}

func (s ViewSpec) shows(p Panel) bool {
	for _, have := range s.Panels {
		if have == p {
			return true
		}
	}
	return false
}

// Validate rejects unknown panel names.
func (s ViewSpec) Validate() error {
	for _, p := range s.Panels {
		known := false
		for _, k := range AllPanels {
			if p == k {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("view %q: unknown panel %q", s.Name, p)
		}
	}
	return nil
}

// KPI is a single scalar shown prominently.
type KPI struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// KPIs carries the two headline numbers.
type KPIs struct {
	SprintCount KPI `json:"sprint_count"`
	StoryCount  KPI `json:"story_count"`
}

// TitledTable is a summary table with its chart title.
type TitledTable struct {
	Title string `json:"title"`
	pipeline.Table
}

// View is the contract handed to the rendering collaborator.
type View struct {
	Name       string                      `json:"name"`
	State      string                      `json:"state"`
	Message    string                      `json:"message,omitempty"`
	SnapshotID string                      `json:"snapshot_id,omitempty"`
	Selection  pipeline.Selection          `json:"selection"`
	Drill      string                      `json:"drill,omitempty"`
	KPIs       *KPIs                       `json:"kpis,omitempty"`
	Tables     map[Panel]TitledTable       `json:"tables"`
	Options    []pipeline.DimensionOptions `json:"options,omitempty"`
	Legend     map[string]string           `json:"legend"`
}

// StatusLegend maps story status to chart colors.
func StatusLegend() map[string]string {
	return map[string]string{
		dataset.StatusDone:    "green",
		dataset.StatusNotDone: "red",
	}
}

// Build runs the pipeline over the snapshot for one selection. drill names
// the project whose status counts should be regrouped by sprint; when empty
// the selected project, if any, is used.
func Build(snap *dataset.Snapshot, spec ViewSpec, sel pipeline.Selection, drill string) (*View, error) {
	if snap == nil {
		return nil, errors.New("no snapshot loaded")
	}
	records := snap.Records()
	options, err := pipeline.Options(records, sel)
	if err != nil {
		return nil, err
	}
	filtered, err := pipeline.ApplyFilters(records, sel)
	if err != nil {
		return nil, err
	}

	view := &View{
		Name:       spec.Name,
		State:      StateOK,
		SnapshotID: snap.ID,
		Selection:  sel,
		Tables:     make(map[Panel]TitledTable),
		Options:    options,
		Legend:     StatusLegend(),
	}
	if err := pipeline.RequireRows(filtered); err != nil {
		view.State = StateEmpty
		view.Message = err.Error()
	}

	if spec.shows(PanelKPIs) {
		sprints, err := pipeline.CountDistinct(filtered, dataset.FieldSprintID)
		if err != nil {
			return nil, err
		}
		view.KPIs = &KPIs{
			SprintCount: KPI{Label: "Number of Sprints", Value: sprints},
			StoryCount:  KPI{Label: "Number of Stories", Value: pipeline.CountRecords(filtered)},
		}
	}

	if drill == "" || drill == pipeline.All {
		drill = sel.Value(pipeline.DimProject)
	} else if !projectPresent(filtered, drill) {
		return nil, fmt.Errorf("%w: drill project %q", pipeline.ErrInvalidFilterValue, drill)
	}
	view.Drill = drill

	type build struct {
		panel Panel
		title string
		run   func() (pipeline.Table, error)
		pad   bool
	}
	builds := []build{
		{PanelStatusBar, "Stories by Project", func() (pipeline.Table, error) {
			return pipeline.StatusBreakdown(filtered, drill)
		}, false},
		{PanelStoryTypes, "Story Counts by Story Type", func() (pipeline.Table, error) {
			return pipeline.SizeBy(filtered, dataset.FieldStoryType, "story_count")
		}, true},
		{PanelStatusShare, "Story Status Distribution", func() (pipeline.Table, error) {
			return pipeline.ValueCounts(filtered, dataset.FieldStatus)
		}, false},
		{PanelParents, "Story by Parent ID", func() (pipeline.Table, error) {
			return pipeline.ValueCounts(filtered, dataset.FieldParent)
		}, false},
	}
	for _, b := range builds {
		if !spec.shows(b.panel) {
			continue
		}
		table, err := b.run()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.panel, err)
		}
		if b.pad && spec.PadSingleCategory {
			table = pipeline.PadSingleCategory(table, spec.PlaceholderLabel)
		}
		title := b.title
		if b.panel == PanelStatusBar && drill != "" {
			title = "Stories by Sprint in " + drill
		}
		view.Tables[b.panel] = TitledTable{Title: title, Table: table}
	}
	return view, nil
}

// StateFor maps a pipeline or load error to the view state shown for it.
func StateFor(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrInvalidFilterValue):
		return StateInvalidFilter
	case errors.Is(err, dataset.ErrMissingColumn):
		return StateMissingColumn
	case errors.Is(err, pipeline.ErrEmptySelection):
		return StateEmpty
	}
	return StateUnavailable
}

// Placeholder is the renderable view for a failed build.
func Placeholder(spec ViewSpec, sel pipeline.Selection, err error) *View {
	v := &View{
		Name:      spec.Name,
		State:     StateFor(err),
		Selection: sel,
		Tables:    make(map[Panel]TitledTable),
		Legend:    StatusLegend(),
	}
	if err != nil {
		v.Message = err.Error()
	}
	return v
}

// PanelNames returns the table panels of a view in a stable order.
func (v *View) PanelNames() []Panel {
	out := make([]Panel, 0, len(v.Tables))
	for p := range v.Tables {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func projectPresent(records []dataset.Record, project string) bool {
	for _, r := range records {
		if r.ProjectName == project {
			return true
		}
	}
	return false
}
