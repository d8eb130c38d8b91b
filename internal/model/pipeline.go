package model

// Stage is the lifecycle stage of a pipeline entry.
type Stage string

const (
	StageDiscovered Stage = "discovered"
	StageDrafting   Stage = "drafting"
	StageSubmitted  Stage = "submitted"
	StageAwarded    Stage = "awarded"
	StageArchived   Stage = "archived"
	StageRejected   Stage = "rejected"
)

// Terminal reports whether the stage is one of the two terminal stages.
// Entries in a terminal stage do not count as active for candidate selection.
func (s Stage) Terminal() bool {
	return s == StageArchived || s == StageRejected
}

// PipelineEntry associates a tracked project with a grant. Owned by the
// surrounding application; read-only to the verification service.
type PipelineEntry struct {
	ID      string `json:"id"`
	GrantID string `json:"grant_id"`
	Stage   Stage  `json:"stage"`
}
