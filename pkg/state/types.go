package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// FormatVersion is the version written into every state document.
const FormatVersion = "1.0"

// SpaceStatus is the lifecycle status of a tracked space.
type SpaceStatus string

const (
	// StatusPending means the space is tracked but has never been applied.
	StatusPending SpaceStatus = "PENDING"

	// StatusApplied means the remote space matches the applied config.
	StatusApplied SpaceStatus = "APPLIED"

	// StatusModified means the local config changed since the last apply.
	StatusModified SpaceStatus = "MODIFIED"

	// StatusDrift means the remote space changed outside of genie-forge.
	StatusDrift SpaceStatus = "DRIFT"

	// StatusDestroyed means the remote space was deleted.
	StatusDestroyed SpaceStatus = "DESTROYED"
)

// Validate checks if the status is valid.
func (s SpaceStatus) Validate() error {
	switch s {
	case StatusPending, StatusApplied, StatusModified, StatusDrift, StatusDestroyed:
		return nil
	default:
		return fmt.Errorf("invalid space status: %s", s)
	}
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *SpaceStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = SpaceStatus(str)
	return s.Validate()
}

// SpaceState is the tracked record of one space in one environment.
//
// RemoteID is set once the space has been created remotely. A tracked
// space without one has not reached APPLIED.
type SpaceState struct {
	LogicalID   string      `json:"logical_id"`
	RemoteID    *string     `json:"databricks_space_id"`
	Title       string      `json:"title"`
	ConfigHash  string      `json:"config_hash"`
	AppliedHash *string     `json:"applied_hash"`
	Status      SpaceStatus `json:"status"`
	LastApplied *time.Time  `json:"last_applied"`
	Error       *string     `json:"error"`
}

// HasRemoteID reports whether the space has a recorded remote id.
func (s *SpaceState) HasRemoteID() bool {
	return s.RemoteID != nil && *s.RemoteID != ""
}

// RemoteIDOrEmpty returns the remote id or "".
func (s *SpaceState) RemoteIDOrEmpty() string {
	if s.RemoteID == nil {
		return ""
	}
	return *s.RemoteID
}

// MarkApplied records a successful create or update.
func (s *SpaceState) MarkApplied(remoteID, title, hash string, at time.Time) {
	s.RemoteID = &remoteID
	s.Title = title
	s.ConfigHash = hash
	s.AppliedHash = &hash
	s.Status = StatusApplied
	s.LastApplied = &at
	s.Error = nil
}

// MarkFailed records the error of a failed operation.
func (s *SpaceState) MarkFailed(msg string) {
	s.Error = &msg
}

// EnvironmentState holds all spaces tracked for one environment.
type EnvironmentState struct {
	WorkspaceURL string                 `json:"workspace_url"`
	LastApplied  *time.Time             `json:"last_applied"`
	Spaces       map[string]*SpaceState `json:"spaces"`
}

// NewEnvironmentState creates an empty environment bound to an endpoint.
func NewEnvironmentState(workspaceURL string) *EnvironmentState {
	return &EnvironmentState{
		WorkspaceURL: workspaceURL,
		Spaces:       make(map[string]*SpaceState),
	}
}

// Space returns the tracked space with the given logical id.
func (e *EnvironmentState) Space(logicalID string) (*SpaceState, bool) {
	s, ok := e.Spaces[logicalID]
	return s, ok
}

// LogicalIDs returns the tracked logical ids in sorted order.
func (e *EnvironmentState) LogicalIDs() []string {
	ids := make([]string, 0, len(e.Spaces))
	for id := range e.Spaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ProjectState is the root of the state document.
type ProjectState struct {
	Version      string                       `json:"version"`
	ProjectID    string                       `json:"project_id"`
	ProjectName  string                       `json:"project_name,omitempty"`
	CreatedAt    time.Time                    `json:"created_at"`
	Environments map[string]*EnvironmentState `json:"environments"`
}

// NewProjectState creates an empty project state.
func NewProjectState(projectID, projectName string, now time.Time) *ProjectState {
	return &ProjectState{
		Version:      FormatVersion,
		ProjectID:    projectID,
		ProjectName:  projectName,
		CreatedAt:    now,
		Environments: make(map[string]*EnvironmentState),
	}
}

// Environment returns the named environment.
func (p *ProjectState) Environment(name string) (*EnvironmentState, bool) {
	e, ok := p.Environments[name]
	return e, ok
}

// EnvironmentNames returns the environment names in sorted order.
func (p *ProjectState) EnvironmentNames() []string {
	names := make([]string, 0, len(p.Environments))
	for name := range p.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalize fills maps that a hand-edited or older document may omit.
func (p *ProjectState) normalize() {
	if p.Version == "" {
		p.Version = FormatVersion
	}
	if p.Environments == nil {
		p.Environments = make(map[string]*EnvironmentState)
	}
	for name, env := range p.Environments {
		if env == nil {
			env = &EnvironmentState{}
			p.Environments[name] = env
		}
		if env.Spaces == nil {
			env.Spaces = make(map[string]*SpaceState)
		}
		for id, s := range env.Spaces {
			if s == nil {
				delete(env.Spaces, id)
				continue
			}
			if s.LogicalID == "" {
				s.LogicalID = id
			}
			if s.Status == "" {
				s.Status = StatusPending
			}
		}
	}
}
