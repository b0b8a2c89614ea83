package rulesync

import "time"

// State is the point a sync cycle reached.
type State string

const (
	StateStart                State = "START"
	StateCategoriesDiscovered State = "CATEGORIES_DISCOVERED"
	StateWhitelistLoaded      State = "WHITELIST_LOADED"
	StateActiveMapped         State = "ACTIVE_MAPPED"
	StateArtifactBuilt        State = "ARTIFACT_BUILT"

	// Terminal states.
	StateUnchanged           State = "UNCHANGED"
	StateWrittenAndReloaded  State = "WRITTEN_AND_RELOADED"
	StateWrittenReloadFailed State = "WRITTEN_RELOAD_FAILED"
	StateAbortedNoCategories State = "ABORTED_NO_CATEGORIES"
	StateAbortedNoActive     State = "ABORTED_NO_ACTIVE"
	StateFailed              State = "FAILED"
)

// Terminal reports whether s ends a cycle.
func (s State) Terminal() bool {
	switch s {
	case StateUnchanged, StateWrittenAndReloaded, StateWrittenReloadFailed,
		StateAbortedNoCategories, StateAbortedNoActive, StateFailed:
		return true
	}
	return false
}

// OK reports whether the engine runs the policy the cycle computed.
func (s State) OK() bool {
	return s == StateUnchanged || s == StateWrittenAndReloaded
}

// Result describes one sync cycle.
type Result struct {
	CycleID    string        `json:"cycleId"`
	State      State         `json:"state"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"durationNanos"`
	Active     []string      `json:"activeProtocols"`
	Categories []string      `json:"categories"`
	Whitelist  []string      `json:"whitelist"`
	Enabled    []string      `json:"enabled"`
	Disabled   []string      `json:"disabled"`
	Checksum   string        `json:"checksum,omitempty"`
	Written    bool          `json:"written"`
	Reloaded   bool          `json:"reloaded"`
	Error      string        `json:"error,omitempty"`
}
