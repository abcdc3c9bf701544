package journey

import (
	"fmt"
	"time"
)

// Stage is one of six ordered lifecycle phases. The zero value is
// StageAuthorization; StageGraduation is terminal.
type Stage int

const (
	// StageAuthorization is the entry stage: consent and onboarding.
	StageAuthorization Stage = iota
	// StageObservation is passive observation of user activity.
	StageObservation
	// StageActivation is the Observer→Grower conversion stage.
	StageActivation
	// StagePractice is active habit practice with coach involvement.
	StagePractice
	// StageStability tracks consecutive qualifying days before graduation.
	StageStability
	// StageGraduation is terminal.
	StageGraduation
)

// stageLabels are the canonical persisted labels, indexed by ordinal.
var stageLabels = [...]string{
	"authorization",
	"observation",
	"activation",
	"practice",
	"stability",
	"graduation",
}

// String returns the canonical label for the stage.
func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageLabels[s]
}

// Valid reports whether s is one of the six defined stages.
func (s Stage) Valid() bool {
	return s >= StageAuthorization && s <= StageGraduation
}

// Terminal reports whether no forward transition exists from s.
func (s Stage) Terminal() bool {
	return s == StageGraduation
}

// Next returns the next ordinal stage. ok is false for the terminal stage.
func (s Stage) Next() (next Stage, ok bool) {
	if !s.Valid() || s.Terminal() {
		return s, false
	}
	return s + 1, true
}

// ParseStage resolves a canonical label back to its Stage.
func ParseStage(label string) (Stage, error) {
	for i, l := range stageLabels {
		if l == label {
			return Stage(i), nil
		}
	}
	return 0, &ValidationError{Field: "stage", Reason: fmt.Sprintf("unrecognized stage %q", label)}
}

// AgencyMode is the categorical summary of how self-directed a user is.
type AgencyMode string

const (
	AgencyPassive      AgencyMode = "passive"
	AgencyTransitional AgencyMode = "transitional"
	AgencyActive       AgencyMode = "active"
)

// Valid reports whether m is one of the three defined modes.
func (m AgencyMode) Valid() bool {
	switch m {
	case AgencyPassive, AgencyTransitional, AgencyActive:
		return true
	}
	return false
}

// TrustLevel is the categorical summary of extended relational trust.
type TrustLevel string

const (
	TrustNotEstablished TrustLevel = "not_established"
	TrustBuilding       TrustLevel = "building"
	TrustEstablished    TrustLevel = "established"
)

// Valid reports whether l is one of the three defined levels.
func (l TrustLevel) Valid() bool {
	switch l {
	case TrustNotEstablished, TrustBuilding, TrustEstablished:
		return true
	}
	return false
}

// Record is the authoritative journey state for a single user.
type Record struct {
	// UserID is the unique key; one record per user.
	UserID string `json:"user_id"`

	// Stage is the current lifecycle stage.
	Stage Stage `json:"stage"`

	// StageEnteredAt is when the current stage was entered.
	StageEnteredAt time.Time `json:"stage_entered_at"`

	// StabilityStart is when stability tracking began. Nil outside S4.
	StabilityStart *time.Time `json:"stability_start_date,omitempty"`

	// StabilityDays counts qualifying days in S4. Zero outside S4.
	StabilityDays int `json:"stability_days"`

	// StabilityCountedOn is the last calendar day (2006-01-02) a stability
	// day was counted. Guards the once-per-day increment invariant.
	StabilityCountedOn string `json:"stability_counted_on,omitempty"`

	// InterruptionCount counts regressions, separately from advances.
	InterruptionCount int `json:"interruption_count"`

	// TransitionCount counts all stage transitions.
	TransitionCount int `json:"transition_count"`

	// AgencyMode is the current categorical agency summary.
	AgencyMode AgencyMode `json:"agency_mode"`

	// AgencyScore is the weighted agency score in [0,1].
	AgencyScore float64 `json:"agency_score"`

	// AgencySignals is the named snapshot of the last computed inputs.
	AgencySignals map[string]float64 `json:"agency_signals,omitempty"`

	// CoachOverride, when set, supersedes the computed agency mode and
	// score for all consumers until explicitly cleared.
	CoachOverride *AgencyMode `json:"coach_agency_override,omitempty"`

	// TrustScore is the weighted trust score in [0,1].
	TrustScore float64 `json:"trust_score"`

	// TrustSignals is the named snapshot of the last computed inputs.
	TrustSignals map[string]float64 `json:"trust_signals,omitempty"`

	// GraduatedAt is set once when the user enters S5.
	GraduatedAt *time.Time `json:"graduated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRecord returns the default record created on first access.
func NewRecord(userID string, now time.Time) *Record {
	return &Record{
		UserID:         userID,
		Stage:          StageAuthorization,
		StageEnteredAt: now,
		AgencyMode:     AgencyPassive,
		TrustScore:     0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TransitionKind distinguishes the audit log entry types.
type TransitionKind string

const (
	TransitionAdvance      TransitionKind = "advance"
	TransitionInterruption TransitionKind = "interruption"
	TransitionGraduation   TransitionKind = "graduation"
)

// Transition is an append-only audit entry for a stage change.
// Entries are never mutated or deleted.
type Transition struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	From      Stage             `json:"from_stage"`
	To        Stage             `json:"to_stage"`
	Kind      TransitionKind    `json:"kind"`
	Reason    string            `json:"reason"`
	Actor     string            `json:"actor"`
	Evidence  map[string]string `json:"evidence,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ScorerName identifies which scorer produced a signal entry.
type ScorerName string

const (
	ScorerAgency ScorerName = "agency"
	ScorerTrust  ScorerName = "trust"
)

// CompositeSignal is the entry name used for the aggregate row appended
// after the per-signal rows of a computation.
const CompositeSignal = "composite"

// SignalEntry is an append-only audit entry for one signal contribution
// within a score computation.
type SignalEntry struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Scorer       ScorerName `json:"scorer"`
	Name         string     `json:"name"`
	Raw          float64    `json:"raw"`
	Weight       float64    `json:"weight"`
	Contribution float64    `json:"contribution"`
	Aggregate    float64    `json:"aggregate"`
	Source       string     `json:"source"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Snapshot is the denormalized cache read by external fast paths. After
// every sync cycle its fields equal the corresponding Record fields.
type Snapshot struct {
	UserID      string     `json:"user_id"`
	Stage       Stage      `json:"stage"`
	AgencyMode  AgencyMode `json:"agency_mode"`
	AgencyScore float64    `json:"agency_score"`
	TrustScore  float64    `json:"trust_score"`
	SyncedAt    time.Time  `json:"synced_at"`
}

// SnapshotFrom derives the cache snapshot for a record. Mutators call
// this inside the same unit of work that writes the record.
func SnapshotFrom(rec *Record, now time.Time) *Snapshot {
	return &Snapshot{
		UserID:      rec.UserID,
		Stage:       rec.Stage,
		AgencyMode:  rec.AgencyMode,
		AgencyScore: rec.AgencyScore,
		TrustScore:  rec.TrustScore,
		SyncedAt:    now,
	}
}

// Matches reports whether the snapshot agrees with the record on every
// cached field, returning the names of any drifted fields.
func (s *Snapshot) Matches(rec *Record) (ok bool, drifted []string) {
	if s.Stage != rec.Stage {
		drifted = append(drifted, "stage")
	}
	if s.AgencyMode != rec.AgencyMode {
		drifted = append(drifted, "agency_mode")
	}
	if s.AgencyScore != rec.AgencyScore {
		drifted = append(drifted, "agency_score")
	}
	if s.TrustScore != rec.TrustScore {
		drifted = append(drifted, "trust_score")
	}
	return len(drifted) == 0, drifted
}
