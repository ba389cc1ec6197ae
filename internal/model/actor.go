package model

import "time"

// Role is the JWT role claim of a caller.
type Role string

const (
	RoleRequestor  Role = "REQUESTOR"
	RoleAdmin      Role = "ADMIN"
	RoleStaff      Role = "STAFF"
	RoleSuperAdmin Role = "SUPER_ADMIN"
	// RoleSystem is never issued in a token; it marks automatic
	// transitions such as the conflict cascade.
	RoleSystem Role = "SYSTEM"
)

// Valid reports whether r may appear in a token.
func (r Role) Valid() bool {
	switch r {
	case RoleRequestor, RoleAdmin, RoleStaff, RoleSuperAdmin:
		return true
	}
	return false
}

// Actor is the identity on whose behalf a workflow call is made.
type Actor struct {
	ID   uint64
	Role Role
}

// SystemActor is used for automatic transitions.
var SystemActor = Actor{Role: RoleSystem}

// DecisionStage is the approval gate a decision belongs to.
type DecisionStage string

const (
	StageConcept   DecisionStage = "CONCEPT"
	StageResources DecisionStage = "RESOURCES"
	StageFinal     DecisionStage = "FINAL"
)

// DecisionOutcome is what happened at a gate.
type DecisionOutcome string

const (
	OutcomeApproved         DecisionOutcome = "APPROVED"
	OutcomeRejected         DecisionOutcome = "REJECTED"
	OutcomeConflictRejected DecisionOutcome = "CONFLICT_REJECTED"
	OutcomeRescheduled      DecisionOutcome = "RESCHEDULED"
	OutcomeCompleted        DecisionOutcome = "COMPLETED"
	OutcomeArchived         DecisionOutcome = "ARCHIVED"
)

// ApprovalDecision is one append-only entry in an event's audit trail.
type ApprovalDecision struct {
	ID        uint64
	EventID   uint64
	Stage     DecisionStage
	ActorRole Role
	ActorID   uint64
	Outcome   DecisionOutcome
	Reason    string
	CreatedAt time.Time
}

// Suggestion is what a Predictor proposes for an event.
type Suggestion struct {
	BudgetCents int64
	Timeline    []TimelinePhase
	Equipment   []SuggestedEquipment
}

// SuggestedEquipment is one predicted equipment need.
type SuggestedEquipment struct {
	ItemName string
	Quantity int
}
