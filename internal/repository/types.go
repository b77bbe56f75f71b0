package repository

import "time"

// ── Domain types for the approval engine ─────────────────────────────────────

// MatchPolicy combines a flow's rules.
type MatchPolicy string

const (
	MatchAll MatchPolicy = "ALL" // every rule must match
	MatchAny MatchPolicy = "ANY" // at least one rule must match
)

// Operator is a rule comparison operator.
type Operator string

const (
	OpEqual     Operator = "="
	OpNotEqual  Operator = "!="
	OpGreater   Operator = ">"
	OpGreaterEq Operator = ">="
	OpLess      Operator = "<"
	OpLessEq    Operator = "<="
	OpIn        Operator = "IN"      // value is a comma-separated literal list
	OpBetween   Operator = "BETWEEN" // value is "lo,hi"
)

// ValidOperators is the closed operator set accepted on flow save.
var ValidOperators = map[Operator]bool{
	OpEqual: true, OpNotEqual: true,
	OpGreater: true, OpGreaterEq: true,
	OpLess: true, OpLessEq: true,
	OpIn: true, OpBetween: true,
}

// ApproverType discriminates how a step's concrete approver is resolved.
type ApproverType string

const (
	ApproverFixedUser         ApproverType = "fixed_user"
	ApproverRole              ApproverType = "role"
	ApproverImmediateSuperior ApproverType = "immediate_superior"
	ApproverDepartmentHead    ApproverType = "department_head"
)

// ValidApproverTypes is the closed approver-type set accepted on flow save.
var ValidApproverTypes = map[ApproverType]bool{
	ApproverFixedUser: true, ApproverRole: true,
	ApproverImmediateSuperior: true, ApproverDepartmentHead: true,
}

// InstanceStatus is the approval instance lifecycle state.
type InstanceStatus string

const (
	StatusPending   InstanceStatus = "pending"
	StatusApproved  InstanceStatus = "approved"
	StatusRejected  InstanceStatus = "rejected"
	StatusCancelled InstanceStatus = "cancelled"
	StatusExpired   InstanceStatus = "expired"
)

var terminalStatuses = map[InstanceStatus]bool{
	StatusApproved:  true,
	StatusRejected:  true,
	StatusCancelled: true,
	StatusExpired:   true,
}

// IsTerminal reports whether no further transitions may leave this status.
func (s InstanceStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// Action is a decision-log action.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
	ActionExpire  Action = "expire"
)

// SystemActorID marks machine-initiated decision entries (expiry).
const SystemActorID = "system"

// Module is a business domain whose requests may require approval.
type Module struct {
	ID        string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApprovalFlow is a reusable routing template scoped to one module.
// Templates are read-only inputs to resolution; the engine never mutates
// them at runtime.
type ApprovalFlow struct {
	ID            string
	ModuleID      string
	Name          string
	MatchPolicy   MatchPolicy
	IsDefault     bool
	IsActive      bool
	TimeoutPeriod *time.Duration // nil = steps never expire
	Priority      int            // lower = evaluated first
	Rules         []*FlowRule
	Steps         []*FlowStep
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FlowRule is one condition belonging to a flow. Field is matched
// literally against the intake data dictionary, with no naming
// normalization; a missing key is a non-match.
type FlowRule struct {
	ID        string
	FlowID    string
	Field     string
	Operator  Operator
	Value     string // string-encoded, operator-dependent
	RuleOrder int
}

// FlowStep is one ordered position in a flow's approver sequence.
type FlowStep struct {
	ID           string
	FlowID       string
	StepOrder    int // contiguous from 1 within a flow
	ApproverType ApproverType
	ApproverRef  *string // user id for fixed_user, role id for role
	IsActive     bool
}

// InstanceStep is the snapshot of a flow step frozen into an instance at
// creation time, so later template edits never alter in-flight instances.
type InstanceStep struct {
	ID           string
	InstanceID   string
	StepOrder    int
	ApproverType ApproverType
	ApproverRef  *string
}

// DecisionEntry is one immutable record in an instance's decision log.
// Exactly one entry is appended per committed transition.
type DecisionEntry struct {
	ID         string
	InstanceID string
	StepOrder  int
	ApproverID string // SystemActorID for expiry
	Action     Action
	Comment    *string
	CreatedAt  time.Time
}

// ApprovalInstance is one execution of a resolved flow against one
// submitted request. Owned exclusively by the orchestrator; Version is
// the optimistic-concurrency counter checked on every transition.
type ApprovalInstance struct {
	ID                  string
	ModuleID            string
	RequestID           string // opaque reference into Request Intake
	FlowID              string
	CurrentStepOrder    int
	CurrentApproverIDs  []string // concrete identities eligible to act now
	CurrentStepDeadline *time.Time
	TimeoutPeriod       *time.Duration // frozen from the flow at creation
	Status              InstanceStatus
	CreatedBy           string
	CreatedAt           time.Time
	DecidedAt           *time.Time
	Version             int64
	UpdatedAt           time.Time
	Steps               []*InstanceStep  // frozen step sequence, ordered
	Decisions           []*DecisionEntry // ordered oldest-first
}

// EligibleFor reports whether actorID may act on the current pending step.
func (i *ApprovalInstance) EligibleFor(actorID string) bool {
	for _, id := range i.CurrentApproverIDs {
		if id == actorID {
			return true
		}
	}
	return false
}
