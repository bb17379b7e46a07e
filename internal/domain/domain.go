package domain

// Role is the single platform role an actor holds.
type Role string

const (
	RolePlatformAdmin    Role = "platform_admin"
	RoleProgramOwner     Role = "program_owner"
	RoleWorkstreamLead   Role = "workstream_lead"
	RoleFieldContributor Role = "field_contributor"
	RoleClientViewer     Role = "client_viewer"
)

// KnownRoles lists every role the platform accepts, highest authority first.
var KnownRoles = []Role{
	RolePlatformAdmin,
	RoleProgramOwner,
	RoleWorkstreamLead,
	RoleFieldContributor,
	RoleClientViewer,
}

func ValidRole(r Role) bool {
	for _, k := range KnownRoles {
		if k == r {
			return true
		}
	}
	return false
}

// Unit statuses.
const (
	StatusGreen   = "GREEN"
	StatusRed     = "RED"
	StatusBlocked = "BLOCKED"
)

// Evidence approval states.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Escalation types and states.
const (
	EscalationAutomatic = "automatic"
	EscalationManual    = "manual"

	EscalationActive   = "active"
	EscalationResolved = "resolved"
)

// Notification delivery states.
const (
	NotifyPending = "pending"
	NotifySent    = "sent"
	NotifyFailed  = "failed"
)

const MaxEscalationLevel = 3

// Principal is the resolved acting identity on every engine call.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	OrgID  string `json:"org_id"`
}

type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Client struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Program struct {
	ID        string `json:"id"`
	ClientID  string `json:"client_id"`
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Workstream struct {
	ID        string `json:"id"`
	ProgramID string `json:"program_id"`
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Unit is the atomic trackable deliverable.
type Unit struct {
	ID                 string  `json:"id"`
	WorkstreamID       string  `json:"workstream_id"`
	OrgID              string  `json:"org_id"`
	Title              string  `json:"title"`
	Description        string  `json:"description,omitempty"`
	Deadline           *string `json:"deadline,omitempty" format:"date-time"`
	ComputedStatus     string  `json:"computed_status" enum:"GREEN,RED,BLOCKED"`
	StatusComputedAt   *string `json:"status_computed_at,omitempty" format:"date-time"`
	EscalationLevel    int     `json:"current_escalation_level"`
	IsBlocked          bool    `json:"is_blocked"`
	BlockedReason      *string `json:"blocked_reason,omitempty"`
	BlockedAt          *string `json:"blocked_at,omitempty" format:"date-time"`
	BlockedBy          *string `json:"blocked_by,omitempty"`
	IsConfirmed        bool    `json:"is_confirmed"`
	HighCriticality    bool    `json:"high_criticality"`
	IsArchived         bool    `json:"is_archived"`
	EvidencePolicyJSON *string `json:"evidence_policy_json,omitempty"`
	CreatedBy          string  `json:"created_by"`
	CreatedByRole      Role    `json:"created_by_role"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
	UpdatedAt          string  `json:"updated_at" format:"date-time"`
}

// Evidence is a proof record attached to exactly one unit.
type Evidence struct {
	ID              string  `json:"id"`
	UnitID          string  `json:"unit_id"`
	OrgID           string  `json:"org_id"`
	Type            string  `json:"type" enum:"photo,document,certificate,note"`
	FileURL         string  `json:"file_url,omitempty"`
	UploaderID      string  `json:"uploader_id"`
	UploaderEmail   string  `json:"uploader_email"`
	UploadedAt      string  `json:"uploaded_at" format:"date-time"`
	ApprovalStatus  string  `json:"approval_status" enum:"pending,approved,rejected"`
	DecidedBy       *string `json:"decided_by,omitempty"`
	DecidedAt       *string `json:"decided_at,omitempty" format:"date-time"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	IsValid         bool    `json:"is_valid"`
	IsSuperseded    bool    `json:"is_superseded"`
	SupersededBy    *string `json:"superseded_by,omitempty"`
}

// Escalation is an append-only audit fact; rows are resolved, never deleted.
type Escalation struct {
	ID               string  `json:"id"`
	UnitID           string  `json:"unit_id"`
	OrgID            string  `json:"org_id"`
	Level            int     `json:"level"`
	Type             string  `json:"escalation_type" enum:"automatic,manual"`
	Reason           string  `json:"reason"`
	Status           string  `json:"status" enum:"active,resolved"`
	VisibleRolesJSON string  `json:"visible_roles_json,omitempty"`
	ProposedBlocked  bool    `json:"proposed_blocked"`
	ProposedByRole   *string `json:"proposed_by_role,omitempty"`
	CreatedBy        string  `json:"created_by"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	ResolvedAt       *string `json:"resolved_at,omitempty" format:"date-time"`
	ResolvedBy       *string `json:"resolved_by,omitempty"`
}

// Notification is a queued outbound message handed to the delivery collaborator.
type Notification struct {
	ID             string  `json:"id"`
	RecipientID    string  `json:"recipient_id,omitempty"`
	RecipientEmail string  `json:"recipient_email"`
	Channel        string  `json:"channel"`
	Subject        string  `json:"subject"`
	Body           string  `json:"body"`
	PayloadJSON    string  `json:"payload_json,omitempty"`
	Status         string  `json:"status" enum:"pending,sent,failed"`
	Attempts       int     `json:"attempts"`
	LastError      *string `json:"last_error,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	SentAt         *string `json:"sent_at,omitempty" format:"date-time"`
}

type Actor struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	OrgID     string `json:"org_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
