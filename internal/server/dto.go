package server

import (
	"trackline/internal/domain"
	"trackline/internal/engine"
)

// Request payloads

type CreateUnitRequest struct {
	WorkstreamID    string  `json:"workstream_id"`
	Title           string  `json:"title"`
	Description     *string `json:"description,omitempty"`
	Deadline        *string `json:"deadline,omitempty" format:"date-time"`
	HighCriticality bool    `json:"high_criticality,omitempty"`
	EvidencePolicy  *string `json:"evidence_policy,omitempty"`
}

type SubmitEvidenceRequest struct {
	Type     string  `json:"type" enum:"photo,document,certificate,note"`
	BlobPath *string `json:"blob_path,omitempty"`
}

type DecideEvidenceRequest struct {
	Action string  `json:"action" enum:"approve,reject"`
	Reason *string `json:"reason,omitempty"`
}

type ManualEscalateRequest struct {
	Reason      string  `json:"reason"`
	MarkBlocked bool    `json:"mark_blocked,omitempty"`
	BlockReason *string `json:"block_reason,omitempty"`
}

type ResolveEscalationRequest struct {
	Note *string `json:"note,omitempty"`
}

type UnblockRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type SweepRequest struct {
	Now *string `json:"now,omitempty" format:"date-time"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role" enum:"platform_admin,program_owner,workstream_lead,field_contributor,client_viewer"`
	OrgID  string `json:"org_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type UnitResponse struct {
	ID              string  `json:"id"`
	WorkstreamID    string  `json:"workstream_id"`
	OrgID           string  `json:"org_id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Deadline        *string `json:"deadline,omitempty" format:"date-time"`
	Status          string  `json:"status" enum:"GREEN,RED,BLOCKED"`
	StatusAt        *string `json:"status_computed_at,omitempty" format:"date-time"`
	EscalationLevel int     `json:"current_escalation_level"`
	IsBlocked       bool    `json:"is_blocked"`
	BlockedReason   *string `json:"blocked_reason,omitempty"`
	IsConfirmed     bool    `json:"is_confirmed"`
	HighCriticality bool    `json:"high_criticality"`
	IsArchived      bool    `json:"is_archived"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	UpdatedAt       string  `json:"updated_at" format:"date-time"`
}

func toUnitResponse(u domain.Unit) UnitResponse {
	return UnitResponse{
		ID:              u.ID,
		WorkstreamID:    u.WorkstreamID,
		OrgID:           u.OrgID,
		Title:           u.Title,
		Description:     u.Description,
		Deadline:        u.Deadline,
		Status:          u.ComputedStatus,
		StatusAt:        u.StatusComputedAt,
		EscalationLevel: u.EscalationLevel,
		IsBlocked:       u.IsBlocked,
		BlockedReason:   u.BlockedReason,
		IsConfirmed:     u.IsConfirmed,
		HighCriticality: u.HighCriticality,
		IsArchived:      u.IsArchived,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

type EvidenceResponse struct {
	ID              string  `json:"id"`
	UnitID          string  `json:"unit_id"`
	Type            string  `json:"type"`
	FileURL         string  `json:"file_url,omitempty"`
	UploaderID      string  `json:"uploader_id"`
	UploadedAt      string  `json:"uploaded_at" format:"date-time"`
	ApprovalStatus  string  `json:"approval_status" enum:"pending,approved,rejected"`
	DecidedBy       *string `json:"decided_by,omitempty"`
	DecidedAt       *string `json:"decided_at,omitempty" format:"date-time"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	IsSuperseded    bool    `json:"is_superseded"`
}

func toEvidenceResponse(ev domain.Evidence) EvidenceResponse {
	return EvidenceResponse{
		ID:              ev.ID,
		UnitID:          ev.UnitID,
		Type:            ev.Type,
		FileURL:         ev.FileURL,
		UploaderID:      ev.UploaderID,
		UploadedAt:      ev.UploadedAt,
		ApprovalStatus:  ev.ApprovalStatus,
		DecidedBy:       ev.DecidedBy,
		DecidedAt:       ev.DecidedAt,
		RejectionReason: ev.RejectionReason,
		IsSuperseded:    ev.IsSuperseded,
	}
}

type EscalationResponse struct {
	ID              string  `json:"id"`
	UnitID          string  `json:"unit_id"`
	Level           int     `json:"level"`
	Type            string  `json:"escalation_type" enum:"automatic,manual"`
	Reason          string  `json:"reason"`
	Status          string  `json:"status" enum:"active,resolved"`
	ProposedBlocked bool    `json:"proposed_blocked,omitempty"`
	ProposedByRole  *string `json:"proposed_by_role,omitempty"`
	CreatedBy       string  `json:"created_by"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	ResolvedAt      *string `json:"resolved_at,omitempty" format:"date-time"`
	ResolvedBy      *string `json:"resolved_by,omitempty"`
}

func toEscalationResponse(es domain.Escalation) EscalationResponse {
	return EscalationResponse{
		ID:              es.ID,
		UnitID:          es.UnitID,
		Level:           es.Level,
		Type:            es.Type,
		Reason:          es.Reason,
		Status:          es.Status,
		ProposedBlocked: es.ProposedBlocked,
		ProposedByRole:  es.ProposedByRole,
		CreatedBy:       es.CreatedBy,
		CreatedAt:       es.CreatedAt,
		ResolvedAt:      es.ResolvedAt,
		ResolvedBy:      es.ResolvedBy,
	}
}

type AttentionResponse struct {
	Items  []engine.AttentionItem `json:"items"`
	Counts map[string]int         `json:"counts"`
}

type NotificationResponse struct {
	ID             string  `json:"id"`
	RecipientEmail string  `json:"recipient_email"`
	Subject        string  `json:"subject"`
	Status         string  `json:"status" enum:"pending,sent,failed"`
	Attempts       int     `json:"attempts"`
	LastError      *string `json:"last_error,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	SentAt         *string `json:"sent_at,omitempty" format:"date-time"`
}

func toNotificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:             n.ID,
		RecipientEmail: n.RecipientEmail,
		Subject:        n.Subject,
		Status:         n.Status,
		Attempts:       n.Attempts,
		LastError:      n.LastError,
		CreatedAt:      n.CreatedAt,
		SentAt:         n.SentAt,
	}
}

type WhoAmIResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	OrgID  string `json:"org_id"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
