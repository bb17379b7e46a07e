package tracklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Trackline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Unit represents the API work unit model (partial).
type Unit struct {
	ID              string `json:"id"`
	WorkstreamID    string `json:"workstream_id"`
	OrgID           string `json:"org_id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Status          string `json:"status"`
	EscalationLevel int    `json:"current_escalation_level"`
	HighCriticality bool   `json:"high_criticality"`
	IsConfirmed     bool   `json:"is_confirmed"`
	IsBlocked       bool   `json:"is_blocked"`
	BlockedReason   string `json:"blocked_reason,omitempty"`
	IsArchived      bool   `json:"is_archived"`
	Deadline        string `json:"deadline,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// Evidence represents a submitted proof entry.
type Evidence struct {
	ID              string `json:"id"`
	UnitID          string `json:"unit_id"`
	Type            string `json:"type"`
	FileURL         string `json:"file_url,omitempty"`
	UploaderID      string `json:"uploader_id"`
	UploadedAt      string `json:"uploaded_at"`
	ApprovalStatus  string `json:"approval_status"`
	DecidedBy       string `json:"decided_by,omitempty"`
	DecidedAt       string `json:"decided_at,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	IsSuperseded    bool   `json:"is_superseded"`
}

// Escalation represents an escalation record.
type Escalation struct {
	ID              string `json:"id"`
	UnitID          string `json:"unit_id"`
	Level           int    `json:"level"`
	Type            string `json:"escalation_type"`
	Reason          string `json:"reason"`
	Status          string `json:"status"`
	ProposedBlocked bool   `json:"proposed_blocked,omitempty"`
	CreatedBy       string `json:"created_by"`
	CreatedAt       string `json:"created_at"`
	ResolvedAt      string `json:"resolved_at,omitempty"`
	ResolvedBy      string `json:"resolved_by,omitempty"`
}

// AttentionItem is one ranked entry in the attention queue.
type AttentionItem struct {
	Class           string `json:"class"`
	Score           int    `json:"score"`
	UnitID          string `json:"unit_id"`
	UnitTitle       string `json:"unit_title"`
	Status          string `json:"status"`
	EscalationLevel int    `json:"escalation_level"`
	HighCriticality bool   `json:"high_criticality"`
	Deadline        string `json:"deadline,omitempty"`
	ReferenceID     string `json:"reference_id,omitempty"`
	Summary         string `json:"summary"`
}

// AttentionQueue is the ranked queue plus per-class counts.
type AttentionQueue struct {
	Items  []AttentionItem `json:"items"`
	Counts map[string]int  `json:"counts"`
}

// SweepReport summarizes one escalation sweep.
type SweepReport struct {
	UnitsChecked         int      `json:"units_checked"`
	EscalationsCreated   int      `json:"escalations_created"`
	NotificationsCreated int      `json:"notifications_created"`
	RemindersSent        int      `json:"reminders_sent"`
	Errors               []string `json:"errors,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateUnitRequest carries the fields for CreateUnit.
type CreateUnitRequest struct {
	WorkstreamID    string `json:"workstream_id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Deadline        string `json:"deadline,omitempty"`
	HighCriticality bool   `json:"high_criticality,omitempty"`
	EvidencePolicy  string `json:"evidence_policy,omitempty"`
}

// CreateUnit creates a work unit.
func (c *Client) CreateUnit(ctx context.Context, req CreateUnitRequest) (Unit, error) {
	var resp Unit
	err := c.do(ctx, http.MethodPost, "units", req, &resp)
	return resp, err
}

// GetUnit fetches a unit by id.
func (c *Client) GetUnit(ctx context.Context, unitID string) (Unit, error) {
	var resp Unit
	err := c.do(ctx, http.MethodGet, "units/"+url.PathEscape(unitID), nil, &resp)
	return resp, err
}

// ListUnits lists units, optionally filtered by workstream and status.
func (c *Client) ListUnits(ctx context.Context, workstreamID, status string) ([]Unit, error) {
	endpoint := "units"
	q := url.Values{}
	if workstreamID != "" {
		q.Set("workstream_id", workstreamID)
	}
	if status != "" {
		q.Set("status", status)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Unit
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ConfirmUnit confirms a contributor-created unit.
func (c *Client) ConfirmUnit(ctx context.Context, unitID string) (Unit, error) {
	var resp Unit
	err := c.do(ctx, http.MethodPost, "units/"+url.PathEscape(unitID)+"/confirm", nil, &resp)
	return resp, err
}

// ArchiveUnit archives a unit.
func (c *Client) ArchiveUnit(ctx context.Context, unitID string) (Unit, error) {
	var resp Unit
	err := c.do(ctx, http.MethodPost, "units/"+url.PathEscape(unitID)+"/archive", nil, &resp)
	return resp, err
}

// SubmitEvidence submits evidence for a unit.
func (c *Client) SubmitEvidence(ctx context.Context, unitID, evidenceType, blobPath string) (Evidence, error) {
	body := map[string]any{
		"type":      evidenceType,
		"blob_path": blobPath,
	}
	var resp Evidence
	err := c.do(ctx, http.MethodPost, "units/"+url.PathEscape(unitID)+"/evidence", body, &resp)
	return resp, err
}

// DecideEvidence approves or rejects pending evidence. Action is "approve" or
// "reject"; reason is required when rejecting.
func (c *Client) DecideEvidence(ctx context.Context, evidenceID, action, reason string) (Evidence, error) {
	body := map[string]any{
		"action": action,
		"reason": reason,
	}
	var resp Evidence
	err := c.do(ctx, http.MethodPost, "evidence/"+url.PathEscape(evidenceID)+"/decision", body, &resp)
	return resp, err
}

// ListUnitEvidence returns the non-superseded evidence trail for a unit.
func (c *Client) ListUnitEvidence(ctx context.Context, unitID string) ([]Evidence, error) {
	var resp []Evidence
	err := c.do(ctx, http.MethodGet, "units/"+url.PathEscape(unitID)+"/evidence", nil, &resp)
	return resp, err
}

// Escalate raises a manual escalation. Set markBlocked to also block the unit
// (or propose a block, depending on the caller's role).
func (c *Client) Escalate(ctx context.Context, unitID, reason string, markBlocked bool, blockReason string) (Escalation, error) {
	body := map[string]any{
		"reason":       reason,
		"mark_blocked": markBlocked,
		"block_reason": blockReason,
	}
	var resp Escalation
	err := c.do(ctx, http.MethodPost, "units/"+url.PathEscape(unitID)+"/escalations", body, &resp)
	return resp, err
}

// ResolveEscalation resolves an active escalation.
func (c *Client) ResolveEscalation(ctx context.Context, escalationID, note string) (Escalation, error) {
	body := map[string]any{"note": note}
	var resp Escalation
	err := c.do(ctx, http.MethodPost, "escalations/"+url.PathEscape(escalationID)+"/resolve", body, &resp)
	return resp, err
}

// Unblock lifts a confirmed block from a unit.
func (c *Client) Unblock(ctx context.Context, unitID, reason string) (Unit, error) {
	body := map[string]any{"reason": reason}
	var resp Unit
	err := c.do(ctx, http.MethodPost, "units/"+url.PathEscape(unitID)+"/unblock", body, &resp)
	return resp, err
}

// Attention returns the caller's ranked attention queue.
func (c *Client) Attention(ctx context.Context) (AttentionQueue, error) {
	var resp AttentionQueue
	err := c.do(ctx, http.MethodGet, "attention", nil, &resp)
	return resp, err
}

// Sweep triggers an escalation sweep. The sweep endpoint authenticates with
// its own shared secret rather than the client's bearer token.
func (c *Client) Sweep(ctx context.Context, secret string) (SweepReport, error) {
	var resp SweepReport
	err := c.doWithHeaders(ctx, http.MethodPost, "sweep", nil, &resp, map[string]string{
		"X-Sweep-Secret": secret,
	})
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	return c.doWithHeaders(ctx, method, endpoint, body, out, nil)
}

func (c *Client) doWithHeaders(ctx context.Context, method, endpoint string, body any, out any, headers map[string]string) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
