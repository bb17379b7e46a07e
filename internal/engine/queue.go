package engine

import (
	"context"
	"sort"
	"time"

	"trackline/internal/domain"
	"trackline/internal/repo"
)

// Attention item classes, highest base urgency first.
const (
	ClassManualEscalation = "manual_escalation"
	ClassBlocked          = "blocked"
	ClassUnconfirmed      = "unconfirmed"
	ClassPendingEvidence  = "pending_evidence"
	ClassAtRisk           = "at_risk"
)

var classBase = map[string]int{
	ClassManualEscalation: 1000,
	ClassBlocked:          800,
	ClassUnconfirmed:      600,
	ClassPendingEvidence:  500,
	ClassAtRisk:           400,
}

// AttentionItem is one ranked entry. ReferenceID points at the evidence or
// escalation record for the classes that have one.
type AttentionItem struct {
	Class           string  `json:"class"`
	Score           int     `json:"score"`
	UnitID          string  `json:"unit_id"`
	UnitTitle       string  `json:"unit_title"`
	Status          string  `json:"status"`
	EscalationLevel int     `json:"escalation_level"`
	HighCriticality bool    `json:"high_criticality"`
	Deadline        *string `json:"deadline,omitempty" format:"date-time"`
	ReferenceID     string  `json:"reference_id,omitempty"`
	Summary         string  `json:"summary"`
}

// AttentionQueueResult is the ranked queue plus per-class counts.
type AttentionQueueResult struct {
	Items  []AttentionItem `json:"items"`
	Counts map[string]int  `json:"counts"`
}

// AttentionQueue assembles the ranked work queue for one viewer. The whole
// computation reads the given clock value exactly once per item, so the
// ranking is a pure function of the database snapshot and `now`.
func (e Engine) AttentionQueue(ctx context.Context, p domain.Principal, now time.Time) (AttentionQueueResult, error) {
	orgID := p.OrgID
	if p.Role == domain.RolePlatformAdmin {
		orgID = ""
	}

	var items []AttentionItem

	pending, err := e.Repo.ListPendingEvidence(ctx, orgID)
	if err != nil {
		return AttentionQueueResult{}, err
	}
	unitCache := make(map[string]domain.Unit)
	unitFor := func(id string) (domain.Unit, error) {
		if u, ok := unitCache[id]; ok {
			return u, nil
		}
		u, err := e.Repo.GetUnit(ctx, id)
		if err != nil {
			return u, err
		}
		unitCache[id] = u
		return u, nil
	}
	for _, ev := range pending {
		u, err := unitFor(ev.UnitID)
		if err != nil {
			return AttentionQueueResult{}, err
		}
		if u.IsArchived {
			continue
		}
		items = append(items, scoreItem(ClassPendingEvidence, u, ev.ID,
			"Evidence awaiting decision ("+ev.Type+")", "", now))
	}

	units, err := e.Repo.ListUnits(ctx, repo.UnitFilters{OrgID: orgID})
	if err != nil {
		return AttentionQueueResult{}, err
	}
	for _, u := range units {
		unitCache[u.ID] = u
		if u.Deadline != nil && (u.ComputedStatus == domain.StatusRed || u.ComputedStatus == domain.StatusBlocked) {
			class := ClassAtRisk
			summary := "Deadline at risk without approved evidence"
			if u.ComputedStatus == domain.StatusBlocked {
				class = ClassBlocked
				summary = "Unit is blocked"
				if u.BlockedReason != nil {
					summary = "Unit is blocked: " + *u.BlockedReason
				}
			}
			items = append(items, scoreItem(class, u, "", summary, "", now))
		}
		if !u.IsConfirmed {
			items = append(items, scoreItem(ClassUnconfirmed, u, "",
				"Unit awaits confirmation", u.CreatedAt, now))
		}
	}

	escalations, err := e.Repo.ListEscalations(ctx, repo.EscalationFilters{
		OrgID:  orgID,
		Status: domain.EscalationActive,
		Type:   domain.EscalationManual,
	})
	if err != nil {
		return AttentionQueueResult{}, err
	}
	for _, es := range escalations {
		u, err := unitFor(es.UnitID)
		if err != nil {
			return AttentionQueueResult{}, err
		}
		if u.IsArchived {
			continue
		}
		items = append(items, scoreItem(ClassManualEscalation, u, es.ID,
			"Manual escalation: "+es.Reason, es.CreatedAt, now))
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if items[i].Class != items[j].Class {
			return classBase[items[i].Class] > classBase[items[j].Class]
		}
		if items[i].UnitID != items[j].UnitID {
			return items[i].UnitID < items[j].UnitID
		}
		return items[i].ReferenceID < items[j].ReferenceID
	})

	counts := make(map[string]int)
	for _, it := range items {
		counts[it.Class]++
	}
	return AttentionQueueResult{Items: items, Counts: counts}, nil
}

// scoreItem applies the additive scoring model. ageFrom, when non-empty, adds
// the capped age bonus used for escalation and confirmation backlogs.
func scoreItem(class string, u domain.Unit, referenceID, summary, ageFrom string, now time.Time) AttentionItem {
	score := classBase[class]
	score += 100 * u.EscalationLevel
	if u.HighCriticality {
		score += 200
	}
	if u.Deadline != nil {
		if deadline, err := time.Parse(time.RFC3339, *u.Deadline); err == nil {
			score += deadlineUrgency(deadline, now)
		}
	}
	if ageFrom != "" {
		if created, err := time.Parse(time.RFC3339, ageFrom); err == nil {
			score += ageBonus(created, now)
		}
	}
	return AttentionItem{
		Class:           class,
		Score:           score,
		UnitID:          u.ID,
		UnitTitle:       u.Title,
		Status:          u.ComputedStatus,
		EscalationLevel: u.EscalationLevel,
		HighCriticality: u.HighCriticality,
		Deadline:        u.Deadline,
		ReferenceID:     referenceID,
		Summary:         summary,
	}
}

func deadlineUrgency(deadline, now time.Time) int {
	until := deadline.Sub(now)
	switch {
	case until < 0:
		overdue := int((-until).Hours())
		if overdue > 100 {
			overdue = 100
		}
		return 200 + overdue
	case until < 24*time.Hour:
		return 150
	case until < 48*time.Hour:
		return 100
	case until < 7*24*time.Hour:
		return 50
	default:
		return 0
	}
}

func ageBonus(created, now time.Time) int {
	age := int(now.Sub(created).Hours())
	if age < 0 {
		return 0
	}
	if age > 100 {
		return 100
	}
	return age
}
