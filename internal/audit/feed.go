package audit

import (
	"slices"
	"strings"

	"kairos/internal/capsule/models"
	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
)

// Filter narrows the global audit feed to one family of actions.
type Filter string

const (
	FilterAll   Filter = "ALL"
	FilterPing  Filter = "PING"
	FilterSeal  Filter = "SEAL"
	FilterClaim Filter = "CLAIM"
)

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToUpper(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterPing, FilterSeal, FilterClaim:
		return f, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "filter must be one of ALL, PING, SEAL, CLAIM")
}

var actionFamily = map[string]Filter{
	models.ActionPing:                FilterPing,
	models.ActionCreated:             FilterSeal,
	models.ActionSealed:              FilterSeal,
	models.ActionApprovalRecorded:    FilterClaim,
	models.ActionUnlockConditionsMet: FilterClaim,
	models.ActionEpochReset:          FilterClaim,
	models.ActionUnlocked:            FilterClaim,
	models.ActionShareReleased:       FilterClaim,
	models.ActionClaimFailed:         FilterClaim,
}

// Matches reports whether an action belongs to the filter's family.
func (f Filter) Matches(action string) bool {
	return f == FilterAll || actionFamily[action] == f
}

// FeedQuery selects entries across an owner's capsules.
type FeedQuery struct {
	Filter Filter
	Search string
	Limit  int
}

// FeedItem is an audit entry with the capsule it belongs to.
type FeedItem struct {
	CapsuleID    id.CapsuleID      `json:"capsuleId"`
	CapsuleTitle string            `json:"capsuleTitle"`
	Entry        models.AuditEntry `json:"entry"`
}

// Stats summarises an owner's audit history.
type Stats struct {
	Pings       int `json:"pings"`
	Activations int `json:"activations"`
	Claims      int `json:"claims"`
	Failures    int `json:"failures"`
}

// Feed merges every capsule's log, newest first.
func Feed(capsules []*models.Capsule, q FeedQuery) []FeedItem {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	items := make([]FeedItem, 0)
	for _, c := range capsules {
		for _, e := range c.AuditLog {
			if !q.Filter.Matches(e.Action) {
				continue
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(e.Action), search) &&
				!strings.Contains(strings.ToLower(c.Title), search) &&
				!strings.Contains(strings.ToLower(e.Actor.String()), search) {
				continue
			}
			items = append(items, FeedItem{CapsuleID: c.ID, CapsuleTitle: c.Title, Entry: e})
		}
	}
	slices.SortStableFunc(items, func(a, b FeedItem) int {
		return b.Entry.Timestamp.Compare(a.Entry.Timestamp)
	})
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}
	return items
}

// ComputeStats counts pings, activations, claim activity and failures.
func ComputeStats(capsules []*models.Capsule) Stats {
	var st Stats
	for _, c := range capsules {
		for _, e := range c.AuditLog {
			switch actionFamily[e.Action] {
			case FilterPing:
				st.Pings++
			case FilterSeal:
				st.Activations++
			case FilterClaim:
				st.Claims++
			}
			if e.Status == models.AuditFailed {
				st.Failures++
			}
		}
	}
	return st
}
