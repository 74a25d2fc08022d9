package model

import "time"

// MatchType records how a lineage edge was matched.
type MatchType string

const (
	MatchTypeExactName MatchType = "exact_name"
	MatchTypeFuzzyName MatchType = "fuzzy_name"
)

// LineageStatus is the review state of a lineage edge. Edges leave
// pending_review exactly once; confirmed and rejected are terminal.
type LineageStatus string

const (
	LineageStatusConfirmed     LineageStatus = "confirmed"
	LineageStatusPendingReview LineageStatus = "pending_review"
	LineageStatusRejected      LineageStatus = "rejected"
)

// Lineage is one proposed migration edge from a newly inserted server back
// to a stale predecessor. The (current, previous) pair is unique.
type Lineage struct {
	ID               string        `json:"id"`
	CurrentServerID  string        `json:"current_server_id"`
	PreviousServerID string        `json:"previous_server_id"`
	MatchType        MatchType     `json:"match_type"`
	SimilarityScore  float64       `json:"similarity_score"`
	Status           LineageStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
}

// HostCluster groups servers sharing one address. Clusters only exist for
// addresses with more than one server.
type HostCluster struct {
	ID          string    `json:"id"`
	IPAddress   string    `json:"ip_address"`
	ServerCount int       `json:"server_count"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}
