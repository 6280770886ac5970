package domain

import "time"

// SearchQuery tracks a distinct free-text query entered by users. Repeat
// searches increment both CountRequests and the popular counter; the decayed
// index ranks trending queries shown as search hints.
type SearchQuery struct {
	ID            int64        `json:"id"`
	Text          string       `json:"text"`
	CountRequests int          `json:"count_requests"`
	Popular       RankingIndex `json:"popular"`
	CreatedAt     time.Time    `json:"created_at"`
}
