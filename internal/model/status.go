package model

import "strings"

// Rank orders delivery statuses so that updates only ever move forward.
type Rank int

const (
	RankUnknown   Rank = 0
	RankQueued    Rank = 1
	RankSent      Rank = 2
	RankDelivered Rank = 3
	RankRead      Rank = 4
	RankFailed    Rank = 99
)

// queuedSynonyms are prefixes that mean "still in flight" across the
// producers we ingest from (webhook relays, provider callbacks, our own
// optimistic placeholders).
var queuedSynonyms = []string{"queue", "send", "pending", "accept", "submit", "process", "progress"}

// ClassifyStatus maps a free-text delivery status to its rank.
func ClassifyStatus(raw string) Rank {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return RankUnknown
	}
	switch {
	case strings.Contains(s, "fail"), strings.Contains(s, "error"), strings.Contains(s, "reject"):
		return RankFailed
	case strings.Contains(s, "read"), strings.Contains(s, "seen"), strings.Contains(s, "viewed"):
		return RankRead
	case strings.HasPrefix(s, "deliver"):
		return RankDelivered
	case s == "sent":
		return RankSent
	}
	for _, p := range queuedSynonyms {
		if strings.HasPrefix(s, p) {
			return RankQueued
		}
	}
	return RankUnknown
}

// StatusAdvances reports whether incoming may replace current. Equal rank
// still advances so a producer can refine the raw string without losing
// the update.
func StatusAdvances(current, incoming string) bool {
	return ClassifyStatus(incoming) >= ClassifyStatus(current)
}
