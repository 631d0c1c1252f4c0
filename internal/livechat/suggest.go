package livechat

import (
	"context"
	"sort"
	"strings"
	"time"
)

const (
	// Scoring weights. The absolute values are a tuning choice; only the
	// relative ordering (exact > prefix > substring > nickname > edit
	// distance) is load-bearing.
	scoreExact       = 200
	scorePrefix      = 120
	scoreSubstring   = 70
	scoreNickname    = 30
	scoreEditBase    = 35
	scoreEditPerStep = 5

	// How many recent events to pull before deduplication and scoring.
	suggestScanDepth = 300
)

// Suggestion is one ranked candidate identity for a partially-typed username.
type Suggestion struct {
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	Username       string    `json:"username"`
	Nickname       string    `json:"nickname,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Score          int       `json:"score"`
}

// eventSource is the subset of EventRepository used by the Suggester.
type eventSource interface {
	Recent(ctx context.Context, provider, substr string, limit int) ([]*Event, error)
}

// Suggester performs best-effort fuzzy search over the event log to help a
// user find their own chat username. It is UI assistance only — linking never
// trusts its output as authoritative.
type Suggester struct {
	events   eventSource
	provider string
}

// NewSuggester creates a Suggester over the given event source.
func NewSuggester(events eventSource, provider string) *Suggester {
	return &Suggester{events: events, provider: provider}
}

// Suggest returns up to limit candidates for query q, ranked by score then
// recency. An empty q yields the most recent distinct identities unranked.
func (s *Suggester) Suggest(ctx context.Context, q string, limit int) ([]Suggestion, error) {
	q = NormalizeUsername(q)
	if limit < 1 {
		limit = 8
	}
	if limit > 25 {
		limit = 25
	}

	events, err := s.events.Recent(ctx, s.provider, q, suggestScanDepth)
	if err != nil {
		return nil, err
	}

	// Deduplicate by username, keeping the most recent event per identity.
	// Events arrive newest-first, so first wins.
	seen := make(map[string]*Event, len(events))
	order := make([]string, 0, len(events))
	for _, e := range events {
		u := NormalizeUsername(e.Username)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; !ok {
			seen[u] = e
			order = append(order, u)
		}
	}

	items := make([]Suggestion, 0, len(order))
	for _, u := range order {
		e := seen[u]
		score := 0
		if q != "" {
			score = scoreCandidate(q, u, e.Nickname)
			if score <= 0 {
				continue
			}
		}
		items = append(items, Suggestion{
			Provider:       e.Provider,
			ProviderUserID: e.ProviderUserID,
			Username:       u,
			Nickname:       e.Nickname,
			AvatarURL:      e.AvatarURL,
			CreatedAt:      e.CreatedAt,
			Score:          score,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// scoreCandidate rates how likely the identity (username, nickname) is what
// the user typing q means. q and username must be normalized.
func scoreCandidate(q, username, nickname string) int {
	score := 0
	switch {
	case username == q:
		score += scoreExact
	case strings.HasPrefix(username, q):
		score += scorePrefix
	case strings.Contains(username, q):
		score += scoreSubstring
	}
	if n := NormalizeUsername(nickname); n != "" && strings.Contains(n, q) {
		score += scoreNickname
	}
	if d := levenshtein(q, username); scoreEditBase-d*scoreEditPerStep > 0 {
		score += scoreEditBase - d*scoreEditPerStep
	}
	return score
}

// levenshtein computes edit distance with a single rolling row.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			tmp := row[j]
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			row[j] = min(row[j]+1, row[j-1]+1, prev+cost)
			prev = tmp
		}
	}
	return row[len(b)]
}
