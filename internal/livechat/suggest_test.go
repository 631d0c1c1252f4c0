package livechat_test

import (
	"context"
	"testing"
	"time"

	"github.com/melolive/livelink/internal/livechat"
)

// ── Stub event source ─────────────────────────────────────────────────────

type stubEventSource struct {
	events []*livechat.Event
}

// Recent mimics the repository contract: newest first, optional substring
// prefilter on username.
func (s *stubEventSource) Recent(_ context.Context, provider, substr string, limit int) ([]*livechat.Event, error) {
	var out []*livechat.Event
	for _, e := range s.events {
		if e.Provider != provider {
			continue
		}
		if substr != "" && !containsFold(e.Username, substr) {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func containsFold(s, sub string) bool {
	s = livechat.NormalizeUsername(s)
	sub = livechat.NormalizeUsername(sub)
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func ev(username, nickname, uid string, age time.Duration) *livechat.Event {
	return &livechat.Event{
		Provider:       "tikfinity",
		ProviderUserID: uid,
		Username:       username,
		Nickname:       nickname,
		EventType:      livechat.EventChat,
		CreatedAt:      time.Now().UTC().Add(-age),
	}
}

func TestSuggestExactBeatsSubstring(t *testing.T) {
	src := &stubEventSource{events: []*livechat.Event{
		ev("alicette", "", "2", time.Minute),
		ev("alice", "", "1", 2*time.Minute),
		ev("realalice", "", "3", 30*time.Second),
	}}
	s := livechat.NewSuggester(src, "tikfinity")

	items, err := s.Suggest(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0].Username != "alice" {
		t.Errorf("top suggestion = %q, want alice", items[0].Username)
	}
}

func TestSuggestPrefixBeatsSubstringBeatsEditDistance(t *testing.T) {
	src := &stubEventSource{events: []*livechat.Event{
		ev("xxalxx", "", "3", time.Minute),  // edit-distance only
		ev("alfred", "", "1", time.Minute),  // prefix "al"
		ev("total", "", "2", time.Minute),   // substring "al"
	}}
	s := livechat.NewSuggester(src, "tikfinity")

	items, err := s.Suggest(context.Background(), "al", 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(items) < 2 {
		t.Fatalf("got %d items, want at least 2", len(items))
	}
	if items[0].Username != "alfred" {
		t.Errorf("top = %q, want alfred (prefix match)", items[0].Username)
	}
	if items[1].Username != "total" {
		t.Errorf("second = %q, want total (substring match)", items[1].Username)
	}
}

func TestSuggestDeduplicatesKeepingMostRecent(t *testing.T) {
	src := &stubEventSource{events: []*livechat.Event{
		ev("alice", "", "new-id", time.Minute),
		ev("alice", "", "old-id", time.Hour),
	}}
	s := livechat.NewSuggester(src, "tikfinity")

	items, err := s.Suggest(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 after dedupe", len(items))
	}
	if items[0].ProviderUserID != "new-id" {
		t.Errorf("kept %q, want the most recent event's identity", items[0].ProviderUserID)
	}
}

func TestSuggestEmptyQueryReturnsRecentUnranked(t *testing.T) {
	src := &stubEventSource{events: []*livechat.Event{
		ev("carol", "", "3", time.Minute),
		ev("bob", "", "2", 2*time.Minute),
		ev("alice", "", "1", 3*time.Minute),
	}}
	s := livechat.NewSuggester(src, "tikfinity")

	items, err := s.Suggest(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want limit=2", len(items))
	}
	if items[0].Username != "carol" || items[1].Username != "bob" {
		t.Errorf("order = [%s %s], want [carol bob]", items[0].Username, items[1].Username)
	}
	for _, it := range items {
		if it.Score != 0 {
			t.Errorf("empty query should not score; %s scored %d", it.Username, it.Score)
		}
	}
}

func TestSuggestNicknameMatch(t *testing.T) {
	src := &stubEventSource{events: []*livechat.Event{
		ev("user8812", "Sparkles", "1", time.Minute),
	}}
	s := livechat.NewSuggester(src, "tikfinity")

	// Substring prefilter is on username, so search a fragment present in both.
	items, err := s.Suggest(context.Background(), "user", 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
}

func TestSuggestLimitClamped(t *testing.T) {
	var events []*livechat.Event
	for i := 0; i < 40; i++ {
		events = append(events, ev(string(rune('a'+i%26))+"user", "", "x", time.Duration(i)*time.Second))
	}
	src := &stubEventSource{events: events}
	s := livechat.NewSuggester(src, "tikfinity")

	items, err := s.Suggest(context.Background(), "", 100)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(items) > 25 {
		t.Errorf("limit not clamped: got %d items", len(items))
	}
}
