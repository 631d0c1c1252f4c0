package livechat

import (
	"fmt"
	"strings"
)

// Bridge integrations send loosely-typed payloads whose key names vary by
// event kind and by bridge version. Each logical field therefore has an
// ordered list of candidate keys; the first present, non-empty value wins.
// Keys containing a dot descend into a nested object ("data.userId").
var extractionRules = map[string][]string{
	"provider_user_id": {
		"userId", "user_id", "userid", "provider_user_id",
		"uniqueId", "unique_id", "data.userId", "data.uniqueId",
	},
	"username": {
		"username", "uniqueId", "unique_id", "data.username", "data.uniqueId",
	},
	"nickname": {
		"nickname", "displayName", "display_name", "data.nickname", "data.displayName",
	},
	"avatar_url": {
		"avatar_url", "profilePictureUrl", "profile_picture_url",
		"data.avatar_url", "data.profilePictureUrl",
	},
	"message": {
		"comment", "text", "message",
	},
	"event_type": {
		"type", "event", "event_type",
	},
}

// ExtractField resolves a logical field name against a raw payload using the
// extraction rule table. Returns "" when no candidate key yields a value.
func ExtractField(payload map[string]any, field string) string {
	for _, key := range extractionRules[field] {
		if v := lookupKey(payload, key); v != "" {
			return v
		}
	}
	return ""
}

// lookupKey fetches a single (possibly dotted) key from the payload and
// stringifies it. Numbers are common for user IDs, so they are accepted.
func lookupKey(payload map[string]any, key string) string {
	cur := payload
	parts := strings.Split(key, ".")
	for i, part := range parts {
		v, ok := cur[part]
		if !ok || v == nil {
			return ""
		}
		if i == len(parts)-1 {
			return stringify(v)
		}
		nested, ok := v.(map[string]any)
		if !ok {
			return ""
		}
		cur = nested
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		// JSON numbers decode as float64; user IDs are integral in practice.
		return strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.0f", t), ".0"), ".")
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return ""
	}
}

// EventFromPayload builds a normalized Event from a raw bridge payload.
// reclaimPrefix marks chat messages that trigger the reclaim flow;
// defaultType is used when the payload carries no explicit type field
// ("join" for the join-style endpoint, "chat" elsewhere).
func EventFromPayload(payload map[string]any, provider, reclaimPrefix, defaultType string) *Event {
	msg := strings.TrimSpace(ExtractField(payload, "message"))

	eventType := ExtractField(payload, "event_type")
	if eventType == "" {
		eventType = defaultType
	}
	if reclaimPrefix != "" && strings.HasPrefix(msg, reclaimPrefix) {
		eventType = EventReclaim
	}

	return &Event{
		Provider:       provider,
		ProviderUserID: ExtractField(payload, "provider_user_id"),
		Username:       NormalizeUsername(ExtractField(payload, "username")),
		Nickname:       ExtractField(payload, "nickname"),
		AvatarURL:      ExtractField(payload, "avatar_url"),
		EventType:      eventType,
		Message:        msg,
	}
}
