// internal/service/segment_service.go
package service

import (
	"strings"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// ParseSegmentRule splits a rule like "vip, tw" into normalized tag tokens.
// An empty or whitespace-only rule yields no tokens, which means "all users".
func ParseSegmentRule(rule string) []string {
	tokens := []string{}
	for _, raw := range strings.Split(rule, ",") {
		t := strings.ToLower(strings.TrimSpace(raw))
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// ResolveSegment filters the user snapshot down to recipients matching the
// rule: a user matches iff it holds every listed tag (AND semantics). Unknown
// tags match nobody; an empty result is valid. Input order is preserved, so a
// directory snapshot in id-ascending order resolves deterministically.
func ResolveSegment(rule string, users []model.User) []model.User {
	tokens := ParseSegmentRule(rule)
	if len(tokens) == 0 {
		return users
	}

	matched := []model.User{}
	for i := range users {
		if hasAllTags(&users[i], tokens) {
			matched = append(matched, users[i])
		}
	}
	return matched
}

func hasAllTags(u *model.User, tokens []string) bool {
	for _, tok := range tokens {
		if !u.HasTag(tok) {
			return false
		}
	}
	return true
}
