package transform

import (
	"strings"

	"crossposter/internal/models"
)

// ApplyFilters reports whether an item passes a task's filters. Filtered
// items are skipped silently: no execution record is written for them.
func ApplyFilters(item models.ContentItem, filters models.Filters) bool {
	if filters.OriginalOnly && !item.IsOriginal() {
		return false
	}
	if filters.ExcludeReplies && item.IsReply {
		return false
	}
	if filters.ExcludeRetweets && (item.IsRetweet || item.IsForward) {
		return false
	}
	if filters.ExcludeQuotes && item.IsQuote {
		return false
	}
	if !MatchesKeywords(item.Text, filters.Keywords, filters.ExcludeKeywords) {
		return false
	}
	return true
}

// MatchesKeywords applies include/exclude keyword rules to a text,
// case-insensitively. Empty include list means "match everything".
func MatchesKeywords(text string, include, exclude []string) bool {
	lower := strings.ToLower(text)

	for _, kw := range exclude {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}

	if len(include) == 0 {
		return true
	}
	for _, kw := range include {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
