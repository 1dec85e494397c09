package domain

import (
	"regexp"
	"strings"
)

var (
	urlPattern     = regexp.MustCompile(`http[s]?://(?:[a-zA-Z]|[0-9]|[$\-_@.&+]|[!*\(\),]|(?:%[0-9a-fA-F][0-9a-fA-F]))+`)
	mentionPattern = regexp.MustCompile(`@\w+`)
)

// StripText removes URLs and @mentions and trims the result
func StripText(s string) string {
	s = urlPattern.ReplaceAllString(s, "")
	s = mentionPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// LeadingMentions counts consecutive @mention tokens at the start of s
func LeadingMentions(s string) int {
	count := 0
	for _, word := range strings.Fields(s) {
		if !strings.HasPrefix(word, "@") || len(word) == 1 {
			break
		}
		count++
	}
	return count
}

// NormalizeHandle lowercases a handle and drops a leading @
func NormalizeHandle(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}
