package stream

import "strings"

// DefaultHeartbeatPatterns returns the sentinel substrings the server is
// known to inject as synthetic liveness content.
func DefaultHeartbeatPatterns() []string {
	return []string{
		"HEARTBEAT_OK",
		"HEARTBEAT",
	}
}

// HeartbeatFilter excludes synthetic liveness content from user-visible
// output. Matching is case-insensitive substring against an injected
// pattern set; the filter itself imposes no pattern semantics.
type HeartbeatFilter struct {
	patterns []string
}

// NewHeartbeatFilter builds a filter over the given sentinel patterns.
// Empty patterns are ignored; with no usable patterns the filter passes
// everything through.
func NewHeartbeatFilter(patterns []string) *HeartbeatFilter {
	f := &HeartbeatFilter{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		f.patterns = append(f.patterns, strings.ToLower(p))
	}
	return f
}

// IsHeartbeat reports whether text matches a sentinel pattern. Whitespace
// around the text does not defeat the match, so a message consisting
// solely of a sentinel counts as a heartbeat.
func (f *HeartbeatFilter) IsHeartbeat(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	lowered := strings.ToLower(trimmed)
	for _, p := range f.patterns {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// Filter returns text unchanged when it is real content and the empty
// string when it is heartbeat noise. Filtering is idempotent: filtered
// output always passes through unchanged.
func (f *HeartbeatFilter) Filter(text string) string {
	if f.IsHeartbeat(text) {
		return ""
	}
	return text
}
