package analyzer

import "strings"

// intentMarkers maps intents to the keywords that signal them.
// First match in declaration order wins; later contextual signals can
// still override.
var intentMarkers = []struct {
	intent  Intent
	markers []string
}{
	{IntentCompare, []string{"compare", "versus", "vs", "difference between", "better than"}},
	{IntentVerify, []string{"verify", "confirm", "is it true", "check whether", "validate"}},
	{IntentDiscover, []string{"discover", "explore", "similar to", "related to", "recommend", "suggest"}},
	{IntentNavigate, []string{"go to", "open", "show me the", "take me to"}},
	{IntentFilter, []string{"only", "filter", "exclude", "without", "between", "before", "after"}},
}

// DetectIntent classifies the user's intent from keyword heuristics and
// contextual signals. Defaults to search when nothing matches.
func DetectIntent(normalized string, qctx *Context) Intent {
	lower := strings.ToLower(normalized)

	intent := IntentSearch
	for _, m := range intentMarkers {
		if containsAnyMarker(lower, m.markers) {
			intent = m.intent
			break
		}
	}

	if qctx == nil {
		return intent
	}

	// Contextual signals refine the keyword match.
	if qctx.Specificity == "precise" && intent == IntentSearch {
		intent = IntentNavigate
	}
	if qctx.Temporality == "recent" && intent == IntentSearch {
		intent = IntentFilter
	}
	if qctx.Urgency == "high" && intent == IntentDiscover {
		// Urgent callers want answers, not exploration.
		intent = IntentSearch
	}

	return intent
}

func containsAnyMarker(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
