package fusion

import "strings"

// MatchExpression builds the FTS5 MATCH expression for a strategy.
// All user tokens are double-quoted so FTS5 syntax characters in the
// query cannot change the query structure.
func MatchExpression(strategy string, query string) string {
	terms := tokenize(query)
	if len(terms) == 0 {
		return ""
	}

	switch strategy {
	case "exact_match", "phrase":
		return `"` + strings.Join(terms, " ") + `"`
	case "fuzzy":
		quoted := make([]string, len(terms))
		for i, t := range terms {
			quoted[i] = `"` + t + `"*`
		}
		return strings.Join(quoted, " OR ")
	case "boolean":
		return booleanExpression(query)
	default:
		// keyword and the semantic lexical leg: implicit AND.
		quoted := make([]string, len(terms))
		for i, t := range terms {
			quoted[i] = `"` + t + `"`
		}
		return strings.Join(quoted, " ")
	}
}

// booleanExpression keeps the user's AND/OR/NOT structure but quotes
// every other token.
func booleanExpression(query string) string {
	var out []string
	for _, word := range strings.Fields(query) {
		switch word {
		case "AND", "OR", "NOT":
			out = append(out, word)
		default:
			if t := cleanToken(word); t != "" {
				out = append(out, `"`+t+`"`)
			}
		}
	}
	return strings.Join(out, " ")
}

func tokenize(query string) []string {
	var out []string
	for _, word := range strings.Fields(query) {
		if t := cleanToken(word); t != "" && t != "AND" && t != "OR" && t != "NOT" {
			out = append(out, t)
		}
	}
	return out
}

// cleanToken strips quotes and FTS operators wherever they appear in
// a token, not just at its edges.
func cleanToken(word string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`"'*?():^`, r) {
			return -1
		}
		return r
	}, word)
}
