package workflow

import "strings"

// extractThink splits a raw LLM response into its chain-of-thought content
// (the concatenation of every top-level <think>...</think> block) and the
// remainder with those blocks removed, per the Open Question resolution
// recorded in DESIGN.md: tags are stripped non-greedily, one top-level
// occurrence at a time, repeated until none remain. Each block ends at the
// first "</think>" after its opening tag, so for nested input the inner
// "<think>" stays inside the extracted text, while the text after the inner
// close tag and the outer "</think>" stay in the remainder. An opening tag
// with no close tag is left in the remainder unchanged.
func extractThink(raw string) (cot string, remainder string) {
	var cotParts []string
	remainder = raw
	for {
		start := strings.Index(remainder, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(remainder[start:], "</think>")
		if end == -1 {
			break
		}
		end += start
		cotParts = append(cotParts, remainder[start+len("<think>"):end])
		remainder = remainder[:start] + remainder[end+len("</think>"):]
	}
	return strings.Join(cotParts, "\n"), strings.TrimSpace(remainder)
}

// stripThink discards chain-of-thought content and returns only the
// remainder, for call sites that only care about the structured payload.
func stripThink(raw string) string {
	_, remainder := extractThink(raw)
	return remainder
}

var greetingPrefixes = []string{
	"hi", "hello", "hey", "yo", "hola", "bonjour", "salut", "ciao", "ola",
	"namaste", "konnichiwa", "ni hao", "thanks", "thank you",
	"good morning", "good evening",
}

// isGreetingLike reports whether task looks like a short greeting rather
// than a task requiring planning, mirroring router.isGreeting's bypass
// rule for the general domain's plan node.
func isGreetingLike(task string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(task))
	if len(trimmed) > 40 {
		return false
	}
	for _, g := range greetingPrefixes {
		if trimmed == g || strings.HasPrefix(trimmed, g+" ") || strings.HasPrefix(trimmed, g+",") || strings.HasPrefix(trimmed, g+"!") {
			return true
		}
	}
	return false
}

// conversationalReply produces a short direct reply for a greeting-like
// task, short-circuiting the plan/execute/reflect loop entirely.
func conversationalReply(task string) string {
	return "Hello! How can I help you today?"
}
