package ollama

import (
	"strings"
	"unicode/utf8"
)

const maxSnippet = 4000

// truncateSnippet cuts at a rune boundary so a multi-byte character is never
// split mid-sequence.
func truncateSnippet(text string) string {
	if len(text) <= maxSnippet {
		return text
	}
	cut := maxSnippet
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func buildClassificationPrompt(text string, allowedTags []string) string {
	snippet := truncateSnippet(text)

	var b strings.Builder
	b.WriteString(`You are a support ticket classifier.
Return a strict JSON object with keys:
summary (string, one sentence), description (string, short paragraph), tags (array of strings), proposed_new_tag (boolean).
`)
	if len(allowedTags) > 0 {
		b.WriteString("Prefer tags from this list: ")
		b.WriteString(strings.Join(allowedTags, ", "))
		b.WriteString(".\nSet proposed_new_tag to true only when none of the listed tags fits and you include a new one.\n")
	} else {
		b.WriteString("There is no predefined tag list; choose concise lowercase tags and set proposed_new_tag to false.\n")
	}
	b.WriteString("No markdown, no extra keys.\n\nTicket:\n")
	b.WriteString(snippet)
	return b.String()
}

func buildSuggestionPrompt(text string, allowedTags []string) string {
	snippet := truncateSnippet(text)

	var b strings.Builder
	b.WriteString(`You suggest categorization tags for a support ticket.
Return a strict JSON object with one key: tags (array of short lowercase strings).
`)
	if len(allowedTags) > 0 {
		b.WriteString("These tags already exist and must not be repeated: ")
		b.WriteString(strings.Join(allowedTags, ", "))
		b.WriteString(".\nOnly suggest genuinely new tags.\n")
	}
	b.WriteString("No markdown, no extra keys.\n\nTicket:\n")
	b.WriteString(snippet)
	return b.String()
}
