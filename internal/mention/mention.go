// Package mention implements @mention token detection, candidate
// filtering and insertion for the message composer.
package mention

import (
	"regexp"
	"sort"
	"strings"

	"github.com/typow21/group-chat-gpt-frontend/internal/models"
)

// MaxSuggestions caps the suggestion list length.
const MaxSuggestions = 8

// Kind distinguishes human users from AI bots among candidates.
type Kind int

const (
	KindHuman Kind = iota
	KindBot
)

// Candidate is a name that can be @mentioned in the current room.
type Candidate struct {
	Name string
	Kind Kind
}

// mentionRegex matches @name tokens anywhere in a message body.
var mentionRegex = regexp.MustCompile(`@([A-Za-z0-9._-]+)`)

// activeTokenRegex matches an @-prefixed run of word/hyphen/dot
// characters ending at the caret, anchored to start-of-string or
// whitespace. This is what keeps "x@al.com" from triggering.
var activeTokenRegex = regexp.MustCompile(`(^|\s)(@[\w\-.]*)$`)

// Token is an active mention token in the composer.
type Token struct {
	Start int    // byte offset of '@'
	End   int    // byte offset one past the token (the caret)
	Text  string // includes the leading '@'
}

// Query returns the token text without the leading '@'.
func (t Token) Query() string {
	return strings.TrimPrefix(t.Text, "@")
}

// CandidatesFromRoom builds the candidate set for a room: the bot
// roster plus every participant except the current user. Recomputed per
// room load; never persisted.
func CandidatesFromRoom(room models.Room, roster models.BotRoster, selfID string) []Candidate {
	candidates := make([]Candidate, 0, len(roster.Bots)+len(room.Users))
	for _, bot := range roster.Bots {
		candidates = append(candidates, Candidate{Name: bot.Name, Kind: KindBot})
	}

	self := strings.ToLower(room.Users[selfID].Username)
	usernames := make([]string, 0, len(room.Users))
	for id, user := range room.Users {
		if id == selfID || user.Username == "" {
			continue
		}
		if strings.ToLower(user.Username) == self && self != "" {
			continue
		}
		usernames = append(usernames, user.Username)
	}
	sort.Strings(usernames) // map iteration order is not stable
	for _, name := range usernames {
		candidates = append(candidates, Candidate{Name: name, Kind: KindHuman})
	}
	return candidates
}

// UpdateSuggestions filters candidates by case-insensitive substring
// match, deduplicates, and truncates to MaxSuggestions. On an empty
// query, bots sort to the front: they are zero-effort targets.
func UpdateSuggestions(query string, candidates []Candidate) []Candidate {
	q := strings.ToLower(query)

	matched := make([]Candidate, 0, len(candidates))
	seen := make(map[string]bool)
	for _, c := range candidates {
		lower := strings.ToLower(c.Name)
		if seen[lower] {
			continue
		}
		if q != "" && !strings.Contains(lower, q) {
			continue
		}
		seen[lower] = true
		matched = append(matched, c)
	}

	if q == "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Kind == KindBot && matched[j].Kind != KindBot
		})
	}

	if len(matched) > MaxSuggestions {
		matched = matched[:MaxSuggestions]
	}
	return matched
}

// DetectActiveToken returns the mention token under the caret, if any.
// A token is active only when the caret sits inside or immediately
// after an @-run that begins the string or follows whitespace, and the
// character after the caret (if any) is whitespace or sentence
// punctuation.
func DetectActiveToken(text string, caret int) (Token, bool) {
	if caret < 0 || caret > len(text) {
		return Token{}, false
	}

	before := text[:caret]
	after := text[caret:]

	m := activeTokenRegex.FindStringSubmatchIndex(before)
	if m == nil {
		return Token{}, false
	}
	if after != "" && !isBoundary(after[0]) {
		return Token{}, false
	}

	start := m[4] // start of the @token group
	return Token{Start: start, End: caret, Text: before[start:]}, true
}

func isBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\n', ',', '.', '!', '?', ')':
		return true
	}
	return false
}

// InsertMention replaces the active token at the caret with @name and
// a single trailing space, preserving all surrounding text. It returns
// the new text and the caret position just after the inserted space.
// When no token is active, the input is returned unchanged.
func InsertMention(text string, caret int, name string) (string, int) {
	token, ok := DetectActiveToken(text, caret)
	if !ok {
		return text, caret
	}

	replaced := text[:token.Start] + "@" + name + " "
	newCaret := len(replaced)
	return replaced + text[caret:], newCaret
}

// ParseAll returns the unique @mentioned names in a message body, in
// first-occurrence order.
func ParseAll(text string) []string {
	matches := mentionRegex.FindAllStringSubmatch(text, -1)
	names := make([]string, 0, len(matches))
	seen := make(map[string]bool)
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}
