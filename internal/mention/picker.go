package mention

// Key is a composer key relevant to the suggestion picker.
type Key int

const (
	KeyUp Key = iota
	KeyDown
	KeyEnter
	KeyTab
	KeyEscape
)

// Picker holds the suggestion list and the highlighted entry, and
// applies the keyboard contract: Up/Down cycle with wraparound,
// Enter/Tab commit, Escape dismisses without touching the text.
type Picker struct {
	suggestions []Candidate
	index       int
	visible     bool
}

// SetSuggestions replaces the suggestion list and resets the highlight.
// An empty list hides the picker.
func (p *Picker) SetSuggestions(suggestions []Candidate) {
	p.suggestions = suggestions
	p.index = 0
	p.visible = len(suggestions) > 0
}

// Dismiss hides the picker.
func (p *Picker) Dismiss() {
	p.visible = false
	p.index = 0
}

// Visible reports whether the picker is showing.
func (p *Picker) Visible() bool {
	return p.visible
}

// Suggestions returns the current suggestion list.
func (p *Picker) Suggestions() []Candidate {
	return p.suggestions
}

// Highlighted returns the currently highlighted candidate.
func (p *Picker) Highlighted() (Candidate, bool) {
	if !p.visible || len(p.suggestions) == 0 {
		return Candidate{}, false
	}
	return p.suggestions[p.index], true
}

// HandleKey applies a keypress. It returns the committed candidate when
// the key completed a selection, and handled=true when the picker
// consumed the key.
func (p *Picker) HandleKey(key Key) (committed Candidate, handled bool) {
	if !p.visible || len(p.suggestions) == 0 {
		return Candidate{}, false
	}

	switch key {
	case KeyDown:
		p.index = (p.index + 1) % len(p.suggestions)
		return Candidate{}, true
	case KeyUp:
		p.index = (p.index - 1 + len(p.suggestions)) % len(p.suggestions)
		return Candidate{}, true
	case KeyEnter, KeyTab:
		c := p.suggestions[p.index]
		p.Dismiss()
		return c, true
	case KeyEscape:
		p.Dismiss()
		return Candidate{}, true
	}
	return Candidate{}, false
}
