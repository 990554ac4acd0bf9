package model

// Question is a single assessment item as served to one candidate.
// ShuffledOptions is ordered by the server per user; position i is answered
// with letter OptionLetter(i) and must never be re-shuffled locally.
type Question struct {
	Text            string   `json:"text"`
	ShuffledOptions []string `json:"shuffled_options"`
}

// MaxOptions bounds the answer alphabet to A..Z.
const MaxOptions = 26

// OptionLetter returns the answer key for the option at position i.
func OptionLetter(i int) string {
	if i < 0 || i >= MaxOptions {
		return ""
	}
	return string(rune('A' + i))
}

// IsAnswerLetter reports whether s is a well-formed single answer letter.
func IsAnswerLetter(s string) bool {
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'Z'
}

// Letters lists the answer keys available for this question.
func (q Question) Letters() []string {
	n := len(q.ShuffledOptions)
	if n > MaxOptions {
		n = MaxOptions
	}
	out := make([]string, n)
	for i := range out {
		out[i] = OptionLetter(i)
	}
	return out
}
