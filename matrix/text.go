package matrix

// MaxTextLen is the maximum number of characters a text job can hold.
const MaxTextLen = 25

// Text is a string of at most MaxTextLen bytes. Longer input is cut off when
// the Text is created; nothing beyond the limit is ever stored.
type Text struct {
	buf       [MaxTextLen]byte
	n         int
	truncated bool
}

// NewText creates a Text from s, keeping only its first MaxTextLen bytes.
func NewText(s string) Text {
	var t Text
	t.n = copy(t.buf[:], s)
	t.truncated = len(s) > MaxTextLen
	return t
}

// String returns the stored characters.
func (t Text) String() string {
	return string(t.buf[:t.n])
}

// Len returns the number of stored characters.
func (t Text) Len() int {
	return t.n
}

// At returns the i-th stored character.
func (t Text) At(i int) byte {
	return t.buf[:t.n][i]
}

// Truncated reports whether the input given to NewText was cut short.
func (t Text) Truncated() bool {
	return t.truncated
}
