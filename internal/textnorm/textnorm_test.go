package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyIdentity(t *testing.T) {
	m := Apply("Hello", Options{})
	assert.Equal(t, "Hello", m.Text)
	from, to := m.Original(1, 3)
	assert.Equal(t, 1, from)
	assert.Equal(t, 3, to)
}

func TestApplyNFKCFullWidthDigits(t *testing.T) {
	src := "SSN: １２３-45"
	m := Apply(src, Options{NFKC: true})
	assert.Equal(t, "SSN: 123-45", m.Text)

	// "123" in the canonical text maps back to the three full-width runes.
	from, to := m.Original(5, 8)
	assert.Equal(t, "１２３", src[from:to])
}

func TestApplyFold(t *testing.T) {
	src := "Straße JOHN"
	m := Apply(src, Options{Fold: true})
	assert.Equal(t, "strasse john", m.Text)

	// The folded "ss" maps back to the single ß.
	from, to := m.Original(4, 6)
	assert.Equal(t, "ß", src[from:to])

	from, to = m.Original(8, 12)
	assert.Equal(t, "JOHN", src[from:to])
}

func TestOriginalOutOfRange(t *testing.T) {
	m := Apply("abc", Options{Fold: true})
	from, to := m.Original(10, 12)
	assert.Equal(t, 3, from)
	assert.Equal(t, 3, to)
}

func TestString(t *testing.T) {
	assert.Equal(t, "ﬁle", String("ﬁle", Options{}))
	assert.Equal(t, "file", String("ﬁle", Options{NFKC: true}))
	assert.Equal(t, "file", String("FILE", Options{Fold: true}))
}
