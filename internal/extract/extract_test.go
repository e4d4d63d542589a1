package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFileText(t *testing.T) {
	content := "The quick brown fox jumps over the lazy dog near the riverbank."

	doc, err := FromFile("notes.txt", []byte(content))

	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Source)
	assert.Equal(t, content, doc.Text)
}

func TestFromFileCSV(t *testing.T) {
	content := "name,role\nalice,engineer\nbob,designer\ncarol,product manager\n"

	doc, err := FromFile("team.csv", []byte(content))

	require.NoError(t, err)
	assert.Contains(t, doc.Text, "alice,engineer")
}

func TestFromFileExtensionCaseInsensitive(t *testing.T) {
	content := "The quick brown fox jumps over the lazy dog near the riverbank."

	doc, err := FromFile("NOTES.TXT", []byte(content))

	require.NoError(t, err)
	assert.Equal(t, content, doc.Text)
}

func TestFromFileUnsupportedFormat(t *testing.T) {
	_, err := FromFile("image.png", []byte("binary stuff here, long enough to pass the length check"))

	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFromFileTooShort(t *testing.T) {
	_, err := FromFile("tiny.txt", []byte("too short"))

	assert.ErrorIs(t, err, ErrNoText)
}

func TestFromFileDropsInvalidUTF8(t *testing.T) {
	content := []byte("The quick brown fox jumps over the lazy dog near the riverbank.")
	content = append(content, 0xff, 0xfe)

	doc, err := FromFile("notes.txt", content)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.Text, "The quick brown fox"))
	assert.NotContains(t, doc.Text, "\xff")
}

func TestFromFileCorruptPDF(t *testing.T) {
	_, err := FromFile("broken.pdf", []byte("this is not a real pdf file, just text pretending to be"))

	assert.Error(t, err)
}
