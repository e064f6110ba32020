package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferMIME(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

	tests := []struct {
		name    string
		content []byte
		want    string
	}{
		{"report.pdf", nil, "application/pdf"},
		{"image.png", nil, "image/png"},
		{"notes.txt", []byte("hello"), "text/plain"},
		{".bashrc", []byte("export PATH=$PATH"), "text/plain"},
		{".gitignore", []byte("*.o"), "text/plain"},
		// No extension, no dotfile entry: content sniff decides.
		{"mystery", pngHeader, "image/png"},
		{"readme", []byte("just some words"), "text/plain"},
	}

	for _, tc := range tests {
		got := inferMIME(tc.name, tc.content)
		assert.Equal(t, tc.want, got, "file %q", tc.name)
	}
}

func TestInferMIME_NoParams(t *testing.T) {
	// mime.TypeByExtension returns "text/plain; charset=utf-8" on some
	// platforms; the parameter must be stripped.
	got := inferMIME("notes.txt", nil)
	assert.Equal(t, "text/plain", got)
}
