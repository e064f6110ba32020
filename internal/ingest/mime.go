package ingest

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLimit bounds how much of a file participates in content sniffing.
const sniffLimit = 512

// dotfileNames maps well-known extensionless dotfiles to text/plain.
var dotfileNames = map[string]string{
	".bashrc":        "text/plain",
	".bash_profile":  "text/plain",
	".zshrc":         "text/plain",
	".profile":       "text/plain",
	".vimrc":         "text/plain",
	".gitignore":     "text/plain",
	".gitconfig":     "text/plain",
	".gitattributes": "text/plain",
	".editorconfig":  "text/plain",
	".env":           "text/plain",
	".npmrc":         "text/plain",
	".dockerignore":  "text/plain",
}

// inferMIME determines a file's MIME type: extension table first, then the
// known-dotfile table, then a content sniff of the first 512 bytes.
func inferMIME(name string, content []byte) string {
	if ext := filepath.Ext(name); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return stripParams(t)
		}
	}

	if t, ok := dotfileNames[strings.ToLower(filepath.Base(name))]; ok {
		return t
	}

	head := content
	if len(head) > sniffLimit {
		head = head[:sniffLimit]
	}
	return stripParams(mimetype.Detect(head).String())
}

// stripParams drops any "; charset=..." suffix from a MIME string.
func stripParams(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
