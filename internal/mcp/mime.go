package mcp

import (
	"path"
	"strings"
)

// mimeTypes maps documentation extensions to MIME types.
var mimeTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".adoc":     "text/asciidoc",
	".asciidoc": "text/asciidoc",
	".txt":      "text/plain",
	".rst":      "text/x-rst",
}

// MimeTypeForPath returns the MIME type for a document path, "text/plain"
// for unknown extensions.
func MimeTypeForPath(p string) string {
	if mime, ok := mimeTypes[strings.ToLower(path.Ext(p))]; ok {
		return mime
	}
	return "text/plain"
}
