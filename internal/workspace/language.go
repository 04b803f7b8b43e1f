package workspace

import (
	"path"
	"strings"
)

const defaultLanguage = "plaintext"

var extensionLanguages = map[string]string{
	"js":   "javascript",
	"jsx":  "javascript",
	"ts":   "typescript",
	"tsx":  "typescript",
	"py":   "python",
	"cpp":  "cpp",
	"c":    "cpp",
	"java": "java",
	"html": "html",
	"css":  "css",
	"json": "json",
	"md":   "markdown",
	"txt":  "plaintext",
}

// LanguageFor derives the editor language from a file name's extension.
func LanguageFor(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if lang, ok := extensionLanguages[strings.ToLower(ext)]; ok {
		return lang
	}
	return defaultLanguage
}

// Extensions returns a copy of the extension table.
func Extensions() map[string]string {
	out := make(map[string]string, len(extensionLanguages))
	for k, v := range extensionLanguages {
		out[k] = v
	}
	return out
}
