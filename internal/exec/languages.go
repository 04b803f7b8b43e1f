package exec

import (
	"sort"
	"strings"

	"velvetcode/internal/models"
)

const (
	LangPython     models.Language = "python"
	LangJavaScript models.Language = "javascript"
	LangJava       models.Language = "java"
	LangCPP        models.Language = "cpp"
)

var languageSpecs = map[models.Language]models.LanguageSpec{
	LangPython: {
		Name:     LangPython,
		FileName: "main.py",
		Image:    "python:3.11-slim",
		RunCmd:   []string{"python3", "main.py"},
	},
	LangJavaScript: {
		Name:     LangJavaScript,
		FileName: "main.js",
		Image:    "node:20-slim",
		RunCmd:   []string{"node", "main.js"},
	},
	LangJava: {
		Name:       LangJava,
		FileName:   "Main.java",
		Image:      "eclipse-temurin:17-jdk",
		CompileCmd: []string{"javac", "Main.java"},
		RunCmd:     []string{"/bin/sh", "-c", "java Main"},
	},
	LangCPP: {
		Name:       LangCPP,
		FileName:   "main.cpp",
		Image:      "gcc:13",
		CompileCmd: []string{"g++", "-O2", "-std=c++17", "main.cpp", "-o", "main"},
		RunCmd:     []string{"./main"},
	},
}

var languageAliases = map[string]models.Language{
	"py":      LangPython,
	"python3": LangPython,
	"js":      LangJavaScript,
	"node":    LangJavaScript,
	"c++":     LangCPP,
	"c":       LangCPP,
}

// LookupLanguage resolves an editor language id or common alias.
func LookupLanguage(name string) (models.LanguageSpec, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := languageAliases[key]; ok {
		key = string(alias)
	}
	spec, ok := languageSpecs[models.Language(key)]
	return spec, ok
}

// Languages lists the runnable languages ordered by name.
func Languages() []models.LanguageSpec {
	out := make([]models.LanguageSpec, 0, len(languageSpecs))
	for _, spec := range languageSpecs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func steps(spec models.LanguageSpec) [][]string {
	var cmds [][]string
	if len(spec.CompileCmd) > 0 {
		cmds = append(cmds, spec.CompileCmd)
	}
	return append(cmds, spec.RunCmd)
}
