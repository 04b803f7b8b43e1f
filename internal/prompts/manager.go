package prompts

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

const DefaultDetail = "standard"

type PromptManager struct {
	prompts map[string]map[string]string // mode -> detail level -> complete prompt
}

// PromptTemplate is the YAML layout of one template file.
type PromptTemplate struct {
	BasePrompt   string            `yaml:"base_prompt"`
	DetailLevels map[string]string `yaml:"detail_levels"`
}

func NewPromptManager() (*PromptManager, error) {
	pm := &PromptManager{
		prompts: make(map[string]map[string]string),
	}
	if err := pm.loadPrompts(); err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}
	return pm, nil
}

// BuildPrompt fills the template for mode and detail level. Placeholders of
// the form {{.Key}} are replaced with data[Key].
func (pm *PromptManager) BuildPrompt(mode, detailLevel string, data map[string]string) (string, error) {
	modePrompts, exists := pm.prompts[mode]
	if !exists {
		return "", fmt.Errorf("template not found for mode: %s", mode)
	}
	if detailLevel == "" {
		detailLevel = DefaultDetail
	}
	prompt, exists := modePrompts[detailLevel]
	if !exists {
		return "", fmt.Errorf("detail level '%s' not found for mode '%s'", detailLevel, mode)
	}

	for key, value := range data {
		prompt = strings.ReplaceAll(prompt, "{{."+key+"}}", value)
	}
	return prompt, nil
}

// GetTemplates lists the loaded modes.
func (pm *PromptManager) GetTemplates() []string {
	modes := make([]string, 0, len(pm.prompts))
	for mode := range pm.prompts {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}

func (pm *PromptManager) loadPrompts() error {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("failed to read templates directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read template file %s: %w", entry.Name(), err)
		}

		var tmpl PromptTemplate
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return fmt.Errorf("failed to parse template file %s: %w", entry.Name(), err)
		}

		name := strings.TrimSuffix(entry.Name(), ".yaml")
		pm.prompts[name] = make(map[string]string, len(tmpl.DetailLevels))
		for level, detail := range tmpl.DetailLevels {
			var full strings.Builder
			if tmpl.BasePrompt != "" {
				full.WriteString(strings.TrimSpace(tmpl.BasePrompt))
				full.WriteString("\n\n")
			}
			full.WriteString(strings.TrimSpace(detail))
			pm.prompts[name][level] = full.String()
		}
	}
	return nil
}
