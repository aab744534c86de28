package runtime

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/aretw0/tendril/pkg/domain"
)

// RenderPrompt renders an agent prompt template against {"input": input}.
// An empty template yields the input unchanged.
func RenderPrompt(tmpl, input string) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		return input, nil
	}

	t, err := template.New("prompt").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPromptRender, err)
	}

	var sb strings.Builder
	if err := t.Execute(&sb, map[string]any{"input": input}); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPromptRender, err)
	}
	return sb.String(), nil
}
