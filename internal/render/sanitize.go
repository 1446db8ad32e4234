package render

import (
	"html/template"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	inlinePolicyOnce sync.Once
	inlinePolicy     *bluemonday.Policy
)

// inlineHTML sanitizes generator text that may carry inline markup and
// returns it ready for the template. Only inline formatting survives.
func inlineHTML(raw string) template.HTML {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	cleaned := strings.TrimSpace(inlineSanitizer().Sanitize(trimmed))
	return template.HTML(cleaned)
}

func inlineSanitizer() *bluemonday.Policy {
	inlinePolicyOnce.Do(func() {
		policy := bluemonday.StrictPolicy()
		policy.AllowElements(
			"b", "strong", "i", "em", "u", "s", "br",
			"sub", "sup", "small", "mark", "code",
		)
		inlinePolicy = policy
	})
	return inlinePolicy
}
