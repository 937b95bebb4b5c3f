package service

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

const maxSanitizePasses = 8

// sanitizeMarkdown drops markup the policy does not allow and keeps Markdown text
// such as "x < 5 && y > 2" exactly as written. The result is a fixed point of the policy,
// so entity-encoded tags cannot come back to life after unescaping.
func sanitizeMarkdown(policy *bluemonday.Policy, text string) string {
	current := text
	for pass := 0; pass < maxSanitizePasses; pass++ {
		next := html.UnescapeString(policy.Sanitize(current))
		if next == current {
			return next
		}
		current = next
	}
	return policy.Sanitize(current)
}
