package templating

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	richTextPolicy     *bluemonday.Policy
	richTextPolicyOnce sync.Once
)

// sanitizeHTML strips scripts, event handlers and other unsafe markup from
// merchant supplied HTML while keeping ordinary formatting.
func sanitizeHTML(s string) string {
	richTextPolicyOnce.Do(func() {
		richTextPolicy = bluemonday.UGCPolicy()
		richTextPolicy.AllowAttrs("class").Globally()
		richTextPolicy.AddTargetBlankToFullyQualifiedLinks(true)
	})
	return richTextPolicy.Sanitize(s)
}
