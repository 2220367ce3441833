package notify

import "strings"

// Render substitutes {name} placeholders in a tenant-supplied template.
//
// Placeholders without a matching variable pass through verbatim; the
// caller is responsible for supplying every key the platform defines.
// Rendering is pure and idempotent.
func Render(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
