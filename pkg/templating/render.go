// Package templating substitutes {{variable}} placeholders in notification text.
package templating

import (
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render replaces every {{key}} occurrence for each key in variables with the
// string form of its value. Placeholders without a matching key are left as-is and
// substituted values are never re-scanned.
func Render(template string, variables map[string]any) string {
	if template == "" {
		return ""
	}
	if len(variables) == 0 {
		return template
	}

	keys := make([]string, 0, len(variables))
	for key := range variables {
		if key == "" {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return template
	}

	// longest first so a key that prefixes another cannot shadow it
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	quoted := make([]string, len(keys))
	for i, key := range keys {
		quoted[i] = regexp.QuoteMeta(key)
	}

	pattern, err := regexp.Compile(`\{\{(?:` + strings.Join(quoted, "|") + `)\}\}`)
	if err != nil {
		return template
	}

	return pattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[2 : len(match)-2]
		return Stringify(variables[key])
	})
}

// RenderAll renders each string with the same variables.
func RenderAll(variables map[string]any, templates ...string) []string {
	out := make([]string, len(templates))
	for i, tmpl := range templates {
		out[i] = Render(tmpl, variables)
	}
	return out
}

// ExtractVariables returns the distinct placeholder names found across text, in
// first-seen order.
func ExtractVariables(text ...string) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)

	for _, chunk := range text {
		if chunk == "" {
			continue
		}
		for _, match := range placeholderPattern.FindAllStringSubmatch(chunk, -1) {
			name := match[1]
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}

	return names
}

// Stringify formats a variable value the way it should appear inside notification text.
func Stringify(value any) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return cast.ToString(int64(v))
		}
	case float32:
		if v == float32(int64(v)) {
			return cast.ToString(int64(v))
		}
	}

	if s, err := cast.ToStringE(value); err == nil {
		return s
	}
	return ""
}
