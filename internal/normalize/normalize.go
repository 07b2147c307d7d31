// Package normalize coerces loosely structured model output into plain text.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Text converts a decoded JSON value into display text. Strings pass
// through, arrays become newline-joined lines and objects are read through
// their text, content, lines or items member before falling back to
// indented JSON.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		return joinLines(t)
	case map[string]any:
		if s, ok := t["text"].(string); ok {
			return s
		}
		if s, ok := t["content"].(string); ok {
			return s
		}
		if lines, ok := t["lines"].([]any); ok {
			return joinLines(lines)
		}
		if items, ok := t["items"].([]any); ok {
			return joinLines(items)
		}
		b, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// JSON decodes raw and converts the result with Text. Undecodable input is
// returned verbatim.
func JSON(raw []byte) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return Text(v)
}

// MaxTags caps the number of tags kept by Tags.
const MaxTags = 20

// Tags converts a decoded value into a comma-separated tag list. Tags are
// split on commas and newlines, trimmed and capped at MaxTags.
func Tags(v any) string {
	fields := strings.FieldsFunc(strings.TrimSpace(Text(v)), func(r rune) bool {
		return r == ',' || r == '\n'
	})

	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			tags = append(tags, f)
		}
		if len(tags) == MaxTags {
			break
		}
	}
	return strings.Join(tags, ", ")
}

func joinLines(values []any) string {
	lines := make([]string, 0, len(values))
	for _, v := range values {
		if s := Text(v); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}
