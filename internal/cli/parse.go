package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/idsync/internal/models"
)

// parseIdentities turns repeated "type=value" pairs into a request map.
// Names are checked by the resolver, not here.
func parseIdentities(pairs []string) (map[string]string, error) {
	ids := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("identity %q must be type=value", p)
		}
		ids[strings.ToLower(name)] = value
	}
	return ids, nil
}

// parseValue reads an attribute value typed on the command line: numbers and
// booleans keep their type, anything else is a string.
func parseValue(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(value))
		for i, item := range value {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}

func attributeRows(attrs models.Attributes) [][]string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, formatValue(attrs[k])})
	}
	return rows
}

func identityRows(ids map[string]string) [][]string {
	keys := make([]string, 0, len(ids))
	for k := range ids {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, ids[k]})
	}
	return rows
}
