package common

import (
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// ParseNumber parses a loosely formatted decimal: surrounding spaces, thin
// spaces as thousands separators and a comma decimal separator are accepted.
func ParseNumber(raw string) (float64, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, false
	}
	value = strings.NewReplacer(" ", "", "\u00a0", "", "\u2009", "").Replace(value)
	if strings.Count(value, ",") == 1 && !strings.Contains(value, ".") {
		value = strings.Replace(value, ",", ".", 1)
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}

// Float coerces a number or numeric string node. Any other shape is not a number.
func Float(n *Node) (float64, bool) {
	if n == nil {
		return 0, false
	}
	switch n.Kind {
	case KindNumber:
		return n.Number, true
	case KindString:
		return ParseNumber(n.Text)
	default:
		return 0, false
	}
}

// Count coerces a node to a non-negative integer, falling back to 0.
func Count(n *Node) int {
	value, ok := Float(n)
	if !ok || value <= 0 {
		return 0
	}
	if value > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(value)
}

// Flag reads 1/0, true/false and yes/no style flags.
func Flag(n *Node) bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case KindBool:
		return n.Bool
	case KindNumber:
		return n.Number != 0
	case KindString:
		switch strings.ToLower(strings.TrimSpace(n.Text)) {
		case "1", "true", "yes", "y", "on":
			return true
		}
		if value, ok := ParseNumber(n.Text); ok {
			return value != 0
		}
	}
	return false
}

// Text returns the trimmed text of a scalar node. An XML element that carries
// attributes keeps its text under "text".
func Text(n *Node) string {
	if n.IsObject() {
		return strings.TrimSpace(n.Get("text").Scalar())
	}
	return strings.TrimSpace(n.Scalar())
}

// FirstField returns the first present, non-null field among names.
func FirstField(n *Node, names ...string) *Node {
	for _, name := range names {
		if value := n.Get(name); !value.IsNull() {
			return value
		}
	}
	return nil
}
