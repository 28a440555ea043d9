package capture

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Line labels for diagnostic items.
const (
	ErrorLabel   = "error: "
	WarningLabel = "warning: "
	MessageLabel = "message: "
)

// OmittedSuffix is appended to output cut by [Truncate].
const OmittedSuffix = "... output omitted, too long"

// Normalize renders items as display text, one line per item joined by "\n".
// Images produce no text; use [Images] to collect them.
func Normalize(items []Item) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		line, ok := render(it)
		if !ok {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Images returns the image items in emission order.
func Images(items []Item) []Image {
	var images []Image
	for _, it := range items {
		if img, ok := it.(Image); ok {
			images = append(images, img)
		}
	}
	return images
}

func render(it Item) (string, bool) {
	switch v := it.(type) {
	case Text:
		return string(v), true
	case Stdout:
		return string(v), true
	case Stderr:
		return ErrorLabel + string(v), true
	case Warning:
		return WarningLabel + string(v), true
	case Message:
		return MessageLabel + string(v), true
	case Sequence:
		return renderSequence(v), true
	case Value:
		return renderValue(v.Data), true
	case Image:
		return "", false
	}
	return "", false
}

// NAText renders a missing element of a sequence.
const NAText = "NA"

func renderSequence(seq Sequence) string {
	if len(seq) == 0 {
		return ""
	}

	numeric, text := true, true
	var numbers, strs int
	for _, el := range seq {
		if el == nil {
			continue
		}
		if _, ok := asNumber(el); ok {
			numbers++
		} else {
			numeric = false
		}
		if _, ok := el.(string); ok {
			strs++
		} else {
			text = false
		}
	}
	numeric = numeric && numbers > 0
	text = text && strs > 0

	parts := make([]string, len(seq))
	switch {
	case numeric:
		for i, el := range seq {
			if el == nil {
				parts[i] = NAText
				continue
			}
			n, _ := asNumber(el)
			parts[i] = strconv.FormatFloat(n, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case text:
		for i, el := range seq {
			if el == nil {
				parts[i] = NAText
				continue
			}
			parts[i] = el.(string)
		}
	default:
		for i, el := range seq {
			if el == nil {
				parts[i] = NAText
				continue
			}
			parts[i] = fmt.Sprint(el)
		}
	}
	return strings.Join(parts, "\n")
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func renderValue(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Truncate cuts text to limit characters and appends [OmittedSuffix] when it
// is longer than limit. A limit of zero or less disables truncation.
func Truncate(text string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:limit]) + OmittedSuffix, true
}
