package expense

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	markdownTotalRe = regexp.MustCompile(`(?i)\*\*\s*Total Bill Amount\s*:?\s*\*\*\s*:?\s*[$€£₹]?\s*(` + numberPattern + `)`)
	markdownItemRe  = regexp.MustCompile(`(?im)^[ \t]*[-*+][ \t]+\*\*\s*Amount\s*:?\s*\*\*\s*:?\s*[$€£₹]?\s*(` + numberPattern + `)[ \t]*\r?\n` +
		`[ \t]*(?:[-*+][ \t]+)?\*\*\s*Title\s*:?\s*\*\*\s*:?[ \t]*([^\r\n]*?)[ \t]*\r?\n` +
		`[ \t]*(?:[-*+][ \t]+)?\*\*\s*Category\s*:?\s*\*\*\s*:?[ \t]*([A-Za-z_-]+)`)
	fencedBlockRe = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\r?\n?(.*?)```")
)

// ParseStructuredResponse interprets a vision model's bill breakdown. It tries a
// markdown layout, then a fenced code block, then the outermost brace span, then
// the whole text, stopping at the first that parses.
//
// ok is false with a nil error when no structure was found at all. A structure
// that parses but lacks a numeric total or any items yields an *InvalidResultError.
func ParseStructuredResponse(text string) (data *ExpenseData, ok bool, err error) {
	raw, found := parseMarkdown(text)
	if !found {
		raw, found = parseFenced(text)
	}
	if !found {
		raw, found = parseBraces(text)
	}
	if !found {
		raw, found = decodeObject(strings.TrimSpace(text))
	}
	if !found {
		return nil, false, nil
	}

	data, err = validateResult(raw)
	if err != nil {
		return nil, true, err
	}
	return data, true, nil
}

func parseMarkdown(text string) (map[string]any, bool) {
	if !strings.Contains(text, "**") {
		return nil, false
	}
	total := markdownTotalRe.FindStringSubmatch(text)
	if total == nil {
		return nil, false
	}
	groups := markdownItemRe.FindAllStringSubmatch(text, -1)
	if len(groups) == 0 {
		return nil, false
	}

	items := make([]any, 0, len(groups))
	for _, g := range groups {
		items = append(items, map[string]any{
			"amount":   g[1],
			"title":    g[2],
			"category": g[3],
		})
	}
	return map[string]any{"total": total[1], "items": items}, true
}

func parseFenced(text string) (map[string]any, bool) {
	m := fencedBlockRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return decodeObject(strings.TrimSpace(m[1]))
}

func parseBraces(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return nil, false
	}
	return decodeObject(text[start : end+1])
}

// decodeObject parses s as a single JSON object, keeping numbers exact
func decodeObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func validateResult(raw map[string]any) (*ExpenseData, error) {
	total, ok := coerceAmount(raw["total"])
	if !ok || total.IsNegative() {
		return nil, &InvalidResultError{Reason: "total is missing or not a number"}
	}

	rawItems, _ := raw["items"].([]any)
	if len(rawItems) == 0 {
		return nil, &InvalidResultError{Reason: "items are missing or empty"}
	}

	items := make([]LineItem, 0, len(rawItems))
	for i, ri := range rawItems {
		fields, ok := ri.(map[string]any)
		if !ok {
			return nil, &InvalidResultError{Reason: fmt.Sprintf("item %d is not an object", i)}
		}
		amount, ok := coerceAmount(fields["amount"])
		if !ok {
			return nil, &InvalidResultError{Reason: fmt.Sprintf("item %d amount is not a number", i)}
		}

		title, _ := fields["title"].(string)
		title = strings.TrimSpace(title)
		if title == "" {
			title = fallbackTitle
		}
		label, _ := fields["category"].(string)

		items = append(items, LineItem{
			Amount:   amount,
			Title:    title,
			Category: ParseCategory(label),
		})
	}

	return &ExpenseData{Total: total, Items: items}, nil
}

// coerceAmount accepts JSON numbers and numeric strings, tolerating a leading
// currency symbol and group separators
func coerceAmount(v any) (decimal.Decimal, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
		s = strings.TrimLeft(s, "$€£₹")
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	case float64:
		return decimal.NewFromFloat(t), true
	default:
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
