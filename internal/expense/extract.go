package expense

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	// contextRadius is how many characters on each side of an amount feed
	// classification and title lookup
	contextRadius = 50

	syntheticTitle = "Expense from email"
	fallbackTitle  = "Expense"
)

// numberPattern matches 1,234.56 style grouped numbers before plain ones
const numberPattern = `\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`

// amountMatcher finds every amount written in one phrasing convention
type amountMatcher func(text string) []AmountCandidate

var (
	symbolAmountRe  = regexp.MustCompile(`[$€£₹]\s?(` + numberPattern + `)`)
	codeAmountRe    = regexp.MustCompile(`(` + numberPattern + `)\s?(?i:USD|EUR|GBP|INR|dollars?)\b`)
	labeledAmountRe = regexp.MustCompile(`(?i)\b(?:total|amount|payment|charged|price|cost|bill|invoice)\b\s*:?\s*[$€£₹]?\s?(` + numberPattern + `)`)
)

// amountMatchers run in this order; their results are concatenated without dedup
var amountMatchers = []amountMatcher{
	regexpMatcher(symbolAmountRe),
	regexpMatcher(codeAmountRe),
	regexpMatcher(labeledAmountRe),
}

// regexpMatcher turns a pattern whose first group is the numeric part into a matcher.
// Matches that do not parse to a positive number are dropped.
func regexpMatcher(re *regexp.Regexp) amountMatcher {
	return func(text string) []AmountCandidate {
		var out []AmountCandidate
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			value, ok := parseAmount(text[loc[2]:loc[3]])
			if !ok {
				continue
			}
			out = append(out, AmountCandidate{
				Value:       value,
				MatchedText: text[loc[0]:loc[1]],
				Offset:      loc[0],
			})
		}
		return out
	}
}

// parseAmount strips group separators and parses a positive decimal
func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

var (
	merchantActionRe  = regexp.MustCompile(`(?i)\b(?:purchase|payment|transaction|charge)\s+(?:at|to|from)\s+([A-Za-z0-9&'.-]+(?:[ \t]+[A-Za-z0-9&'.-]+){0,3})`)
	merchantBetweenRe = regexp.MustCompile(`(?i)\b(?:from|at|to)\s+([A-Za-z0-9&'.-]+(?:[ \t]+[A-Za-z0-9&'.-]+){0,3}?)\s+(?:on|for)\b`)
	merchantPlaceRe   = regexp.MustCompile(`\b([A-Z][A-Za-z0-9&'-]*(?:[ \t]+[A-Z][A-Za-z0-9&'-]*){0,2})[ \t]+(?i:store|restaurant|shop|market)\b`)
	capitalizedRunRe  = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]{1,19}\b(?:[ \t]+[A-Z][A-Za-z0-9]{1,19}\b)*`)
)

var merchantPatterns = []*regexp.Regexp{
	merchantActionRe,
	merchantBetweenRe,
	merchantPlaceRe,
}

// stopWords end a captured merchant name
var stopWords = map[string]bool{
	"on": true, "for": true, "of": true, "via": true, "using": true, "with": true,
	"at": true, "to": true, "from": true, "and": true, "was": true, "is": true,
	"has": true, "your": true, "in": true,
}

// Extractor turns free text into expense data
type Extractor struct {
	classifier *Classifier
}

// NewExtractor creates an Extractor that categorizes with classifier
func NewExtractor(classifier *Classifier) *Extractor {
	return &Extractor{classifier: classifier}
}

// ScanAmounts runs every amount matcher over text and returns the candidates in
// matcher order, each matcher's results in document order. Overlapping matches
// from different matchers are all kept.
func (e *Extractor) ScanAmounts(text string) []AmountCandidate {
	var candidates []AmountCandidate
	for _, match := range amountMatchers {
		candidates = append(candidates, match(text)...)
	}
	return candidates
}

// ExtractExpense locates the amounts in text and builds a total with line items.
// It returns ErrNoAmountFound when text holds no positive amount.
func (e *Extractor) ExtractExpense(text string) (*ExpenseData, error) {
	candidates := e.ScanAmounts(text)
	if len(candidates) == 0 {
		return nil, ErrNoAmountFound
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Value.GreaterThan(candidates[j].Value)
	})
	provisional := candidates[0].Value

	if singleOccurrence(candidates) {
		return &ExpenseData{
			Total: provisional,
			Items: []LineItem{{Amount: provisional, Title: syntheticTitle, Category: CategoryUnknown}},
		}, nil
	}

	// With three or more distinct values the largest is taken to be the total line
	skipTotal := distinctValues(candidates) > 2

	items := make([]LineItem, 0, len(candidates))
	for _, c := range candidates {
		if skipTotal && c.Value.Equal(provisional) {
			continue
		}
		start, end := c.span()
		window, lo := contextWindow(text, start, end)
		items = append(items, LineItem{
			Amount:   c.Value,
			Title:    deriveTitle(window[:start-lo] + window[end-lo:]),
			Category: e.classifier.Classify(window),
		})
	}

	calculated := decimal.Zero
	for _, item := range items {
		calculated = calculated.Add(item.Amount)
	}

	total := provisional
	if calculated.Sub(provisional).Abs().LessThanOrEqual(decimal.NewFromFloat(0.01)) || len(items) > 1 {
		total = calculated
	}

	return &ExpenseData{Total: total, Items: items}, nil
}

// singleOccurrence reports whether every candidate is the same amount written
// once: equal values whose matched spans all overlap each other
func singleOccurrence(candidates []AmountCandidate) bool {
	for i, a := range candidates {
		if !a.Value.Equal(candidates[0].Value) {
			return false
		}
		aStart, aEnd := a.span()
		for _, b := range candidates[i+1:] {
			bStart, bEnd := b.span()
			if aStart >= bEnd || bStart >= aEnd {
				return false
			}
		}
	}
	return true
}

func distinctValues(candidates []AmountCandidate) int {
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		// String() is canonical, so 45 and 45.00 collapse
		seen[c.Value.String()] = struct{}{}
	}
	return len(seen)
}

// contextWindow returns text[start:end] widened by contextRadius runes on each
// side, and the offset in text where the window begins
func contextWindow(text string, start, end int) (string, int) {
	lo := start
	for i := 0; i < contextRadius && lo > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:lo])
		lo -= size
	}
	hi := end
	for i := 0; i < contextRadius && hi < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[hi:])
		hi += size
	}
	return text[lo:hi], lo
}

// deriveTitle picks a merchant-like name out of the context around an amount
func deriveTitle(context string) string {
	for _, re := range merchantPatterns {
		m := re.FindStringSubmatch(context)
		if len(m) < 2 {
			continue
		}
		if name := cleanMerchant(m[1]); name != "" {
			return name
		}
	}

	if run := strings.Join(strings.Fields(capitalizedRunRe.FindString(context)), " "); run != "" {
		return run
	}
	return fallbackTitle
}

// cleanMerchant cuts a captured name at the first stop word and trims punctuation
func cleanMerchant(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if stopWords[strings.ToLower(w)] {
			words = words[:i]
			break
		}
	}
	return strings.Trim(strings.Join(words, " "), ".,;:-'")
}
