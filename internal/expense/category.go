package expense

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is a spending category label
type Category string

const (
	CategoryFood          Category = "food"
	CategoryRent          Category = "rent"
	CategoryTravel        Category = "travel"
	CategoryUtility       Category = "utility"
	CategoryEntertainment Category = "entertainment"
	CategoryShopping      Category = "shopping"
	CategoryHealth        Category = "health"
	CategoryEducation     Category = "education"
	CategoryGift          Category = "gift"
	CategoryFitness       Category = "fitness"
	CategoryInvestment    Category = "investment"
	CategoryUnknown       Category = "unknown"
)

// VocabularyVersion changes whenever the category set below changes.
// Clients that map categories to colors or icons key their tables on it.
const VocabularyVersion = "2024-1"

var vocabulary = []Category{
	CategoryFood,
	CategoryRent,
	CategoryTravel,
	CategoryUtility,
	CategoryEntertainment,
	CategoryShopping,
	CategoryHealth,
	CategoryEducation,
	CategoryGift,
	CategoryFitness,
	CategoryInvestment,
	CategoryUnknown,
}

// Categories returns the full category vocabulary in display order
func Categories() []Category {
	out := make([]Category, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// Valid reports whether c belongs to the vocabulary
func (c Category) Valid() bool {
	for _, v := range vocabulary {
		if c == v {
			return true
		}
	}
	return false
}

// ParseCategory normalizes a free-form label, clamping anything outside
// the vocabulary to CategoryUnknown
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return CategoryUnknown
	}
	return c
}

// CategoryKeywords pairs a category with the keywords that select it
type CategoryKeywords struct {
	Category Category `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// DefaultCategoryTable returns a copy of the built-in keyword table.
// Order matters: the first category with a matching keyword wins.
func DefaultCategoryTable() []CategoryKeywords {
	return []CategoryKeywords{
		{CategoryFood, []string{"restaurant", "food", "cafe", "coffee", "pizza", "burger", "grocer", "swiggy", "zomato", "doordash", "uber eats", "starbucks", "dinner", "lunch", "bakery"}},
		{CategoryRent, []string{"rent", "leasing", "lease agreement", "landlord", "apartment", "housing society"}},
		{CategoryTravel, []string{"flight", "airline", "airways", "hotel", "uber", "lyft", "taxi", "railway", "train ticket", "bus ticket", "fuel", "petrol", "parking"}},
		{CategoryUtility, []string{"electricity", "electric", "water bill", "gas bill", "internet", "broadband", "wifi", "phone bill", "recharge", "utilit"}},
		{CategoryEntertainment, []string{"netflix", "spotify", "hulu", "disney", "movie", "cinema", "theatre", "concert", "gaming", "steam"}},
		{CategoryShopping, []string{"amazon", "walmart", "target", "flipkart", "ebay", "clothing", "apparel", "shop", "store"}},
		{CategoryHealth, []string{"pharmacy", "hospital", "doctor", "clinic", "medical", "medicine", "dental", "cvs", "walgreens", "health"}},
		{CategoryEducation, []string{"tuition", "school", "college", "university", "online course", "udemy", "coursera", "textbook", "exam fee"}},
		{CategoryGift, []string{"gift", "donation", "charity", "birthday", "wedding"}},
		{CategoryFitness, []string{"gym", "fitness", "yoga", "workout", "sports", "peloton"}},
		{CategoryInvestment, []string{"investment", "mutual fund", "stocks", "brokerage", "zerodha", "robinhood", "crypto", "dividend"}},
	}
}

type categoryTableFile struct {
	Categories []CategoryKeywords `yaml:"categories"`
}

// LoadCategoryTable reads an ordered keyword table from a YAML file of the form
//
//	categories:
//	  - name: food
//	    keywords: [pizza, cafe]
func LoadCategoryTable(path string) ([]CategoryKeywords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading category table: %w", err)
	}
	return ParseCategoryTable(data)
}

// ParseCategoryTable decodes and validates a YAML keyword table
func ParseCategoryTable(data []byte) ([]CategoryKeywords, error) {
	var file categoryTableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing category table: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("category table has no categories")
	}

	for i, entry := range file.Categories {
		c := Category(strings.ToLower(strings.TrimSpace(string(entry.Category))))
		if !c.Valid() || c == CategoryUnknown {
			return nil, fmt.Errorf("category table entry %d: %q is not a known category", i, entry.Category)
		}
		file.Categories[i].Category = c
	}

	return file.Categories, nil
}

// Classifier maps a snippet of text to a category by keyword lookup
type Classifier struct {
	table []CategoryKeywords
}

// NewClassifier builds a classifier over table. The table is copied and its
// keywords lower-cased, so later changes to the argument have no effect.
// Labels outside the vocabulary are clamped to CategoryUnknown.
func NewClassifier(table []CategoryKeywords) *Classifier {
	normalized := make([]CategoryKeywords, 0, len(table))
	for _, entry := range table {
		keywords := make([]string, 0, len(entry.Keywords))
		for _, kw := range entry.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		normalized = append(normalized, CategoryKeywords{Category: ParseCategory(string(entry.Category)), Keywords: keywords})
	}
	return &Classifier{table: normalized}
}

// NewDefaultClassifier returns a classifier over DefaultCategoryTable
func NewDefaultClassifier() *Classifier {
	return NewClassifier(DefaultCategoryTable())
}

// Classify returns the first category in table order with a keyword occurring in text,
// or CategoryUnknown
func (c *Classifier) Classify(text string) Category {
	lower := strings.ToLower(text)
	for _, entry := range c.table {
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				return entry.Category
			}
		}
	}
	return CategoryUnknown
}
