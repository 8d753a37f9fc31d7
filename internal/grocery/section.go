// Package grocery classifies item names into store sections for grouped
// display. Sections are derived on read and never stored.
package grocery

import (
	"sort"
	"strings"
)

// Other is the section for names that match no keyword.
const Other = "Other"

// walkOrder is the order sections are presented in, roughly the path through
// a typical store.
var walkOrder = []string{
	"Produce",
	"Bakery",
	"Dairy",
	"Meat & Seafood",
	"Pantry",
	"Frozen",
	"Beverages",
	"Snacks",
	"Household",
	"Personal Care",
	Other,
}

var keywords = map[string][]string{
	"Produce": {
		"apple", "banana", "orange", "lemon", "lime", "avocado", "tomato",
		"potato", "onion", "garlic", "lettuce", "spinach", "kale", "broccoli",
		"carrot", "celery", "cucumber", "pepper", "mushroom", "corn", "grape",
		"berry", "strawberry", "blueberry", "peach", "pear", "melon",
		"watermelon", "cilantro", "parsley", "ginger", "zucchini", "salad",
	},
	"Bakery": {
		"bread", "bagel", "bun", "roll", "tortilla", "croissant", "muffin",
		"baguette", "pita", "sourdough", "cake",
	},
	"Dairy": {
		"milk", "cheese", "butter", "yogurt", "cream", "egg", "sour cream",
		"cottage cheese", "cream cheese", "half and half", "oat milk",
		"almond milk",
	},
	"Meat & Seafood": {
		"chicken", "beef", "pork", "turkey", "bacon", "sausage", "ham",
		"steak", "salmon", "shrimp", "tuna", "fish", "ground beef", "lamb",
		"chicken breast",
	},
	"Pantry": {
		"rice", "pasta", "flour", "sugar", "salt", "oil", "olive oil",
		"vinegar", "beans", "cereal", "oatmeal", "peanut butter", "jam",
		"honey", "sauce", "soup", "canned", "spice", "noodle", "syrup",
		"baking soda", "ketchup", "mustard", "mayo",
	},
	"Frozen": {
		"frozen", "ice cream", "ice", "frozen pizza", "popsicle",
		"frozen vegetables", "waffle",
	},
	"Beverages": {
		"water", "juice", "soda", "coffee", "tea", "beer", "wine",
		"sparkling water", "lemonade", "kombucha",
	},
	"Snacks": {
		"chip", "cracker", "cookie", "popcorn", "pretzel", "candy",
		"chocolate", "snack", "granola bar", "nuts",
	},
	"Household": {
		"paper towel", "toilet paper", "trash bag", "dish soap", "detergent",
		"laundry", "sponge", "foil", "plastic wrap", "battery", "light bulb",
		"cleaner",
	},
	"Personal Care": {
		"shampoo", "conditioner", "toothpaste", "toothbrush", "deodorant",
		"lotion", "sunscreen", "razor", "tissue", "body wash", "floss",
	},
}

type match struct {
	keyword string
	section string
}

// index holds every keyword, longest first, so "ice cream" beats "ice" and
// "cream".
var index = buildIndex()

func buildIndex() []match {
	var out []match
	for section, words := range keywords {
		for _, w := range words {
			out = append(out, match{keyword: w, section: section})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].keyword) != len(out[j].keyword) {
			return len(out[i].keyword) > len(out[j].keyword)
		}
		return out[i].keyword < out[j].keyword
	})
	return out
}

// Section returns the store section for an item name.
func Section(name string) string {
	padded := " " + normalize(name) + " "
	if strings.TrimSpace(padded) == "" {
		return Other
	}

	for _, m := range index {
		if containsWord(padded, m.keyword) {
			return m.section
		}
	}
	return Other
}

// Sections returns all section names in presentation order.
func Sections() []string {
	out := make([]string, len(walkOrder))
	copy(out, walkOrder)
	return out
}

// Rank returns the position of a section in presentation order. Unknown
// sections sort with Other.
func Rank(section string) int {
	for i, s := range walkOrder {
		if s == section {
			return i
		}
	}
	return len(walkOrder) - 1
}

// normalize lowercases the name and replaces punctuation with spaces.
func normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// containsWord matches kw at word boundaries, also accepting the simple
// plurals "s" and "es".
func containsWord(padded, kw string) bool {
	for _, suffix := range []string{"", "s", "es"} {
		if strings.Contains(padded, " "+kw+suffix+" ") {
			return true
		}
	}
	// "berry" -> "berries"
	if strings.HasSuffix(kw, "y") {
		return strings.Contains(padded, " "+strings.TrimSuffix(kw, "y")+"ies ")
	}
	return false
}
