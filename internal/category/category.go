// Package category maps free-text inventory labels to the fixed set of item
// categories the quoting engine prices differently. It is the only place that
// keyword rules live; detection tagging, specialty pricing, validation and
// upsell derivation all read from the same table.
package category

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/owoblo/quote2move/internal/model"
)

// Category is a pricing-relevant item class.
type Category string

const (
	None      Category = ""
	Piano     Category = "piano"
	PoolTable Category = "pool_table"
	Safe      Category = "safe"
	Gym       Category = "gym"
	TV        Category = "tv"
	Fragile   Category = "fragile"
	Appliance Category = "appliance"
	Bed       Category = "bed"
)

// keyword is matched either as a whole word/phrase or as a raw substring.
// Short tokens use whole-word matching so "art" does not fire on "smart".
type keyword struct {
	text string
	word bool
}

func w(text string) keyword { return keyword{text: text, word: true} }
func s(text string) keyword { return keyword{text: text} }

type rule struct {
	category Category
	keywords []keyword
	exclude  []keyword
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{
		category: Piano,
		keywords: []keyword{s("piano")},
		exclude:  []keyword{w("bench"), w("stool"), w("lamp")},
	},
	{
		category: PoolTable,
		keywords: []keyword{s("pool table"), s("billiard"), s("snooker")},
	},
	{
		category: Safe,
		keywords: []keyword{w("safe"), w("safes"), s("gun safe"), w("vault")},
	},
	{
		category: Gym,
		keywords: []keyword{
			s("treadmill"), s("exercise"), w("gym"), s("elliptical"), s("rowing machine"),
			s("weight bench"), s("squat rack"), s("stationary bike"), s("spin bike"), s("peloton"),
		},
	},
	{
		category: TV,
		keywords: []keyword{w("tv"), w("tvs"), s("television"), w("flat screen"), s("flatscreen")},
		exclude:  []keyword{w("stand"), w("console"), w("cabinet"), w("unit"), w("tray")},
	},
	{
		category: Fragile,
		keywords: []keyword{
			w("art"), s("artwork"), s("picture"), s("painting"), s("mirror"), w("glass"),
			w("glassware"), s("glass top"),
		},
	},
	{
		category: Appliance,
		keywords: []keyword{
			s("refrigerator"), w("fridge"), s("freezer"), s("washer"), s("dryer"),
			s("washing machine"), w("stove"), w("oven"), w("range"),
		},
		exclude: []keyword{w("hair"), s("toaster")},
	},
	{
		category: Bed,
		keywords: []keyword{w("bed"), w("beds"), s("mattress"), s("bunk"), w("crib"), s("daybed"), w("futon")},
		exclude:  []keyword{w("dog"), w("pet"), w("cat")},
	},
}

// Classify returns the first category whose keywords match label.
func Classify(label string) Category {
	raw, words := normalize(label)
	for _, r := range rules {
		if matchAny(r.keywords, raw, words) && !matchAny(r.exclude, raw, words) {
			return r.category
		}
	}
	return None
}

// Of returns the category for a detection. A category already stamped on the
// detection wins over re-classifying its label.
func Of(d model.Detection) Category {
	if d.Category != "" {
		return Category(d.Category)
	}
	return Classify(d.Label)
}

var wallMountIndicators = []keyword{
	s("wall-mount"), s("wall mount"), s("wallmount"), w("mounted"), s("on the wall"), s("on wall"),
}

// IsWallMounted reports whether a detection's label, notes or room mention a
// wall mount.
func IsWallMounted(d model.Detection) bool {
	for _, text := range []string{d.Label, d.Notes, d.Room} {
		raw, words := normalize(text)
		if matchAny(wallMountIndicators, raw, words) {
			return true
		}
	}
	return false
}

var inchPattern = regexp.MustCompile(`(\d{2,3})\s*(?:"|”|''|-?\s*inch|-?\s*in\b)`)

// ScreenInches extracts a screen diagonal from the size, label or notes of a
// detection. Returns 0 when none is mentioned.
func ScreenInches(d model.Detection) int {
	for _, text := range []string{d.Size, d.Label, d.Notes} {
		m := inchPattern.FindStringSubmatch(strings.ToLower(text))
		if len(m) == 2 {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return n
			}
		}
	}
	return 0
}

// LargeTVInches is the diagonal above which a TV needs a dedicated box.
const LargeTVInches = 60

// IsLargeTV reports whether d is a TV larger than LargeTVInches.
func IsLargeTV(d model.Detection) bool {
	return Of(d) == TV && ScreenInches(d) > LargeTVInches
}

// IsGrandPiano reports whether a piano detection is a grand or baby grand.
func IsGrandPiano(d model.Detection) bool {
	raw, words := normalize(d.Label + " " + d.Size + " " + d.Notes)
	return matchAny([]keyword{w("grand"), s("baby grand")}, raw, words)
}

// normalize returns the lowercased text and a space-delimited word form with
// punctuation collapsed, padded so phrase lookups can use " word ".
func normalize(text string) (string, string) {
	raw := strings.ToLower(text)
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return raw, " " + strings.Join(fields, " ") + " "
}

func matchAny(kws []keyword, raw, words string) bool {
	for _, k := range kws {
		if k.word {
			if strings.Contains(words, " "+k.text+" ") {
				return true
			}
			continue
		}
		if strings.Contains(raw, k.text) {
			return true
		}
	}
	return false
}
