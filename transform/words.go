package transform

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var unitWords = map[string]int64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
	"nineteen": 19,
}

var tensWords = map[string]int64{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var scaleWords = map[string]int64{
	"hundred":  100,
	"thousand": 1_000,
	"million":  1_000_000,
	"billion":  1_000_000_000,
	"trillion": 1_000_000_000_000,
}

// textToNumber parses English number words ("one million two hundred") into
// an integer.
func textToNumber(text string) (int64, error) {
	var total, current int64
	seen := false
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;-")
		if w == "" || w == "and" {
			continue
		}
		if n, err := strconv.ParseInt(w, 10, 64); err == nil {
			current += n
			seen = true
			continue
		}
		if n, ok := unitWords[w]; ok {
			current += n
			seen = true
			continue
		}
		if n, ok := tensWords[w]; ok {
			current += n
			seen = true
			continue
		}
		if scale, ok := scaleWords[w]; ok {
			if current == 0 {
				current = 1
			}
			if scale == 100 {
				current *= 100
			} else {
				total += current * scale
				current = 0
			}
			seen = true
			continue
		}
		return 0, eris.Errorf("not a number word: %q", w)
	}
	if !seen {
		return 0, eris.New("no number words found")
	}
	return total + current, nil
}

// replaceTextNumbers rewrites each standalone number word in a sentence with
// its digits, leaving other words in place ("three years" -> "3 years").
func replaceTextNumbers(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		t := strings.Trim(strings.ToLower(w), ".,;")
		if n, ok := unitWords[t]; ok {
			words[i] = strconv.FormatInt(n, 10)
		} else if n, ok := tensWords[t]; ok {
			words[i] = strconv.FormatInt(n, 10)
		}
	}
	return strings.Join(words, " ")
}
