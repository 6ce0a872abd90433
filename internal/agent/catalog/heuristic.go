package catalog

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/feichai0017/catalog-ingestor/internal/models"
)

const (
	minNameLength = 4
	maxNameLength = 100
)

var (
	priceToken = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`)

	// page numbers, captions, headers and legal lines; product names such as
	// "Table Lamp" or "Pageant Mirror" must still pass
	boilerplate = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:page|table|fig(?:ure)?\.?)\s*\d+\b`),
		regexp.MustCompile(`(?i)^table of contents\b`),
		regexp.MustCompile(`(?i)^prices?\b`),
		regexp.MustCompile(`(?i)^(?:copyright|all rights reserved)\b`),
		regexp.MustCompile(`(?i)^(?:©|https?://|www\.)`),
	}
)

// findPrice returns the first currency amount in line and the line with that
// token removed.
func findPrice(line string) (rest string, price float64, ok bool) {
	loc := priceToken.FindStringSubmatchIndex(line)
	if loc == nil {
		return line, 0, false
	}
	amount := strings.ReplaceAll(line[loc[2]:loc[3]], ",", "")
	f, err := strconv.ParseFloat(amount, 64)
	if err != nil || f <= 0 {
		return line, 0, false
	}
	rest = strings.TrimSpace(line[:loc[0]] + " " + line[loc[1]:])
	return rest, roundPrice(f), true
}

// cleanName trims leader dots and separators left around an inline price.
func cleanName(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ".:-| "))
}

func isCandidateName(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < minNameLength || n > maxNameLength {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	if !unicode.IsUpper(first) {
		return false
	}
	for _, re := range boilerplate {
		if re.MatchString(s) {
			return false
		}
	}
	return true
}

// isPriceLine reports a line that carries a price and nothing that could
// name a product.
func isPriceLine(line string) bool {
	rest, _, ok := findPrice(line)
	return ok && !isCandidateName(cleanName(rest))
}

// extractHeuristic scans lines for name, description and price groups.
// A group consumes its description and price lines so they are not reread
// as names.
func (e *ProductExtractor) extractHeuristic(text, source string) []models.CandidateProduct {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	products := make([]models.CandidateProduct, 0)

	for i := 0; i < len(lines) && len(products) < e.options.MaxCandidates; i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || isPriceLine(line) {
			continue
		}

		name := line
		rest, price, hasPrice := findPrice(line)
		if hasPrice {
			name = cleanName(rest)
		}
		if !isCandidateName(name) {
			continue
		}

		var description string
		last := i
		for j := i + 1; j < len(lines) && j <= i+e.options.PriceLookahead; j++ {
			next := strings.TrimSpace(lines[j])
			if next == "" {
				continue
			}
			_, p, nextHasPrice := findPrice(next)
			if nextHasPrice && isPriceLine(next) {
				if !hasPrice {
					price, hasPrice = p, true
					last = j
				}
				break
			}
			if nextHasPrice || description != "" {
				// start of the next product
				break
			}
			description = next
			last = j
			if hasPrice {
				break
			}
		}
		i = last

		products = append(products, normalize(models.CandidateProduct{
			Name:           name,
			Description:    description,
			Price:          price,
			Category:       DefaultCategory,
			SourceDocument: source,
		}, e.placeholders))
	}

	return products
}
