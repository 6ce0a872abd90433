package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/feichai0017/catalog-ingestor/internal/models"
)

const (
	MaxNameLength        = 200
	MaxDescriptionLength = 1000
)

// truncate caps s at n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func roundPrice(v float64) float64 {
	return math.Round(v*100) / 100
}

// parsePrice accepts a JSON number or a numeric string with currency symbols
// and thousands separators. Zero, negative and non-finite values are treated
// as missing.
func parsePrice(v interface{}) (float64, bool) {
	var f float64
	switch p := v.(type) {
	case float64:
		f = p
	case json.Number:
		parsed, err := p.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, ok := parsePriceString(p)
		if !ok {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return roundPrice(f), true
}

var (
	plainAmount   = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	groupedAmount = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
)

// parsePriceString drops currency symbols and words, then accepts a plain
// amount or one grouped with comma thousands separators. Signed values and
// other separator conventions such as "1.299,00" are unusable.
func parsePriceString(s string) (float64, bool) {
	if strings.ContainsAny(s, "-−") {
		return 0, false
	}

	var sb strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			sb.WriteRune(r)
		}
	}
	amount := sb.String()

	switch {
	case plainAmount.MatchString(amount):
	case groupedAmount.MatchString(amount):
		amount = strings.ReplaceAll(amount, ",", "")
	default:
		return 0, false
	}

	f, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func stringField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// normalize applies length caps and fills missing SKU, price and category.
func normalize(p models.CandidateProduct, placeholders PlaceholderGenerator) models.CandidateProduct {
	p.Name = truncate(strings.TrimSpace(p.Name), MaxNameLength)
	p.Description = truncate(strings.TrimSpace(p.Description), MaxDescriptionLength)
	if p.Price <= 0 {
		p.Price = roundPrice(placeholders.Price())
	}
	if strings.TrimSpace(p.SKU) == "" {
		p.SKU = placeholders.SKU()
	}
	if strings.TrimSpace(p.Category) == "" {
		p.Category = DefaultCategory
	}
	return p
}
