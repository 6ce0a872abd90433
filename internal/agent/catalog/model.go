package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/feichai0017/catalog-ingestor/internal/models"
)

const productPrompt = `You are a product catalog parser. Extract every product from the catalog text below.
Return ONLY a JSON array. Each element must be an object with these keys:
"name" (string), "description" (string), "price" (number, no currency symbol),
"sku" (string, empty if unknown), "category" (string, empty if unknown).
Do not add commentary before or after the array.

Catalog text:
%s`

// Generator completes a prompt with the inference model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

func buildPrompt(text string, maxChars int) string {
	return fmt.Sprintf(productPrompt, truncate(text, maxChars))
}

// extractWithModel returns ErrModelOutputUnusable for any response that does
// not yield at least one named product.
func (e *ProductExtractor) extractWithModel(ctx context.Context, text, source string) ([]models.CandidateProduct, error) {
	resp, err := e.generator.Generate(ctx, buildPrompt(text, e.options.PromptMaxChars))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelOutputUnusable, err)
	}

	items, err := firstJSONArray(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelOutputUnusable, err)
	}

	products := make([]models.CandidateProduct, 0, len(items))
	for _, raw := range items {
		var item map[string]interface{}
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}

		name := stringField(item, "name")
		if name == "" {
			continue
		}

		price, _ := parsePrice(item["price"])
		products = append(products, normalize(models.CandidateProduct{
			Name:           name,
			Description:    stringField(item, "description"),
			Price:          price,
			SKU:            stringField(item, "sku"),
			Category:       stringField(item, "category"),
			SourceDocument: source,
		}, e.placeholders))
	}

	if len(products) == 0 {
		return nil, fmt.Errorf("%w: no named products in response", models.ErrModelOutputUnusable)
	}
	return products, nil
}

// firstJSONArray decodes the first well-formed JSON array that starts at any
// '[' in s.
func firstJSONArray(s string) ([]json.RawMessage, error) {
	for i := 0; i < len(s); i++ {
		if s[i] != '[' {
			continue
		}
		var arr []json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[i:])).Decode(&arr); err == nil {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("no JSON array in response")
}
