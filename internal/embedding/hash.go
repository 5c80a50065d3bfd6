package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashModel is an in-process encoder that hashes identifier-level tokens and
// token bigrams into signed buckets. It needs no weights or network, gives
// identical vectors for identical text, and places texts that share
// identifiers close together.
type HashModel struct{}

// HashLoader returns a Loader for HashModel.
func HashLoader() Loader {
	return func(context.Context) (Model, error) {
		return HashModel{}, nil
	}
}

// Encode implements Model.
func (HashModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = hashVector(text)
	}
	return vectors, nil
}

func hashVector(text string) []float32 {
	v := make([]float32, Dimension)

	tokens := tokenize(text)
	for i, tok := range tokens {
		addFeature(v, tok, 1.0)
		if i > 0 {
			addFeature(v, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func addFeature(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := sum % uint64(len(v))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[bucket] += weight
}

// tokenize splits on anything that is not a letter or digit, then splits
// camelCase and snake_case identifiers, lowercasing the parts.
func tokenize(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var tokens []string
	for _, w := range words {
		tokens = append(tokens, splitCamel(w)...)
	}
	return tokens
}

func splitCamel(word string) []string {
	var parts []string
	start := 0
	runes := []rune(word)
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) && unicode.IsLower(runes[i-1]) {
			parts = append(parts, strings.ToLower(string(runes[start:i])))
			start = i
		}
	}
	return append(parts, strings.ToLower(string(runes[start:])))
}
