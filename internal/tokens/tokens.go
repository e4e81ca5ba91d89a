// Package tokens provides the approximate token estimator that drives all
// budget arithmetic in the assembler.
//
// tokens(text) = ceil(len(utf8 bytes) * scale / (100 * BytesPerToken))
//
// The estimate is a pure function of the text; the model only selects the
// integer scale percentage. Integer math keeps results identical across
// platforms.
package tokens

import "strings"

// BytesPerToken is the baseline ratio (~4 bytes per token).
const BytesPerToken = 4

// LineBytes is the assumed width of a source line the estimator has not
// seen, used to price line gaps between spans.
const LineBytes = 40

// DefaultScale is the scale percentage used for unknown or empty models.
const DefaultScale = 100

// modelScales maps a model-name prefix to its scale percentage. Longest
// matching prefix wins.
var modelScales = map[string]int{
	"gpt-3.5": 100,
	"gpt-4":   100,
	"gpt-4o":  95,
	"o1":      95,
	"o3":      95,
	"claude":  110,
	"gemini":  90,
	"llama":   115,
	"mistral": 115,
}

// Estimator estimates tokens for a fixed model.
type Estimator struct {
	model string
	scale int
}

// ForModel returns the estimator for model (case-insensitive).
func ForModel(model string) Estimator {
	return Estimator{model: model, scale: ScaleFor(model)}
}

// ScaleFor resolves the scale percentage for model.
func ScaleFor(model string) int {
	m := strings.ToLower(strings.TrimSpace(model))
	best, bestLen := DefaultScale, 0
	for prefix, scale := range modelScales {
		if strings.HasPrefix(m, prefix) && len(prefix) > bestLen {
			best, bestLen = scale, len(prefix)
		}
	}
	return best
}

func (e Estimator) Model() string { return e.model }

func (e Estimator) Scale() int {
	if e.scale <= 0 {
		return DefaultScale
	}
	return e.scale
}

// Count estimates tokens for text. Empty text costs zero.
func (e Estimator) Count(text string) int {
	return e.bytes(len(text))
}

// Lines estimates tokens for n unseen source lines of LineBytes each.
func (e Estimator) Lines(n int) int {
	if n <= 0 {
		return 0
	}
	return e.bytes(n * LineBytes)
}

func (e Estimator) bytes(n int) int {
	if n <= 0 {
		return 0
	}
	den := 100 * BytesPerToken
	return (n*e.Scale() + den - 1) / den
}

// MaxBytes returns the largest byte length whose estimate stays within
// budget tokens.
func (e Estimator) MaxBytes(budget int) int {
	if budget <= 0 {
		return 0
	}
	return budget * 100 * BytesPerToken / e.Scale()
}
