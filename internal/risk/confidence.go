package risk

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	baseFloor    = decimal.RequireFromString("0.35")
	perChunk     = decimal.RequireFromString("0.1")
	baseCap      = decimal.RequireFromString("0.9")
	probePenalty = decimal.RequireFromString("0.05")
	half         = decimal.RequireFromString("0.5")
)

// maxCountedChunks caps how many chunks raise the base confidence.
const maxCountedChunks = 5

// Confidence blends the retrieval heuristic with the judge score:
// base = min(0.35 + 0.1*min(chunks, 5), 0.9), less 0.05 on a restricted
// probe, then 0.5*base + 0.5*judge clamped to [0, 1] and rounded half
// away from zero to two places.
func Confidence(chunks int, probe bool, judge float64) float64 {
	n := max(0, min(chunks, maxCountedChunks))
	base := decimal.Min(baseFloor.Add(perChunk.Mul(decimal.NewFromInt(int64(n)))), baseCap)
	if probe {
		base = base.Sub(probePenalty)
	}
	j := clampUnit(decimal.NewFromFloat(judge))
	blended := clampUnit(half.Mul(base).Add(half.Mul(j)))
	return blended.Round(2).InexactFloat64()
}

func clampUnit(d decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, decimal.Min(d, decimal.NewFromInt(1)))
}

func joinReasons(reasons []string) string {
	return strings.Join(reasons, ",")
}
