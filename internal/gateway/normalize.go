package gateway

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/quantpulse/makerbot/internal/domain"
)

// Field alias precedence for raw connector payloads. Aliases are tried in
// order; the first present, parseable field wins. Exchanges report the same
// concept under different names (and sometimes as strings), so the gateway
// resolves the differences here rather than in every connector.
var (
	totalAliases     = []string{"totalWalletBalance", "totalMarginBalance", "totalEquity", "equity", "total"}
	availableAliases = []string{"availableBalance", "available", "free", "cash", "withdrawAvailable"}

	posSymbolAliases = []string{"symbol", "instId", "market"}
	posSizeAliases   = []string{"positionAmt", "size", "qty", "contracts"}
	posSideAliases   = []string{"positionSide", "side", "holdSide"}
	posEntryAliases  = []string{"entryPrice", "avgEntryPrice", "avgPrice", "entryPx"}
	posLevAliases    = []string{"leverage", "lever"}
)

// NormalizeBalance maps a raw account payload onto the canonical USDT
// balance shape. Missing fields normalize to zero.
func NormalizeBalance(raw map[string]any) domain.Balance {
	var bal domain.Balance
	if v, ok := firstNumber(raw, totalAliases); ok {
		bal.TotalUSDT = v
	}
	if v, ok := firstNumber(raw, availableAliases); ok {
		bal.AvailableUSDT = v
	}
	return bal
}

// NormalizePosition maps a raw position payload onto the canonical position
// shape. Sign differences are resolved here: a negative size means short,
// and an explicit side field takes precedence over the sign. ok is false for
// rows without a symbol or with zero size (flat placeholder rows).
func NormalizePosition(raw map[string]any) (domain.Position, bool) {
	var pos domain.Position

	sym, ok := firstString(raw, posSymbolAliases)
	if !ok || sym == "" {
		return domain.Position{}, false
	}
	pos.Symbol = sym

	size, ok := firstNumber(raw, posSizeAliases)
	if !ok || size == 0 {
		return domain.Position{}, false
	}

	pos.Side = domain.OrderSideBuy
	if size < 0 {
		pos.Side = domain.OrderSideSell
	}
	if side, ok := firstString(raw, posSideAliases); ok {
		switch strings.ToUpper(side) {
		case "LONG", "BUY":
			pos.Side = domain.OrderSideBuy
		case "SHORT", "SELL":
			pos.Side = domain.OrderSideSell
		}
	}
	pos.Size = math.Abs(size)

	if v, ok := firstNumber(raw, posEntryAliases); ok {
		pos.EntryPrice = v
	}
	if v, ok := firstNumber(raw, posLevAliases); ok {
		pos.Leverage = int(v)
	}
	return pos, true
}

func firstNumber(raw map[string]any, aliases []string) (float64, bool) {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

func firstString(raw map[string]any, aliases []string) (string, bool) {
	for _, key := range aliases {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// toFloat accepts the numeric encodings seen across exchange payloads:
// JSON numbers, quoted decimal strings, and integers.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
