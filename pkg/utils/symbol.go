// Package utils provides common utility functions for scripdesk.
package utils

import "strings"

// Common aliases users type instead of the listed NSE symbol.
var symbolAliases = map[string]string{
	"RIL":          "RELIANCE",
	"INFOSYS":      "INFY",
	"HDFC BANK":    "HDFCBANK",
	"ICICI BANK":   "ICICIBANK",
	"SBI":          "SBIN",
	"AIRTEL":       "BHARTIARTL",
	"L&T":          "LT",
	"TATA MOTORS":  "TATAMOTORS",
	"TATA STEEL":   "TATASTEEL",
	"HCL TECH":     "HCLTECH",
	"KOTAK":        "KOTAKBANK",
	"AXIS BANK":    "AXISBANK",
	"SUN PHARMA":   "SUNPHARMA",
	"ASIAN PAINTS": "ASIANPAINT",
	"NESTLE":       "NESTLEIND",
	"ULTRATECH":    "ULTRACEMCO",
	"HUL":          "HINDUNILVR",
	"COAL INDIA":   "COALINDIA",
}

// NormalizeSymbol normalizes user input to the canonical NSE symbol:
// uppercased, trimmed, aliases resolved, exchange suffixes stripped.
func NormalizeSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	symbol = strings.TrimPrefix(symbol, "$")
	if canonical, ok := symbolAliases[symbol]; ok {
		return canonical
	}
	return BaseSymbol(symbol)
}

// BaseSymbol strips a Yahoo-style exchange suffix (.NS, .BO) if present.
func BaseSymbol(symbol string) string {
	symbol = strings.TrimSuffix(symbol, ".NS")
	return strings.TrimSuffix(symbol, ".BO")
}

// ToYahooSymbol converts an NSE symbol to Yahoo Finance format.
// Symbols that already carry an exchange suffix pass through unchanged.
func ToYahooSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	if strings.HasSuffix(symbol, ".NS") || strings.HasSuffix(symbol, ".BO") {
		return symbol
	}
	return symbol + ".NS"
}
