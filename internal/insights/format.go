package insights

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatInt renders n with pt-BR digit grouping ("1.234.567").
func FormatInt(n int64) string {
	return message.NewPrinter(language.BrazilianPortuguese).Sprintf("%d", n)
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
