// Package kpi locates KPI rows by concept and sums their volume.
//
// KPI labels in the performance table are free text ("7.1 - Transações",
// "7.1-Transacoes", "6 - Acessos App"...). SumVolume applies a tiered match:
// an exact match on the normalized canonical label first, then a token
// match, and the first tier with a non-zero sum wins.
package kpi

import (
	"strings"

	"github.com/vinodismyname/crcalc/internal/perfdata"
	"github.com/vinodismyname/crcalc/internal/textnorm"
)

// Concept is a KPI family the calculator reads.
type Concept int

const (
	Unknown Concept = iota
	Transactions
	Accesses
	UniqueUsers
)

// Concepts lists the concepts in display order.
var Concepts = []Concept{Transactions, Accesses, UniqueUsers}

func (c Concept) String() string {
	switch c {
	case Transactions:
		return "transactions"
	case Accesses:
		return "accesses"
	case UniqueUsers:
		return "unique_users"
	default:
		return "unknown"
	}
}

// Label returns the canonical KPI label of c.
func (c Concept) Label() string {
	switch c {
	case Transactions:
		return "7.1 - Transações"
	case Accesses:
		return "6 - Acessos"
	case UniqueUsers:
		return "4.1 - Usuários Únicos"
	default:
		return ""
	}
}

// Tier reports how a KPI name matched a concept.
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierToken
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierToken:
		return "token"
	default:
		return "none"
	}
}

var canonical = map[Concept]string{
	Transactions: textnorm.Normalize(Transactions.Label()),
	Accesses:     textnorm.Normalize(Accesses.Label()),
	UniqueUsers:  textnorm.Normalize(UniqueUsers.Label()),
}

// matchExact reports whether key, a normalized KPI name, is the canonical
// label of c.
func matchExact(key string, c Concept) bool {
	want, ok := canonical[c]
	return ok && key != "" && key == want
}

// matchToken reports whether key, a normalized KPI name, carries the
// identifying tokens of c.
func matchToken(key string, c Concept) bool {
	if key == "" {
		return false
	}
	switch c {
	case Transactions:
		return strings.Contains(key, "7.1") || strings.Contains(key, "transa")
	case UniqueUsers:
		return strings.Contains(key, "4.1") ||
			(strings.Contains(key, "usu") && strings.Contains(key, "cpf"))
	case Accesses:
		return textnorm.HasToken(key, "6") && strings.Contains(key, "acess")
	default:
		return false
	}
}

// SumVolume sums the volume of rows whose KPI name matches concept. rows
// are expected to be already filtered to a scope. It never fails: an
// unmatched concept sums to 0 and the caller decides how to fall back.
func SumVolume(rows []perfdata.Row, concept Concept) float64 {
	v, _ := SumVolumeTier(rows, concept)
	return v
}

// SumVolumeTier is SumVolume that also reports the tier that produced the
// sum. TierNone is returned with a zero sum.
func SumVolumeTier(rows []perfdata.Row, concept Concept) (float64, Tier) {
	if v := sumWhere(rows, concept, matchExact); v > 0 {
		return v, TierExact
	}
	if v := sumWhere(rows, concept, matchToken); v > 0 {
		return v, TierToken
	}
	return 0, TierNone
}

func sumWhere(rows []perfdata.Row, c Concept, match func(string, Concept) bool) float64 {
	var total float64
	for i := range rows {
		key := rows[i].Keys.KPI
		if key == "" {
			key = textnorm.Normalize(rows[i].KPIName)
		}
		if match(key, c) {
			total += rows[i].Volume
		}
	}
	return total
}

// Classify reports which concept a KPI name belongs to and at which tier.
// Exact matches win over token matches; among token matches the first of
// Transactions, UniqueUsers, Accesses wins.
func Classify(name string) (Concept, Tier) {
	key := textnorm.Normalize(name)
	for _, c := range Concepts {
		if matchExact(key, c) {
			return c, TierExact
		}
	}
	for _, c := range []Concept{Transactions, UniqueUsers, Accesses} {
		if matchToken(key, c) {
			return c, TierToken
		}
	}
	return Unknown, TierNone
}
