// Package ratios derives the per-subchannel ratios of the scenario model
// from the performance table: transactions per access, transactions per
// unique user (CPF) and retention by tribe.
package ratios

import (
	"github.com/vinodismyname/crcalc/config"
	"github.com/vinodismyname/crcalc/internal/kpi"
	"github.com/vinodismyname/crcalc/internal/params"
	"github.com/vinodismyname/crcalc/internal/perfdata"
	"github.com/vinodismyname/crcalc/internal/textnorm"
)

// Origin names the scope tier that produced a ratio.
type Origin string

const (
	OriginSegmentSubchannelTribe Origin = "segment+subchannel+tribe"
	OriginSegmentSubchannel      Origin = "segment+subchannel"
	OriginSegmentTribe           Origin = "segment+tribe"
	OriginSegment                Origin = "segment"
	OriginSubchannel             Origin = "subchannel"
	OriginDefault                Origin = "default"
)

// Ratios are the derived ratios of one scope.
type Ratios struct {
	TxPerAccess       float64 `json:"tx_per_access"`
	TxPerAccessOrigin Origin  `json:"tx_per_access_origin"`
	UUPerCPF          float64 `json:"uu_per_cpf"`
	UUPerCPFOrigin    Origin  `json:"uu_per_cpf_origin"`
}

// Resolver computes Ratios against a fixed parameter set.
type Resolver struct {
	Params *params.Params
}

// NewResolver returns a Resolver bound to p. A nil p uses params.Default().
func NewResolver(p *params.Params) *Resolver {
	if p == nil {
		p = params.Default()
	}
	return &Resolver{Params: p}
}

// Resolve derives the ratios of scope. scope.Segment and scope.Subchannel
// select the subchannel; scope.Tribe and scope.Period refine the unique
// user tiers and (for Period) every tier.
func (r *Resolver) Resolve(t *perfdata.Table, scope perfdata.Scope) Ratios {
	var out Ratios
	out.TxPerAccess, out.TxPerAccessOrigin = TxPerAccess(t.Select(scope.WithoutTribe()))
	out.UUPerCPF, out.UUPerCPFOrigin = r.uuPerCPF(t, scope)
	return out
}

// TxPerAccess is transactions over accesses of rows, floored at
// config.MinTransactionsPerAccess. With no accesses it is exactly the
// floor and the origin is OriginDefault.
func TxPerAccess(rows []perfdata.Row) (float64, Origin) {
	va := kpi.SumVolume(rows, kpi.Accesses)
	if va <= 0 {
		return config.MinTransactionsPerAccess, OriginDefault
	}
	vt := kpi.SumVolume(rows, kpi.Transactions)
	tx := vt / va
	if tx < config.MinTransactionsPerAccess {
		tx = config.MinTransactionsPerAccess
	}
	return tx, OriginSubchannel
}

// UUPerCPF is transactions over unique users of rows. ok is false when
// either sum is zero.
func UUPerCPF(rows []perfdata.Row) (ratio float64, ok bool) {
	vt := kpi.SumVolume(rows, kpi.Transactions)
	vu := kpi.SumVolume(rows, kpi.UniqueUsers)
	if vt <= 0 || vu <= 0 {
		return 0, false
	}
	return vt / vu, true
}

// Tier is one step of the unique-user fallback chain.
type Tier struct {
	Origin Origin
	Scope  perfdata.Scope
}

// UUTiers returns the unique-user fallback chain for scope, narrowest
// first. Tiers that would repeat a broader one (no tribe given) are
// skipped.
func UUTiers(scope perfdata.Scope) []Tier {
	tiers := make([]Tier, 0, 4)
	hasTribe := textnorm.Normalize(scope.Tribe) != ""
	if hasTribe {
		tiers = append(tiers, Tier{OriginSegmentSubchannelTribe, scope})
	}
	tiers = append(tiers, Tier{OriginSegmentSubchannel, scope.WithoutTribe()})
	if hasTribe {
		tiers = append(tiers, Tier{OriginSegmentTribe, scope.WithoutSubchannel()})
	}
	tiers = append(tiers, Tier{OriginSegment, scope.WithoutSubchannel().WithoutTribe()})
	return tiers
}

func (r *Resolver) uuPerCPF(t *perfdata.Table, scope perfdata.Scope) (float64, Origin) {
	for _, tier := range UUTiers(scope) {
		if v, ok := UUPerCPF(t.Select(tier.Scope)); ok {
			return v, tier.Origin
		}
	}
	return r.Params.DefaultUniqueUserRatio(), OriginDefault
}

// Retention returns the retention fraction of tribe. "Dma" has no
// measured retention and uses Bot's; tribes without a measured retention
// use Web's.
func (r *Resolver) Retention(tribe string) float64 {
	if textnorm.Normalize(tribe) == "dma" {
		v, _ := r.Params.Retention(params.TribeBot)
		return v
	}
	if v, ok := r.Params.Retention(tribe); ok {
		return v
	}
	v, _ := r.Params.Retention(params.TribeWeb)
	return v
}

// ConversionRate returns the conversion rate of segment.
func (r *Resolver) ConversionRate(segment string) float64 {
	return r.Params.ConversionRate(segment)
}
