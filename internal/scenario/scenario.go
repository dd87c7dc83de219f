// Package scenario applies the avoided-contact model to one subchannel:
// given a simulated transaction volume it derives the access volume, the
// active-user estimate and the volume of human contacts avoided through
// digital retention.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/crcalc/config"
	"github.com/vinodismyname/crcalc/internal/perfdata"
	"github.com/vinodismyname/crcalc/internal/ratios"
)

var (
	// ErrNoDataForScope reports that no "Real" row matches the requested
	// segment and subchannel.
	ErrNoDataForScope = errors.New("no data for filters")
	// ErrInvalidRequest reports a request missing a segment or subchannel
	// or carrying a negative volume.
	ErrInvalidRequest = errors.New("invalid scenario request")
)

// Request selects the subchannel to simulate.
type Request struct {
	Segment    string
	Subchannel string
	// Tribe overrides the tribe detected from the data when non-empty.
	Tribe string
	// Period restricts every ratio to one yyyymm period when non-zero.
	Period            int
	TransactionVolume int64
}

// Result is one simulated subchannel.
type Result struct {
	Segment           string `json:"segment"`
	Subchannel        string `json:"subchannel"`
	Tribe             string `json:"tribe"`
	TribeDetected     bool   `json:"tribe_detected"`
	Period            int    `json:"period,omitempty"`
	TransactionVolume int64  `json:"transaction_volume"`

	TransactionsPerAccess float64       `json:"transactions_per_access"`
	TxPerAccessOrigin     ratios.Origin `json:"transactions_per_access_origin"`
	UniqueUserRatio       float64       `json:"unique_user_ratio"`
	UniqueUserOrigin      ratios.Origin `json:"unique_user_ratio_origin"`
	RetentionPct          float64       `json:"retention_pct"`
	ConversionRatePct     float64       `json:"conversion_rate_pct"`

	AccessVolume         int64 `json:"access_volume"`
	ActiveUserEstimate   int64 `json:"active_user_estimate"`
	AvoidedContactVolume int64 `json:"avoided_contact_volume"`
}

// Calculator runs scenarios against one immutable table.
type Calculator struct {
	Table    *perfdata.Table
	Resolver *ratios.Resolver
}

// NewCalculator binds a table and a resolver.
func NewCalculator(t *perfdata.Table, r *ratios.Resolver) *Calculator {
	if r == nil {
		r = ratios.NewResolver(nil)
	}
	return &Calculator{Table: t, Resolver: r}
}

// Compute simulates req. It returns ErrNoDataForScope (wrapped with the
// filters) when the segment and subchannel select no rows.
func (c *Calculator) Compute(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	req.Segment = strings.TrimSpace(req.Segment)
	req.Subchannel = strings.TrimSpace(req.Subchannel)
	if req.Segment == "" || req.Subchannel == "" {
		return Result{}, fmt.Errorf("%w: segment and subchannel are required", ErrInvalidRequest)
	}
	if req.TransactionVolume < 0 {
		return Result{}, fmt.Errorf("%w: transaction_volume must be >= 0", ErrInvalidRequest)
	}

	scope := perfdata.Scope{Segment: req.Segment, Subchannel: req.Subchannel, Period: req.Period}
	if c.Table == nil || !c.Table.Has(scope) {
		return Result{}, fmt.Errorf("%w: %s", ErrNoDataForScope, scope)
	}

	res := Result{
		Segment:           req.Segment,
		Subchannel:        req.Subchannel,
		Tribe:             strings.TrimSpace(req.Tribe),
		Period:            req.Period,
		TransactionVolume: req.TransactionVolume,
	}
	if res.Tribe == "" {
		res.TribeDetected = true
		if tribe, ok := c.Table.FirstTribe(scope); ok {
			res.Tribe = tribe
		} else {
			res.Tribe = config.UndefinedTribe
		}
	}
	scope.Tribe = res.Tribe

	rt := c.Resolver.Resolve(c.Table, scope)
	cr := c.Resolver.ConversionRate(req.Segment)
	ret := c.Resolver.Retention(res.Tribe)

	volume := float64(req.TransactionVolume)
	access := volume / rt.TxPerAccess
	active := volume / rt.UUPerCPF

	res.TransactionsPerAccess = rt.TxPerAccess
	res.TxPerAccessOrigin = rt.TxPerAccessOrigin
	res.UniqueUserRatio = rt.UUPerCPF
	res.UniqueUserOrigin = rt.UUPerCPFOrigin
	res.RetentionPct = ret * 100
	res.ConversionRatePct = cr * 100
	res.AccessVolume = int64(access)
	res.ActiveUserEstimate = Truncate(active)
	res.AvoidedContactVolume = Truncate(access * cr * ret)

	zerolog.Ctx(ctx).Debug().
		Str("segment", res.Segment).
		Str("subchannel", res.Subchannel).
		Str("tribe", res.Tribe).
		Str("tx_origin", string(res.TxPerAccessOrigin)).
		Str("uu_origin", string(res.UniqueUserOrigin)).
		Int64("avoided", res.AvoidedContactVolume).
		Msg("scenario computed")
	return res, nil
}

// Truncate floors v toward zero after absorbing float noise with
// config.TruncationEpsilon, so 1234.9999999999 yields 1235 and 1234.6
// yields 1234. Negative and non-finite inputs yield 0.
func Truncate(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return int64(math.Floor(v + config.TruncationEpsilon))
}
