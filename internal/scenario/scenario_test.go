package scenario

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/crcalc/internal/params"
	"github.com/vinodismyname/crcalc/internal/perfdata"
	"github.com/vinodismyname/crcalc/internal/ratios"
)

func row(segment, sub, tribe, kpiName string, vol float64) perfdata.Row {
	return perfdata.Row{RecordType: "Real", Period: 202401, Segment: segment, Subchannel: sub, Tribe: tribe, KPIName: kpiName, Volume: vol}
}

func exampleCalculator(t *testing.T) *Calculator {
	t.Helper()
	p, err := params.New(params.File{
		RetentionByTribe:        map[string]float64{"App": 0.90},
		ConversionRateBySegment: map[string]float64{"Mobile": 0.50},
	})
	require.NoError(t, err)
	tbl := perfdata.NewTable([]perfdata.Row{
		row("Mobile", "App - Password Reset", "App", "6 - Acessos", 1000),
		row("Mobile", "App - Password Reset", "App", "7.1 - Transações", 1200),
		row("Mobile", "App - Password Reset", "App", "4.1 - Usuários Únicos", 100),
		row("Mobile", "Web - Sem Acessos", "", "7.1 - Transações", 50),
		row("Mobile", "Web - Ruído", "Web", "6 - Acessos", 900),
		row("Mobile", "Web - Ruído", "Web", "7.1 - Transações", 300),
	}, true)
	return NewCalculator(tbl, ratios.NewResolver(p))
}

func TestCompute_ConcreteExample(t *testing.T) {
	c := exampleCalculator(t)
	res, err := c.Compute(context.Background(), Request{
		Segment:           "Mobile",
		Subchannel:        "App - Password Reset",
		TransactionVolume: 10000,
	})
	require.NoError(t, err)
	require.Equal(t, "App", res.Tribe)
	require.True(t, res.TribeDetected)
	require.InDelta(t, 1.2, res.TransactionsPerAccess, 1e-12)
	require.InDelta(t, 12.0, res.UniqueUserRatio, 1e-12)
	require.Equal(t, ratios.OriginSegmentSubchannelTribe, res.UniqueUserOrigin)
	require.Equal(t, int64(8333), res.AccessVolume)
	require.Equal(t, int64(833), res.ActiveUserEstimate)
	require.Equal(t, int64(3750), res.AvoidedContactVolume)
	require.InDelta(t, 90.0, res.RetentionPct, 1e-9)
	require.InDelta(t, 50.0, res.ConversionRatePct, 1e-9)
}

func TestCompute_NoDataForScope(t *testing.T) {
	c := exampleCalculator(t)
	_, err := c.Compute(context.Background(), Request{Segment: "Mobile", Subchannel: "Inexistente", TransactionVolume: 10})
	require.ErrorIs(t, err, ErrNoDataForScope)

	_, err = c.Compute(context.Background(), Request{Segment: "Residencial", Subchannel: "App - Password Reset", TransactionVolume: 10})
	require.ErrorIs(t, err, ErrNoDataForScope)

	_, err = c.Compute(context.Background(), Request{Segment: "Mobile", Subchannel: "App - Password Reset", Period: 202312, TransactionVolume: 10})
	require.ErrorIs(t, err, ErrNoDataForScope)
}

func TestCompute_InvalidRequest(t *testing.T) {
	c := exampleCalculator(t)
	_, err := c.Compute(context.Background(), Request{Segment: "Mobile", TransactionVolume: 10})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = c.Compute(context.Background(), Request{Segment: "Mobile", Subchannel: "App - Password Reset", TransactionVolume: -1})
	require.ErrorIs(t, err, ErrInvalidRequest)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Compute(ctx, Request{Segment: "Mobile", Subchannel: "App - Password Reset", TransactionVolume: 1})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCompute_UndefinedTribeAndDefaults(t *testing.T) {
	c := exampleCalculator(t)
	res, err := c.Compute(context.Background(), Request{Segment: "Mobile", Subchannel: "Web - Sem Acessos", TransactionVolume: 1000})
	require.NoError(t, err)
	require.Equal(t, "Indefinido", res.Tribe)
	require.Equal(t, 1.0, res.TransactionsPerAccess)
	require.Equal(t, ratios.OriginDefault, res.TxPerAccessOrigin)

	web, _ := c.Resolver.Params.Retention("Web")
	require.InDelta(t, web*100, res.RetentionPct, 1e-9)
	// segment tier: 1550 transactions over 100 unique users
	require.Equal(t, ratios.OriginSegment, res.UniqueUserOrigin)
	require.InDelta(t, 15.5, res.UniqueUserRatio, 1e-12)
}

func TestCompute_TribeOverride(t *testing.T) {
	c := exampleCalculator(t)
	res, err := c.Compute(context.Background(), Request{Segment: "Mobile", Subchannel: "App - Password Reset", Tribe: "Dma", TransactionVolume: 1000})
	require.NoError(t, err)
	require.False(t, res.TribeDetected)
	bot, _ := c.Resolver.Params.Retention("Bot")
	require.InDelta(t, bot*100, res.RetentionPct, 1e-9)
}

func TestCompute_TxPerAccessFloor(t *testing.T) {
	c := exampleCalculator(t)
	for _, sub := range []string{"App - Password Reset", "Web - Sem Acessos", "Web - Ruído"} {
		res, err := c.Compute(context.Background(), Request{Segment: "Mobile", Subchannel: sub, TransactionVolume: 500})
		require.NoError(t, err)
		require.GreaterOrEqual(t, res.TransactionsPerAccess, 1.0, sub)
	}
}

func TestTruncate(t *testing.T) {
	require.Equal(t, int64(1234), Truncate(1234.6))
	require.Equal(t, int64(1234), Truncate(1234.0))
	require.Equal(t, int64(1235), Truncate(1234.9999999999))
	require.Equal(t, int64(3750), Truncate(10000/1.2*0.5*0.9))
	require.Equal(t, int64(0), Truncate(-3))
	require.Equal(t, int64(0), Truncate(math.NaN()))
	require.Equal(t, int64(0), Truncate(0.4))
}

func TestTruncate_NeverRoundsUp(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		v := rng.Float64() * 1e6
		frac := v - math.Floor(v)
		if frac < 1e-6 || frac > 1-1e-6 {
			continue
		}
		require.Equal(t, int64(math.Floor(v)), Truncate(v), "v=%v", v)
	}
}
