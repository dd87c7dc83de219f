package ratios

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/crcalc/internal/params"
	"github.com/vinodismyname/crcalc/internal/perfdata"
)

func row(segment, sub, tribe, kpiName string, vol float64) perfdata.Row {
	return perfdata.Row{RecordType: "Real", Period: 202401, Segment: segment, Subchannel: sub, Tribe: tribe, KPIName: kpiName, Volume: vol}
}

func table(rows ...perfdata.Row) *perfdata.Table { return perfdata.NewTable(rows, true) }

func TestTxPerAccess(t *testing.T) {
	tbl := table(
		row("Móvel", "App - Fatura", "App", "6 - Acessos", 1000),
		row("Móvel", "App - Fatura", "App", "7.1 - Transações", 1200),
		row("Móvel", "Web - Plano", "Web", "6 - Acessos", 500),
		row("Móvel", "Web - Plano", "Web", "7.1 - Transações", 100),
		row("Móvel", "Bot - Suporte", "Bot", "7.1 - Transações", 100),
	)
	r := NewResolver(nil)

	got := r.Resolve(tbl, perfdata.Scope{Segment: "Móvel", Subchannel: "App - Fatura", Tribe: "App"})
	require.InDelta(t, 1.2, got.TxPerAccess, 1e-12)
	require.Equal(t, OriginSubchannel, got.TxPerAccessOrigin)

	// below one is an artifact and is floored
	got = r.Resolve(tbl, perfdata.Scope{Segment: "Móvel", Subchannel: "Web - Plano"})
	require.Equal(t, 1.0, got.TxPerAccess)
	require.Equal(t, OriginSubchannel, got.TxPerAccessOrigin)

	// no accesses
	got = r.Resolve(tbl, perfdata.Scope{Segment: "Móvel", Subchannel: "Bot - Suporte"})
	require.Equal(t, 1.0, got.TxPerAccess)
	require.Equal(t, OriginDefault, got.TxPerAccessOrigin)
}

func TestUUPerCPF_FallbackChain(t *testing.T) {
	base := []perfdata.Row{
		// exact tier: App - Fatura owned by App
		row("Móvel", "App - Fatura", "App", "7.1 - Transações", 1200),
		row("Móvel", "App - Fatura", "App", "4.1 - Usuários Únicos", 100),
		// subchannel tier: users recorded under another tribe
		row("Móvel", "Web - Plano", "Web", "7.1 - Transações", 300),
		row("Móvel", "Web - Plano", "Dma", "4.1 - Usuários Únicos", 30),
		// tribe tier only: Bot - Suporte has transactions only
		row("Móvel", "Bot - Suporte", "Bot", "7.1 - Transações", 80),
		row("Móvel", "Bot - Outro", "Bot", "7.1 - Transações", 20),
		row("Móvel", "Bot - Outro", "Bot", "4.1 - Usuários Únicos", 5),
	}
	r := NewResolver(nil)

	t.Run("exact", func(t *testing.T) {
		got := r.Resolve(table(base...), perfdata.Scope{Segment: "Móvel", Subchannel: "App - Fatura", Tribe: "App"})
		require.InDelta(t, 12.0, got.UUPerCPF, 1e-12)
		require.Equal(t, OriginSegmentSubchannelTribe, got.UUPerCPFOrigin)
	})

	t.Run("subchannel", func(t *testing.T) {
		tbl := table(base...)
		scope := perfdata.Scope{Segment: "Móvel", Subchannel: "Web - Plano", Tribe: "Web"}
		got := r.Resolve(tbl, scope)
		want, ok := UUPerCPF(tbl.Select(scope.WithoutTribe()))
		require.True(t, ok)
		require.InDelta(t, want, got.UUPerCPF, 1e-12)
		require.InDelta(t, 10.0, got.UUPerCPF, 1e-12)
		require.Equal(t, OriginSegmentSubchannel, got.UUPerCPFOrigin)
	})

	t.Run("tribe", func(t *testing.T) {
		tbl := table(base...)
		scope := perfdata.Scope{Segment: "Móvel", Subchannel: "Bot - Suporte", Tribe: "Bot"}
		got := r.Resolve(tbl, scope)
		want, ok := UUPerCPF(tbl.Select(scope.WithoutSubchannel()))
		require.True(t, ok)
		require.InDelta(t, want, got.UUPerCPF, 1e-12)
		require.InDelta(t, 20.0, got.UUPerCPF, 1e-12)
		require.Equal(t, OriginSegmentTribe, got.UUPerCPFOrigin)
	})

	t.Run("segment", func(t *testing.T) {
		tbl := table(base...)
		scope := perfdata.Scope{Segment: "Móvel", Subchannel: "Bot - Suporte", Tribe: "Web"}
		got := r.Resolve(tbl, scope)
		// Web tribe has 300 tx / 0 users; segment: 1600 tx / 135 users
		require.InDelta(t, 1600.0/135.0, got.UUPerCPF, 1e-12)
		require.Equal(t, OriginSegment, got.UUPerCPFOrigin)
	})

	t.Run("default", func(t *testing.T) {
		tbl := table(
			row("Residencial", "App - Fatura", "App", "7.1 - Transações", 100),
			row("Móvel", "App - Fatura", "App", "4.1 - Usuários Únicos", 10),
		)
		got := r.Resolve(tbl, perfdata.Scope{Segment: "Residencial", Subchannel: "App - Fatura", Tribe: "App"})
		require.Equal(t, 12.28, got.UUPerCPF)
		require.Equal(t, OriginDefault, got.UUPerCPFOrigin)
	})
}

func TestUUTiers(t *testing.T) {
	scope := perfdata.Scope{Segment: "Móvel", Subchannel: "App", Tribe: "App", Period: 202401}
	tiers := UUTiers(scope)
	require.Len(t, tiers, 4)
	require.Equal(t, OriginSegmentSubchannelTribe, tiers[0].Origin)
	require.Equal(t, perfdata.Scope{Segment: "Móvel", Subchannel: "App", Period: 202401}, tiers[1].Scope)
	require.Equal(t, perfdata.Scope{Segment: "Móvel", Tribe: "App", Period: 202401}, tiers[2].Scope)
	require.Equal(t, perfdata.Scope{Segment: "Móvel", Period: 202401}, tiers[3].Scope)

	require.Len(t, UUTiers(perfdata.Scope{Segment: "Móvel", Subchannel: "App"}), 2)
}

func TestRetention(t *testing.T) {
	p, err := params.New(params.File{
		RetentionByTribe: map[string]float64{"App": 0.90, "Dma": 0.10},
	})
	require.NoError(t, err)
	r := NewResolver(p)

	bot, _ := p.Retention("Bot")
	web, _ := p.Retention("Web")

	require.Equal(t, bot, r.Retention("Dma"))
	require.Equal(t, bot, r.Retention(" DMA "))
	require.Equal(t, 0.90, r.Retention("app"))
	require.Equal(t, web, r.Retention("Loja"))
	require.Equal(t, web, r.Retention("Indefinido"))
	require.Equal(t, web, r.Retention(""))
}

func TestConversionRate(t *testing.T) {
	r := NewResolver(nil)
	require.Equal(t, 0.4947, r.ConversionRate("Móvel"))
	require.Equal(t, 0.50, r.ConversionRate("Empresarial"))
}
