package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/crcalc/internal/datasets"
	"github.com/vinodismyname/crcalc/internal/insights"
	"github.com/vinodismyname/crcalc/internal/params"
	"github.com/vinodismyname/crcalc/internal/perfdata"
	"github.com/vinodismyname/crcalc/internal/runtime"
	"github.com/vinodismyname/crcalc/internal/scenario"
	"github.com/vinodismyname/crcalc/internal/security"
	"github.com/vinodismyname/crcalc/pkg/mcperr"
)

const sampleCSV = "ANOMES;TP_META;SEGMENTO;NM_SUBCANAL;NM_TORRE;NM_KPI;VOL_KPI\n" +
	"202401;Real;Móvel;App - Fatura;App;6 - Acessos;1000\n" +
	"202401;Real;Móvel;App - Fatura;App;7.1 - Transações;1200\n" +
	"202401;Real;Móvel;App - Fatura;App;4.1 - Usuários Únicos;100\n" +
	"202401;Real;Móvel;Web - Senha;Web;6 - Acessos;500\n"

func newDeps(t *testing.T, maxDatasets int) (Deps, string) {
	t.Helper()
	dir := t.TempDir()
	sec, err := security.NewManager([]string{dir}, nil)
	require.NoError(t, err)
	limits := runtime.NewLimits(2, maxDatasets)
	limits.AcquireRequestTimeout = 20 * time.Millisecond
	ctrl := runtime.NewController(limits)
	mgr := datasets.NewManager(time.Minute, time.Minute, ctrl, time.Now, datasets.WithValidator(sec))
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	return Deps{Limits: limits, Datasets: mgr, Params: params.Default(), Security: sec}, dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestRegisterTools(t *testing.T) {
	deps, _ := newDeps(t, 2)
	s := server.NewMCPServer("test", "dev", server.WithToolCapabilities(true))
	reg := New()
	RegisterDatasetTools(s, reg, deps)
	RegisterCalculatorTools(s, reg, deps)

	require.Equal(t, []string{
		"close_dataset",
		"compute_scenario",
		"describe_dataset",
		"get_parameters",
		"list_datasets",
		"open_dataset",
		"rank_segment",
		"write_ranking_workbook",
	}, reg.Names())

	tool, ok := reg.Get("rank_segment")
	require.True(t, ok)
	require.Contains(t, tool.Description, "Pareto")
}

func TestWriteToolFilter(t *testing.T) {
	tools := []mcp.Tool{{Name: "rank_segment"}, {Name: "write_ranking_workbook"}}
	require.Len(t, NewWriteToolFilter(false).FilterTools(context.Background(), tools), 1)
	require.Len(t, NewWriteToolFilter(true).FilterTools(context.Background(), tools), 2)

	t.Setenv(EnvEnableWrites, "true")
	require.True(t, NewWriteToolFilterFromEnv().AllowWrites())
	t.Setenv(EnvEnableWrites, "")
	require.False(t, NewWriteToolFilterFromEnv().AllowWrites())
}

func TestOpenDatasetAndCompute(t *testing.T) {
	deps, dir := newDeps(t, 2)
	path := writeFile(t, dir, "performance.csv", sampleCSV)

	out, err := OpenDataset(context.Background(), deps, OpenDatasetInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, 4, out.Rows)
	require.Equal(t, []string{"Móvel"}, out.Segments)
	require.Equal(t, 2, out.Limits.MaxOpenDatasets)

	again, err := OpenDataset(context.Background(), deps, OpenDatasetInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, out.DatasetID, again.DatasetID)

	listed := ListDatasets(deps)
	require.Len(t, listed.Datasets, 1)
	require.Equal(t, out.DatasetID, listed.Datasets[0].ID)
	require.Equal(t, out.Path, listed.Datasets[0].Path)
	require.Equal(t, 4, listed.Datasets[0].Rows)
	require.Equal(t, 2, listed.Limits.MaxOpenDatasets)

	res, err := ComputeScenario(context.Background(), deps, ComputeScenarioInput{
		DatasetID:         out.DatasetID,
		Segment:           "movel",
		Subchannel:        "APP - FATURA",
		TransactionVolume: 10000,
	})
	require.NoError(t, err)
	require.Equal(t, "App", res.Tribe)
	require.Equal(t, int64(8333), res.AccessVolume)
	require.Equal(t, int64(833), res.ActiveUserEstimate)

	_, err = ComputeScenario(context.Background(), deps, ComputeScenarioInput{
		DatasetID: out.DatasetID, Segment: "Móvel", Subchannel: "Inexistente", TransactionVolume: 1,
	})
	require.ErrorIs(t, err, scenario.ErrNoDataForScope)
	require.Equal(t, mcperr.NoDataForScope, codeFor(err, mcperr.CalculationFailed))
}

func TestOpenDatasetBusy(t *testing.T) {
	deps, dir := newDeps(t, 1)
	first := writeFile(t, dir, "a.csv", sampleCSV)
	second := writeFile(t, dir, "b.csv", sampleCSV)

	_, err := OpenDataset(context.Background(), deps, OpenDatasetInput{Path: first})
	require.NoError(t, err)
	_, err = OpenDataset(context.Background(), deps, OpenDatasetInput{Path: second})
	require.ErrorIs(t, err, errBusy)
}

func TestOpenDatasetErrors(t *testing.T) {
	deps, dir := newDeps(t, 2)
	missing := writeFile(t, dir, "sem_torre.csv", "SEGMENTO;NM_SUBCANAL;NM_KPI;VOL_KPI\nMóvel;App;6 - Acessos;1\n")

	_, err := OpenDataset(context.Background(), deps, OpenDatasetInput{Path: missing})
	require.ErrorIs(t, err, perfdata.ErrMissingColumn)
	require.Equal(t, mcperr.MissingColumn, codeFor(err, mcperr.OpenFailed))

	_, err = OpenDataset(context.Background(), deps, OpenDatasetInput{Path: filepath.Join(os.TempDir(), "fora.csv")})
	require.Error(t, err)
	code := codeFor(err, mcperr.OpenFailed)
	require.True(t, code == mcperr.PermissionDenied || code == mcperr.NotFound, "got %s", code)
}

func TestToolErrorText(t *testing.T) {
	cases := map[error]mcperr.Code{
		fmt.Errorf("wrap: %w", datasets.ErrHandleNotFound): mcperr.InvalidHandle,
		fmt.Errorf("wrap: %w", perfdata.ErrSheetNotFound):  mcperr.InvalidSheet,
		fmt.Errorf("wrap: %w", perfdata.ErrTooManyRows):    mcperr.LimitExceeded,
		fmt.Errorf("wrap: %w", insights.ErrCursorMismatch): mcperr.CursorInvalid,
		fmt.Errorf("wrap: %w", security.ErrNotAllowed):     mcperr.PermissionDenied,
		fmt.Errorf("wrap: %w", context.DeadlineExceeded):   mcperr.Timeout,
		errors.New("boom"):                                 mcperr.CalculationFailed,
	}
	for err, want := range cases {
		require.Equal(t, want, codeFor(err, mcperr.CalculationFailed), err.Error())
	}

	res := toolError(fmt.Errorf("%w: Móvel / X", scenario.ErrNoDataForScope), mcperr.CalculationFailed)
	require.True(t, res.IsError)
	tc, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	require.True(t, strings.HasPrefix(tc.Text, "NO_DATA_FOR_SCOPE: no data for filters: Móvel / X"))
	require.Contains(t, tc.Text, "nextSteps:")
}
