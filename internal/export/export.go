// Package export writes Pareto rankings to xlsx workbooks.
package export

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/crcalc/internal/insights"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the ranking workbook.
const (
	SheetResults  = "Resultados"
	SheetPriority = "Top_80_Pareto"
)

// Columns is the header shared by both sheets.
var Columns = []string{
	"Subcanal",
	"Tribo",
	"Transações / Acessos",
	"TX UU / CPF",
	"% Retido",
	"% CR",
	"Volume de Acessos",
	"MAU (CPF)",
	"Volume de CR Evitado",
	"Acumulado %",
}

var colWidths = []float64{40, 16, 20, 14, 12, 10, 20, 14, 22, 14}

// Workbook builds the two-sheet ranking workbook: every ranked row in
// Resultados and the priority subset in Top_80_Pareto.
func Workbook(r insights.Ranking) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetResults); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(SheetPriority); err != nil {
		_ = f.Close()
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeSheet(f, SheetResults, header, r.Rows); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeSheet(f, SheetPriority, header, r.Priority); err != nil {
		_ = f.Close()
		return nil, err
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, rows []insights.RankedRow) error {
	if err := f.SetSheetRow(sheet, "A1", &Columns); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(Columns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, w := range colWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			row.Subchannel,
			row.Tribe,
			round2(row.TransactionsPerAccess),
			round2(row.UniqueUserRatio),
			round2(row.RetentionPct),
			round2(row.ConversionRatePct),
			row.AccessVolume,
			row.ActiveUserEstimate,
			row.AvoidedContactVolume,
			round2(row.CumulativePct),
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the ranking workbook to path.
func Save(path string, r insights.Ranking) error {
	f, err := Workbook(r)
	if err != nil {
		return fmt.Errorf("export: build workbook: %w", err)
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export: save %q: %w", path, err)
	}
	return nil
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

// PathValidator canonicalizes and authorizes an export target.
type PathValidator interface {
	ValidateWritePath(string) (string, error)
}

// ErrNoValidator is returned when no path validator is configured.
var ErrNoValidator = errors.New("export: path validator not configured")

// WriteRankingInput ranks a segment and writes the result to an xlsx file.
type WriteRankingInput struct {
	DatasetID         string `json:"dataset_id" jsonschema_description:"Dataset handle returned by open_dataset" validate:"required"`
	Segment           string `json:"segment" jsonschema_description:"Segment to rank" validate:"required"`
	Period            int    `json:"period,omitempty" jsonschema_description:"Optional yyyymm period restricting the historical ratios" validate:"omitempty,gte=190001,lte=299912"`
	TransactionVolume int64  `json:"transaction_volume" jsonschema_description:"Simulated transaction volume applied to every subchannel" validate:"gte=0"`
	OutputPath        string `json:"output_path" jsonschema_description:"Target .xlsx path inside an allowed directory" validate:"required,export_ext"`
}

// WriteRankingOutput reports what was written.
type WriteRankingOutput struct {
	Path          string `json:"path"`
	Rows          int    `json:"rows"`
	PriorityRows  int    `json:"priority_rows"`
	TotalAvoided  int64  `json:"total_avoided_volume"`
	PrioritySheet string `json:"priority_sheet"`
}

// Writer ranks segments through a Ranker and saves them as workbooks.
type Writer struct {
	Ranker    *insights.Ranker
	Validator PathValidator
}

// WriteRanking computes the full ranking for in and saves it to the
// validated output path.
func (w *Writer) WriteRanking(ctx context.Context, in WriteRankingInput) (WriteRankingOutput, error) {
	var out WriteRankingOutput
	if w.Validator == nil {
		return out, ErrNoValidator
	}
	target, err := w.Validator.ValidateWritePath(in.OutputPath)
	if err != nil {
		return out, err
	}
	ranking, err := w.Ranker.Ranking(ctx, insights.RankSegmentInput{
		DatasetID:         in.DatasetID,
		Segment:           in.Segment,
		Period:            in.Period,
		TransactionVolume: in.TransactionVolume,
	})
	if err != nil {
		return out, err
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if err := Save(target, ranking); err != nil {
		return out, err
	}
	out = WriteRankingOutput{
		Path:          target,
		Rows:          len(ranking.Rows),
		PriorityRows:  len(ranking.Priority),
		TotalAvoided:  ranking.TotalAvoided,
		PrioritySheet: SheetPriority,
	}
	zerolog.Ctx(ctx).Info().Str("path", target).Int("rows", out.Rows).Int("priority_rows", out.PriorityRows).Msg("ranking workbook written")
	return out, nil
}
