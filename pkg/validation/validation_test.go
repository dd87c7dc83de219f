package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/crcalc/pkg/pagination"
)

type openInput struct {
	Path string `validate:"required,dataset_ext"`
}

type exportInput struct {
	OutputPath string `validate:"required,export_ext"`
}

type pageInput struct {
	DatasetID string `validate:"required_without=Cursor"`
	Cursor    string `validate:"omitempty,cursor"`
	PageSize  int    `validate:"omitempty,min=1,max=500"`
}

func TestDatasetExt(t *testing.T) {
	require.Empty(t, ValidateStruct(openInput{Path: "/data/Tabela.XLSX"}))
	require.Empty(t, ValidateStruct(openInput{Path: "/data/base.csv"}))
	require.True(t, strings.HasPrefix(ValidateStruct(openInput{Path: "/data/base.xls"}), "UNSUPPORTED_FORMAT"))
	require.Equal(t, "VALIDATION: path is required", ValidateStruct(openInput{}))
}

func TestExportExt(t *testing.T) {
	require.Empty(t, ValidateStruct(exportInput{OutputPath: "/out/simulacao_cr.xlsx"}))
	require.True(t, strings.HasPrefix(ValidateStruct(exportInput{OutputPath: "/out/simulacao_cr.csv"}), "UNSUPPORTED_FORMAT"))
}

func TestCursorRule(t *testing.T) {
	tok, err := pagination.EncodeCursor(pagination.Cursor{Did: "d1", Seg: "Móvel", Tv: 10, Off: 50, Ps: 50})
	require.NoError(t, err)
	require.Empty(t, ValidateStruct(pageInput{Cursor: tok}))
	require.True(t, strings.HasPrefix(ValidateStruct(pageInput{Cursor: "not-a-cursor"}), "CURSOR_INVALID"))
	require.Equal(t, "VALIDATION: datasetid is required (or supply cursor)", ValidateStruct(pageInput{}))
	require.Equal(t, "VALIDATION: pagesize must satisfy max=500", ValidateStruct(pageInput{DatasetID: "d1", PageSize: 501}))
}
