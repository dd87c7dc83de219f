package perfdata

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/vinodismyname/crcalc/config"
	"github.com/vinodismyname/crcalc/internal/textnorm"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var (
	// ErrMissingColumn indicates a required column is absent from the header.
	ErrMissingColumn = errors.New("perfdata: missing column")
	// ErrUnsupportedFormat indicates a source extension that cannot be loaded.
	ErrUnsupportedFormat = errors.New("perfdata: unsupported format")
	// ErrSheetNotFound indicates the requested sheet does not exist.
	ErrSheetNotFound = errors.New("perfdata: sheet not found")
	// ErrTooManyRows indicates the source exceeds the configured row cap.
	ErrTooManyRows = errors.New("perfdata: too many rows")
	// ErrEmptySource indicates a source without a header row.
	ErrEmptySource = errors.New("perfdata: empty source")
)

// Field identifies a logical column of the performance table.
type Field string

const (
	FieldPeriod              Field = "period"
	FieldRecordType          Field = "record_type"
	FieldSegment             Field = "segment"
	FieldSubchannel          Field = "subchannel"
	FieldSecondarySubchannel Field = "secondary_subchannel"
	FieldTribe               Field = "tribe"
	FieldKPIName             Field = "kpi_name"
	FieldVolume              Field = "kpi_volume"
)

// columnAliases maps each field to the header spellings accepted for it.
// Headers are compared after normalization.
var columnAliases = map[Field][]string{
	FieldPeriod:              {"ANOMES", "ANO_MES", "periodo", "period"},
	FieldRecordType:          {"TP_META", "tipo_meta", "tipo", "record_type"},
	FieldSegment:             {"SEGMENTO", "segment"},
	FieldSubchannel:          {"NM_SUBCANAL", "subcanal", "subchannel"},
	FieldSecondarySubchannel: {"NM_SUBCANAL_2", "NM_SUBCANAL_AJUSTADO", "subcanal_2", "subcanal_ajustado", "secondary_subchannel"},
	FieldTribe:               {"NM_TORRE", "torre", "tribo", "tribe"},
	FieldKPIName:             {"NM_KPI", "kpi", "kpi_name"},
	FieldVolume:              {"VOL_KPI", "volume", "kpi_volume"},
}

var requiredFields = []Field{FieldSegment, FieldSubchannel, FieldTribe, FieldKPIName, FieldVolume}

// LoadOptions bounds and locates the source data.
type LoadOptions struct {
	// Sheet names the workbook sheet. Empty selects config.DefaultSheetName
	// when present, else the first sheet.
	Sheet string
	// MaxRows caps data rows; <= 0 uses config.DefaultMaxRowsPerDataset.
	MaxRows int
}

func (o LoadOptions) maxRows() int {
	if o.MaxRows <= 0 {
		return config.DefaultMaxRowsPerDataset
	}
	return o.MaxRows
}

// Load reads a performance table from an .xlsx/.xlsm workbook or a .csv file.
func Load(path string, opts LoadOptions) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("perfdata: open workbook: %w", err)
		}
		defer f.Close()
		return ReadWorkbook(f, opts)
	case ".csv":
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("perfdata: open csv: %w", err)
		}
		defer fh.Close()
		return ReadCSV(fh, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// ResolveSheet picks the sheet to read from f according to opts.
func ResolveSheet(f *excelize.File, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		if idx, err := f.GetSheetIndex(requested); err != nil || idx < 0 {
			return "", fmt.Errorf("%w: %q", ErrSheetNotFound, requested)
		}
		return requested, nil
	}
	sheets := f.GetSheetList()
	for _, s := range sheets {
		if textnorm.Equal(s, config.DefaultSheetName) {
			return s, nil
		}
	}
	if len(sheets) == 0 {
		return "", ErrEmptySource
	}
	return sheets[0], nil
}

// ReadWorkbook streams the selected sheet of f into a Table. The first
// row is the header.
func ReadWorkbook(f *excelize.File, opts LoadOptions) (*Table, error) {
	sheet, err := ResolveSheet(f, opts.Sheet)
	if err != nil {
		return nil, err
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("perfdata: read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	var b *builder
	for rows.Next() {
		vals, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("perfdata: read row: %w", err)
		}
		if b == nil {
			if isBlank(vals) {
				continue
			}
			if b, err = newBuilder(vals, opts.maxRows()); err != nil {
				return nil, err
			}
			continue
		}
		if err := b.add(vals); err != nil {
			return nil, err
		}
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("perfdata: read rows: %w", err)
	}
	if b == nil {
		return nil, ErrEmptySource
	}
	return b.table(), nil
}

// ReadCSV reads a delimited export of the performance table. Non-UTF-8
// input is decoded as Windows-1252, the usual encoding of spreadsheet
// exports in pt-BR locales. The delimiter (',' or ';') is detected from
// the header line.
func ReadCSV(r io.Reader, opts LoadOptions) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("perfdata: read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, _, derr := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if derr != nil {
			return nil, fmt.Errorf("perfdata: decode csv: %w", derr)
		}
		data = decoded
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = detectDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var b *builder
	for {
		vals, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("perfdata: parse csv: %w", err)
		}
		if b == nil {
			if isBlank(vals) {
				continue
			}
			if b, err = newBuilder(vals, opts.maxRows()); err != nil {
				return nil, err
			}
			continue
		}
		if err := b.add(vals); err != nil {
			return nil, err
		}
	}
	if b == nil {
		return nil, ErrEmptySource
	}
	return b.table(), nil
}

func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

// builder maps header positions to fields and accumulates rows.
type builder struct {
	cols    map[Field]int
	maxRows int
	rows    []Row
}

func newBuilder(header []string, maxRows int) (*builder, error) {
	cols := MapColumns(header)
	var missing []string
	for _, f := range requiredFields {
		if _, ok := cols[f]; !ok {
			missing = append(missing, columnAliases[f][0])
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return &builder{cols: cols, maxRows: maxRows}, nil
}

// MapColumns resolves header cells to fields. The first matching header
// wins when a field appears twice.
func MapColumns(header []string) map[Field]int {
	lookup := map[string]Field{}
	for field, aliases := range columnAliases {
		for _, a := range aliases {
			lookup[textnorm.Normalize(a)] = field
		}
	}
	cols := map[Field]int{}
	for i, h := range header {
		field, ok := lookup[textnorm.Normalize(h)]
		if !ok {
			continue
		}
		if _, dup := cols[field]; !dup {
			cols[field] = i
		}
	}
	return cols
}

func (b *builder) cell(vals []string, f Field) string {
	i, ok := b.cols[f]
	if !ok || i >= len(vals) {
		return ""
	}
	return strings.TrimSpace(vals[i])
}

func (b *builder) add(vals []string) error {
	if isBlank(vals) {
		return nil
	}
	if len(b.rows) >= b.maxRows {
		return fmt.Errorf("%w: limit %d", ErrTooManyRows, b.maxRows)
	}
	sub := b.cell(vals, FieldSubchannel)
	if alt := b.cell(vals, FieldSecondarySubchannel); alt != "" {
		sub = alt
	}
	vol, ok := ParseVolume(b.cell(vals, FieldVolume))
	b.rows = append(b.rows, Row{
		Period:          ParsePeriod(b.cell(vals, FieldPeriod)),
		RecordType:      b.cell(vals, FieldRecordType),
		Segment:         b.cell(vals, FieldSegment),
		Subchannel:      sub,
		Tribe:           b.cell(vals, FieldTribe),
		KPIName:         b.cell(vals, FieldKPIName),
		Volume:          vol,
		VolumeMalformed: !ok,
	})
	return nil
}

func (b *builder) table() *Table {
	_, hasRecordType := b.cols[FieldRecordType]
	return NewTable(b.rows, hasRecordType)
}

func isBlank(vals []string) bool {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
