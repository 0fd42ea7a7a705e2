package excel

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gosurv/adapters/datareadiness/coercer"
	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal"
	"gosurv/internal/errors"

	"github.com/xuri/excelize/v2"
)

// File types understood by the reader
const (
	FileTypeXLSX = "xlsx"
	FileTypeCSV  = "csv"
)

// DataReader parses uploaded Excel and CSV files into tables.
// Only the first worksheet is read and its first row is the header.
type DataReader struct {
	coercer *coercer.TypeCoercer
	logger  *internal.Logger
}

// NewDataReader creates a reader using c to type each cell
func NewDataReader(c *coercer.TypeCoercer, logger *internal.Logger) *DataReader {
	if c == nil {
		c = coercer.NewTypeCoercer(coercer.DefaultCoercionConfig())
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &DataReader{coercer: c, logger: logger.WithComponent("DataReader")}
}

// DetectFileType maps a file name to a supported file type
func DetectFileType(name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FileTypeXLSX, nil
	case ".csv":
		return FileTypeCSV, nil
	default:
		return "", errors.ParseError("only .xlsx and .csv files are supported",
			fmt.Errorf("%w: %s", core.ErrUnsupportedFile, filepath.Ext(name)))
	}
}

// ReadFile reads a spreadsheet from disk
func (r *DataReader) ReadFile(path string) (*dataset.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.ParseError("failed to open file", fmt.Errorf("%w: %v", core.ErrUnreadableFile, err))
	}
	defer file.Close()

	return r.Read(filepath.Base(path), file)
}

// Read parses src according to the extension of name
func (r *DataReader) Read(name string, src io.Reader) (*dataset.Table, error) {
	fileType, err := DetectFileType(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var rows [][]string
	switch fileType {
	case FileTypeCSV:
		rows, err = r.readCSVRows(src)
	default:
		rows, err = r.readExcelRows(src)
	}
	if err != nil {
		r.logger.Warn("failed to read %s: %v", name, err)
		return nil, err
	}
	r.logger.Debug("%s read in %.2fms (%d raw rows)", name, float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	table, err := r.processRows(name, rows)
	if err != nil {
		return nil, err
	}
	r.logger.Info("%s loaded (%d columns, %d rows)", name, len(table.Columns), table.Len())
	return table, nil
}

// readExcelRows reads the raw cell values of the first worksheet
func (r *DataReader) readExcelRows(src io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, errors.ParseError("failed to open Excel file", fmt.Errorf("%w: %v", core.ErrUnreadableFile, err))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ParseError("workbook has no worksheets", core.ErrUnreadableFile)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.ParseError(fmt.Sprintf("failed to read worksheet %q", sheets[0]),
			fmt.Errorf("%w: %v", core.ErrUnreadableFile, err))
	}
	return rows, nil
}

// readCSVRows reads all records, tolerating ragged rows
func (r *DataReader) readCSVRows(src io.Reader) ([][]string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.ParseError("failed to read CSV file", fmt.Errorf("%w: %v", core.ErrUnreadableFile, err))
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.ParseError("failed to parse CSV file", fmt.Errorf("%w: %v", core.ErrUnreadableFile, err))
	}
	return rows, nil
}

// processRows turns raw string rows into a typed table. Blank rows are
// skipped; a header-only sheet yields an empty table.
func (r *DataReader) processRows(name string, rows [][]string) (*dataset.Table, error) {
	headerIdx := -1
	for i, row := range rows {
		if !isBlankRow(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, errors.ParseError("spreadsheet is empty: a header row is required", core.ErrUnreadableFile)
	}

	width := 0
	for _, row := range rows[headerIdx:] {
		if len(row) > width {
			width = len(row)
		}
	}
	headers := normalizeHeaders(rows[headerIdx], width)

	var data [][]dataset.Cell
	for _, row := range rows[headerIdx+1:] {
		if isBlankRow(row) {
			continue
		}
		cells := make([]dataset.Cell, width)
		for j := range cells {
			if j < len(row) {
				cells[j] = r.coercer.CoerceCell(row[j])
			}
		}
		data = append(data, cells)
	}

	table, err := dataset.NewTable(name, headers, data)
	if err != nil {
		return nil, errors.ParseError("malformed header row", err)
	}
	return table, nil
}

// normalizeHeaders trims names, fills blanks with "Unnamed: i" and
// de-duplicates repeats as name.1, name.2, ...
func normalizeHeaders(raw []string, width int) []string {
	headers := make([]string, width)
	seen := make(map[string]int, width)
	taken := make(map[string]bool, width)

	for i := 0; i < width; i++ {
		h := ""
		if i < len(raw) {
			h = strings.TrimSpace(raw[i])
		}
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		base := h
		for taken[h] {
			seen[base]++
			h = fmt.Sprintf("%s.%d", base, seen[base])
		}
		taken[h] = true
		headers[i] = h
	}
	return headers
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
