// Package convert turns XLSX sheets into CSV or JSON files.
package convert

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"
)

// Options controls a conversion.
type Options struct {
	// Sheet name; empty means the first sheet.
	Sheet string

	// HeaderRow is the 1-based row carrying column names. Defaults to 1.
	HeaderRow int

	// Format is "csv" or "json"; empty means detect from the output
	// extension.
	Format string
}

// DetectFormat returns the conversion format for an output path.
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "csv"
	}
}

// ReadSheet reads an XLSX sheet into a header row plus data rows. Rows
// shorter than the header are padded with empty cells.
func ReadSheet(path string, opts Options) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, errors.Newf("%s has no sheets", path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading sheet %q", sheet)
	}
	headerRow := opts.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}
	if len(rows) < headerRow {
		return nil, nil, errors.Newf("sheet %q has no row %d", sheet, headerRow)
	}
	header := rows[headerRow-1]
	var data [][]string
	for _, row := range rows[headerRow:] {
		padded := make([]string, len(header))
		copy(padded, row)
		data = append(data, padded)
	}
	return header, data, nil
}

// File converts an XLSX file to CSV or JSON at outPath.
func File(inPath, outPath string, opts Options) (int, error) {
	header, rows, err := ReadSheet(inPath, opts)
	if err != nil {
		return 0, err
	}
	format := opts.Format
	if format == "" {
		format = DetectFormat(outPath)
	}
	switch format {
	case "csv":
		return len(rows), writeCSV(outPath, header, rows)
	case "json":
		return len(rows), writeJSON(outPath, header, rows)
	}
	return 0, errors.Newf("unsupported format %q", format)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, header []string, rows [][]string) error {
	records := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		record := make(map[string]string, len(header))
		for i, key := range header {
			record[key] = row[i]
		}
		records = append(records, record)
	}
	buf, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}
