// Package roster reads company rosters (CSV or XLSX) for enrollment.
package roster

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/contacts-cli/internal/model"
)

// Header aliases accepted for each column.
var (
	idHeaders   = []string{"business_id", "biz_identifier", "id"}
	nameHeaders = []string{"business_name", "biz_name", "name", "company"}
)

// Read loads companies from a .csv or .xlsx file.
func Read(path string) ([]model.Company, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path) //nolint:gosec
		if err != nil {
			return nil, eris.Wrap(err, "roster: open csv")
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(f)
	case ".xlsx":
		return ReadXLSX(path, "")
	default:
		return nil, eris.Errorf("roster: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV parses a roster with a header row.
func ReadCSV(r io.Reader) ([]model.Company, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "roster: read csv")
	}
	return fromRows(rows)
}

// ReadXLSX parses the named sheet, or the first sheet when sheet is empty.
func ReadXLSX(path, sheet string) ([]model.Company, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "roster: open xlsx")
	}

	var s *xlsx.Sheet
	if sheet != "" {
		var ok bool
		if s, ok = f.Sheet[sheet]; !ok {
			return nil, eris.Errorf("roster: sheet %q not found", sheet)
		}
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("roster: workbook has no sheets")
		}
		s = f.Sheets[0]
	}

	rows := make([][]string, 0, len(s.Rows))
	for _, row := range s.Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = c.String()
		}
		rows = append(rows, cells)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]model.Company, error) {
	if len(rows) == 0 {
		return nil, eris.New("roster: empty file")
	}

	idCol, nameCol := -1, -1
	for i, h := range rows[0] {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if idCol < 0 && contains(idHeaders, h) {
			idCol = i
		} else if nameCol < 0 && contains(nameHeaders, h) {
			nameCol = i
		}
	}
	if idCol < 0 {
		return nil, eris.Errorf("roster: no business id column (want one of %s)", strings.Join(idHeaders, ", "))
	}

	index := make(map[string]int)
	var out []model.Company
	skipped := 0
	for _, row := range rows[1:] {
		id := cell(row, idCol)
		if id == "" {
			skipped++
			continue
		}
		c := model.Company{BusinessID: id, BusinessName: cell(row, nameCol)}
		if i, ok := index[id]; ok {
			out[i] = c
			continue
		}
		index[id] = len(out)
		out = append(out, c)
	}

	if skipped > 0 {
		zap.L().Warn("roster: rows without business id skipped", zap.Int("rows", skipped))
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
