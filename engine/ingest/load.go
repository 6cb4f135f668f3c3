package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/AtendeAI/atende-mvp/engine/domain"
)

// Required columns of the knowledge source, by header name.
var requiredColumns = []string{"pergunta", "resposta", "categoria", "fonte"}

// columnMap resolves header names to field indexes. Missing columns surface
// immediately at load time, not at first field access.
type columnMap map[string]int

func mapColumns(header []string) (columnMap, error) {
	cols := make(columnMap, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrMissingColumn, name)
		}
	}
	return cols, nil
}

func (c columnMap) field(row []string, name string) string {
	idx := c[name]
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}

// LoadCSV reads the tabular knowledge source wholesale. A missing file is
// domain.ErrSourceNotFound; a header without the required columns is
// domain.ErrMissingColumn. Row order is preserved.
func LoadCSV(path string) ([]domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are tolerated; missing cells read as ""

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %q", domain.ErrMissingColumn, requiredColumns[0])
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: read header of %s: %w", path, err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var records []domain.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: read %s: %w", path, err)
		}
		records = append(records, domain.Record{
			Pergunta:  cols.field(row, "pergunta"),
			Resposta:  cols.field(row, "resposta"),
			Categoria: cols.field(row, "categoria"),
			Fonte:     cols.field(row, "fonte"),
		})
	}
	return records, nil
}
