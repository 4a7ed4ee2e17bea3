package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadTickerFile reads a ticker universe from a CSV file. The ticker column is
// the first header containing "symbol" or "ticker", else the first column.
// A file without such a header is read as one ticker per line.
func LoadTickerFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open watchlist: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read watchlist %s: %w", path, err)
	}

	col, hasHeader := symbolColumn(header)
	var tickers []string
	if !hasHeader && len(header) > 0 {
		tickers = append(tickers, header[0])
	}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read watchlist %s: %w", path, err)
		}
		if col < len(rec) {
			tickers = append(tickers, rec[col])
		}
	}
	return CleanTickers(tickers), nil
}

func symbolColumn(header []string) (int, bool) {
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		if strings.Contains(col, "symbol") || strings.Contains(col, "ticker") {
			return i, true
		}
	}
	return 0, false
}
