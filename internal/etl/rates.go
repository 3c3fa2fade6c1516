package etl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"etlpipe/internal/domain"
)

// RateTable maps a currency code to its rate against the base currency.
type RateTable map[string]float64

// Rate looks up a currency, case-insensitively.
func (r RateTable) Rate(currency string) (float64, error) {
	if v, ok := r[currency]; ok {
		return v, nil
	}
	for k, v := range r {
		if strings.EqualFold(k, currency) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: no exchange rate for %q", domain.ErrSchemaMismatch, currency)
}

// ReadRateTable reads a "Currency,Rate" CSV file with a header row.
func ReadRateTable(path string) (RateTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open rates %s: %w", domain.ErrSourceUnavailable, path, err)
	}
	defer f.Close()
	return parseRateTable(f)
}

func parseRateTable(r io.Reader) (RateTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty rates file", domain.ErrSchemaMismatch)
		}
		return nil, fmt.Errorf("%w: read rates header: %w", domain.ErrSourceUnavailable, err)
	}
	currencyCol, rateCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "Currency":
			currencyCol = i
		case "Rate":
			rateCol = i
		}
	}
	if currencyCol < 0 || rateCol < 0 {
		return nil, fmt.Errorf("%w: rates header %v lacks Currency and Rate", domain.ErrSchemaMismatch, header)
	}

	rates := RateTable{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read rates: %w", domain.ErrSchemaMismatch, err)
		}
		rate, err := ParseNumber(row[rateCol])
		if err != nil {
			return nil, fmt.Errorf("rate for %q: %w", row[currencyCol], err)
		}
		rates[strings.TrimSpace(row[currencyCol])] = rate
	}
	return rates, nil
}
