package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── HTML Table Source ──────────────────────────────────────
// Fetches a page and scrapes one <tbody>. Columns map to cell positions
// within each row. Rows without <td> cells (header rows) are skipped, as
// are rows whose mapped cells hold only a dash placeholder.

var (
	client = resty.New().
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", "etlpipe/1.0")
	tracer = otel.Tracer("etlpipe/sources")
)

type htmlTableSource struct{}

func init() { etl.RegisterSource(&htmlTableSource{}) }

// htmlColumn maps a cell position to an output column.
type htmlColumn struct {
	Name string `json:"name"`
	Cell int    `json:"cell"`
	// Anchor takes the text of the first <a> in the cell; rows without one are skipped.
	Anchor bool        `json:"anchor,omitempty"`
	Kind   domain.Kind `json:"kind,omitempty"`
}

type htmlTableConfig struct {
	URL        string       `json:"url"`
	TableIndex int          `json:"tableIndex"`
	Columns    []htmlColumn `json:"columns"`
}

func (s *htmlTableSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "html_table",
		Label: "HTML Table",
		ConfigFields: []etl.ConfigField{
			{Key: "url", Label: "URL", Type: "string", Required: true, Help: "Page to scrape"},
			{Key: "tableIndex", Label: "Table Index", Type: "number", Default: "0", Help: "0-based position of the <tbody> in document order"},
			{Key: "columns", Label: "Columns", Type: "list", Required: true, Help: "Objects of {name, cell, anchor, kind}"},
		},
	}
}

func (s *htmlTableSource) Read(ctx context.Context, cfg etl.SourceConfig) (*domain.Frame, error) {
	var c htmlTableConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	if c.URL == "" || len(c.Columns) == 0 {
		return nil, fmt.Errorf("url and columns are required")
	}

	ctx, span := tracer.Start(ctx, "FetchHTMLTable")
	defer span.End()
	span.SetAttributes(attribute.String("url", c.URL))

	body, err := fetchPage(ctx, c.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", domain.ErrSourceUnavailable, err)
	}
	return scrapeTable(ctx, doc, c)
}

func fetchPage(ctx context.Context, url string) ([]byte, error) {
	res, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", domain.ErrSourceUnavailable, url, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: get %s: status %d", domain.ErrSourceUnavailable, url, res.StatusCode())
	}
	return res.Body(), nil
}

func scrapeTable(ctx context.Context, doc *goquery.Document, c htmlTableConfig) (*domain.Frame, error) {
	tables := doc.Find("tbody")
	if c.TableIndex < 0 || c.TableIndex >= tables.Length() {
		return nil, fmt.Errorf("%w: page has %d tables, want index %d", domain.ErrSourceUnavailable, tables.Length(), c.TableIndex)
	}

	names := make([]string, len(c.Columns))
	need := 0
	for i, col := range c.Columns {
		names[i] = col.Name
		if col.Cell+1 > need {
			need = col.Cell + 1
		}
	}
	b, err := domain.NewBuilder(names...)
	if err != nil {
		return nil, err
	}

	var (
		rowErr  error
		skipped int
	)
	row := make([]any, len(c.Columns))
	tables.Eq(c.TableIndex).ChildrenFiltered("tr").EachWithBreak(func(i int, tr *goquery.Selection) bool {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() == 0 {
			return true
		}
		if cells.Length() < need {
			rowErr = fmt.Errorf("%w: row %d has %d cells, want at least %d", domain.ErrSchemaMismatch, i, cells.Length(), need)
			return false
		}
		for j, col := range c.Columns {
			cell := cells.Eq(col.Cell)
			var text string
			if col.Anchor {
				a := cell.Find("a").First()
				if a.Length() == 0 {
					skipped++
					return true
				}
				text = strings.TrimSpace(a.Text())
			} else {
				text = strings.TrimSpace(cell.Text())
			}
			if isPlaceholder(text) {
				skipped++
				return true
			}
			v, err := cellValue(text, col.Kind)
			if err != nil {
				rowErr = fmt.Errorf("row %d column %s: %w", i, col.Name, err)
				return false
			}
			row[j] = v
		}
		if err := b.Append(row...); err != nil {
			rowErr = err
			return false
		}
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	slog.DebugContext(ctx, "sources: html table scraped", "rows", b.Len(), "skipped", skipped)
	return b.Frame(), nil
}

// isPlaceholder reports whether a cell holds only dash glyphs.
func isPlaceholder(text string) bool {
	if text == "" {
		return false
	}
	return strings.Trim(text, "—–-") == ""
}

func cellValue(text string, kind domain.Kind) (any, error) {
	switch kind {
	case domain.KindNumber:
		return etl.ParseNumber(text)
	case domain.KindInteger:
		return etl.ParseInteger(text)
	default:
		return text, nil
	}
}
