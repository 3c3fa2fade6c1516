package sources

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

const gdpPage = `<html><body>
<table><tbody><tr><td>summary</td></tr></tbody></table>
<table><tbody><tr><td>notes</td></tr></tbody></table>
<table class="wikitable">
<tbody>
<tr><th>Country</th><th>Region</th><th>IMF estimate</th><th>Year</th></tr>
<tr><td>World</td><td>—</td><td>105,568,776</td><td>2023</td></tr>
<tr><td><a href="/wiki/United_States">United States</a></td><td>Americas</td><td>26,854,599</td><td>2023</td></tr>
<tr><td><a href="/wiki/China">China</a></td><td>Asia</td><td>19,373,586</td><td>2023</td></tr>
<tr><td><a href="/wiki/Afghanistan">Afghanistan</a></td><td>Asia</td><td>—</td><td>2023</td></tr>
<tr><td><a href="/wiki/Tuvalu">Tuvalu</a></td><td>Oceania</td><td>63</td><td>2023</td></tr>
</tbody>
</table>
</body></html>`

const banksPage = `<html><body><table><tbody>
<tr><th>Rank</th><th>Bank name</th><th>Market cap</th></tr>
<tr><td>1</td><td><a href="/a">JPMorgan Chase</a></td><td>432.92</td></tr>
<tr><td>2</td><td><a href="/b">Bank of America</a></td><td>231.52</td></tr>
<tr><td>3</td><td>Industrial and Commercial Bank of China</td><td>194.56</td></tr>
</tbody></table></body></html>`

func servePage(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func gdpConfig(url string) etl.SourceConfig {
	return etl.SourceConfig{
		"url":        url,
		"tableIndex": 2,
		"columns": []any{
			map[string]any{"name": "Country", "cell": 0},
			map[string]any{"name": "GDP_USD_millions", "cell": 2},
		},
	}
}

func TestHTMLTableSkipsHeaderAndPlaceholders(t *testing.T) {
	url := servePage(t, http.StatusOK, gdpPage)

	f, err := readSource(t, "html_table", gdpConfig(url))
	require.NoError(t, err)
	require.Equal(t, []string{"Country", "GDP_USD_millions"}, f.Columns())
	require.Equal(t, 4, f.Len())

	countries, _ := f.Column("Country")
	require.Equal(t, []any{"World", "United States", "China", "Tuvalu"}, countries)
	require.Equal(t, "26,854,599", f.Value(1, "GDP_USD_millions"))
}

func TestHTMLTableAnchorAndNumericCells(t *testing.T) {
	url := servePage(t, http.StatusOK, banksPage)

	f, err := readSource(t, "html_table", etl.SourceConfig{
		"url": url,
		"columns": []any{
			map[string]any{"name": "Name", "cell": 1, "anchor": true},
			map[string]any{"name": "MC_USD_Billion", "cell": 2, "kind": "number"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	require.Equal(t, "Bank of America", f.Value(1, "Name"))
	require.Equal(t, 432.92, f.Value(0, "MC_USD_Billion"))
}

func TestHTMLTableErrors(t *testing.T) {
	_, err := readSource(t, "html_table", gdpConfig(servePage(t, http.StatusNotFound, "gone")))
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)

	cfg := gdpConfig(servePage(t, http.StatusOK, banksPage))
	cfg["tableIndex"] = 5
	_, err = readSource(t, "html_table", cfg)
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)

	narrow := `<table><tbody><tr><td>only</td></tr></tbody></table>`
	cfg = gdpConfig(servePage(t, http.StatusOK, narrow))
	cfg["tableIndex"] = 0
	_, err = readSource(t, "html_table", cfg)
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)

	badNumber := `<table><tbody><tr><td>x</td><td>y</td><td>n/a</td></tr></tbody></table>`
	_, err = readSource(t, "html_table", etl.SourceConfig{
		"url":     servePage(t, http.StatusOK, badNumber),
		"columns": []any{map[string]any{"name": "v", "cell": 2, "kind": "number"}},
	})
	require.ErrorIs(t, err, domain.ErrParseFailure)
}

func TestHTMLTableIntegerCells(t *testing.T) {
	rankColumns := []any{map[string]any{"name": "Rank", "cell": 0, "kind": "integer"}}

	f, err := readSource(t, "html_table", etl.SourceConfig{
		"url":     servePage(t, http.StatusOK, banksPage),
		"columns": rankColumns,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), f.Value(0, "Rank"))

	fractional := `<table><tbody><tr><td>1.5</td><td>y</td></tr></tbody></table>`
	_, err = readSource(t, "html_table", etl.SourceConfig{
		"url":     servePage(t, http.StatusOK, fractional),
		"columns": rankColumns,
	})
	require.ErrorIs(t, err, domain.ErrParseFailure)
}

func TestIsPlaceholder(t *testing.T) {
	require.True(t, isPlaceholder("—"))
	require.True(t, isPlaceholder("--"))
	require.True(t, isPlaceholder("–"))
	require.False(t, isPlaceholder(""))
	require.False(t, isPlaceholder("-5"))
	require.False(t, isPlaceholder("n/a"))
}

func TestHTTPJSONDataPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "token", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"rates":[{"Currency":"EUR","Rate":0.93},{"Currency":"GBP","Rate":0.8},{"Currency":"INR","Rate":82.95}]}}`))
	}))
	t.Cleanup(srv.Close)

	f, err := readSource(t, "http_json", etl.SourceConfig{
		"url":      srv.URL,
		"headers":  map[string]any{"X-Api-Key": "token"},
		"dataPath": "data.rates",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Currency", "Rate"}, f.Columns())
	require.Equal(t, 3, f.Len())
	require.Equal(t, 82.95, f.Value(2, "Rate"))

	_, err = readSource(t, "http_json", etl.SourceConfig{"url": srv.URL, "dataPath": "data.missing"})
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestHTTPJSONSingleObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"base":"USD","count":3}`))
	}))
	t.Cleanup(srv.Close)

	f, err := readSource(t, "http_json", etl.SourceConfig{"url": srv.URL})
	require.NoError(t, err)
	require.Equal(t, 1, f.Len())
	require.Equal(t, int64(3), f.Value(0, "count"))
}
