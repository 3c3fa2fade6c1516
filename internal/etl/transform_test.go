package etl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"etlpipe/internal/domain"
)

func frameOf(t *testing.T, names []string, rows ...[]any) *domain.Frame {
	t.Helper()
	b, err := domain.NewBuilder(names...)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, b.Append(r...))
	}
	return b.Frame()
}

func TestRound(t *testing.T) {
	for _, tc := range []struct {
		in     float64
		places int
		want   float64
	}{
		{5000.0, 2, 5000.0},
		{7089.552238805969, 2, 7089.55},
		{4253.731343283582, 2, 4253.73},
		{2.675, 0, 3},
		{-1.5, 0, -2},
		{26854.599, 2, 26854.6},
	} {
		require.Equal(t, tc.want, Round(tc.in, tc.places), "Round(%v, %d)", tc.in, tc.places)
	}
}

func TestParseNumber(t *testing.T) {
	for in, want := range map[string]float64{
		"26,854,599":     26854599,
		" 1 234.5 ":      1234.5,
		"1\u00a0000":     1000,
		"432.92":         432.92,
		"-7":             -7,
		"1_000_000.25":   1000000.25,
	} {
		got, err := ParseNumber(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "—", "n/a", "1.2.3"} {
		_, err := ParseNumber(in)
		require.ErrorIs(t, err, domain.ErrParseFailure, in)
	}
}

func TestGDPChain(t *testing.T) {
	in := frameOf(t, []string{"Country", "GDP_USD_millions"},
		[]any{"United States", "26,854,599"},
		[]any{"China", "19,373,586"},
		[]any{"Tuvalu", "63"},
	)
	ts, err := BuildTransformers([]TransformConfig{
		{Type: "parse_number", Config: map[string]any{"field": "GDP_USD_millions"}},
		{Type: "scale", Config: map[string]any{"field": "GDP_USD_millions", "factor": 0.001}},
		{Type: "rename", Config: map[string]any{"mapping": map[string]any{"GDP_USD_millions": "GDP_USD_billions"}}},
	})
	require.NoError(t, err)

	out, err := ApplyTransformers(in, ts)
	require.NoError(t, err)
	require.Equal(t, []string{"Country", "GDP_USD_billions"}, out.Columns())
	got, _ := out.Column("GDP_USD_billions")
	require.Equal(t, []any{26854.6, 19373.59, 0.06}, got)

	// The input frame is untouched.
	require.Equal(t, "26,854,599", in.Value(0, "GDP_USD_millions"))
}

func TestCurrencyTransform(t *testing.T) {
	in := frameOf(t, []string{"Name", "MC_USD_Billion"},
		[]any{"JPMorgan Chase", 432.92},
		[]any{"Test Bank", 100},
	)
	tr := &CurrencyTransform{
		Field:  "MC_USD_Billion",
		Rates:  RateTable{"EUR": 0.93, "GBP": 0.8, "INR": 82.95},
		Places: 2,
		Targets: []CurrencyTarget{
			{Currency: "GBP", Field: "MC_GBP_Billion"},
			{Currency: "eur", Field: "MC_EUR_Billion"},
			{Currency: "INR", Field: "MC_INR_Billion"},
		},
	}
	out, err := tr.Transform(in)
	require.NoError(t, err)
	require.Equal(t, []string{"Name", "MC_USD_Billion", "MC_GBP_Billion", "MC_EUR_Billion", "MC_INR_Billion"}, out.Columns())
	if diff := cmp.Diff([]any{"Test Bank", int64(100), 80.0, 93.0, 8295.0}, out.Row(1)); diff != "" {
		t.Fatalf("row (-want +got):\n%s", diff)
	}
	require.Equal(t, 346.34, out.Value(0, "MC_GBP_Billion"))

	tr.Targets = []CurrencyTarget{{Currency: "JPY", Field: "MC_JPY_Billion"}}
	_, err = tr.Transform(in)
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestCurrencyFromRatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange_rate.csv")
	require.NoError(t, os.WriteFile(path, []byte("Currency,Rate\nEUR,0.93\nGBP,0.8\nINR,82.95\n"), 0o644))

	ts, err := BuildTransformers([]TransformConfig{{
		Type: "currency",
		Config: map[string]any{
			"field":     "MC_USD_Billion",
			"ratesFile": path,
			"targets":   []any{map[string]any{"currency": "GBP", "field": "MC_GBP_Billion"}},
		},
	}})
	require.NoError(t, err)
	out, err := ApplyTransformers(frameOf(t, []string{"MC_USD_Billion"}, []any{100.0}), ts)
	require.NoError(t, err)
	require.Equal(t, 80.0, out.Value(0, "MC_GBP_Billion"))
}

func TestParseRateTable(t *testing.T) {
	rates, err := parseRateTable(strings.NewReader("Rate,Currency\n0.8,GBP\n"))
	require.NoError(t, err)
	require.Equal(t, RateTable{"GBP": 0.8}, rates)

	_, err = parseRateTable(strings.NewReader("Code,Value\nGBP,0.8\n"))
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)

	_, err = parseRateTable(strings.NewReader(""))
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)

	_, err = ReadRateTable(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestRoundAndTypeCast(t *testing.T) {
	in := frameOf(t, []string{"price", "year"},
		[]any{7089.552238805969, "2013"},
		[]any{nil, "2014"},
	)
	ts, err := BuildTransformers([]TransformConfig{
		{Type: "round", Config: map[string]any{"field": "price"}},
		{Type: "type_cast", Config: map[string]any{"field": "year", "castType": "integer"}},
	})
	require.NoError(t, err)
	out, err := ApplyTransformers(in, ts)
	require.NoError(t, err)
	require.Equal(t, []any{7089.55, int64(2013)}, out.Row(0))
	require.Nil(t, out.Value(1, "price"))

	str, err := (&TypeCastTransform{Field: "year", CastType: "string"}).Transform(out)
	require.NoError(t, err)
	require.Equal(t, "2014", str.Value(1, "year"))
}

func TestTypeCastIntegerRejectsFractions(t *testing.T) {
	cast := &TypeCastTransform{Field: "year", CastType: "integer"}

	for _, v := range []any{"1.5", 2013.25, "1e30"} {
		_, err := cast.Transform(frameOf(t, []string{"year"}, []any{v}))
		require.ErrorIs(t, err, domain.ErrParseFailure, "%v", v)
	}

	out, err := cast.Transform(frameOf(t, []string{"year"}, []any{"2,016.0"}, []any{int64(9007199254740993)}))
	require.NoError(t, err)
	require.Equal(t, int64(2016), out.Value(0, "year"))
	require.Equal(t, int64(9007199254740993), out.Value(1, "year"))
}

func TestParseInteger(t *testing.T) {
	n, err := ParseInteger(" 1,024 ")
	require.NoError(t, err)
	require.Equal(t, int64(1024), n)

	_, err = ParseInteger("1.5")
	require.ErrorIs(t, err, domain.ErrParseFailure)
	_, err = ParseInteger("n/a")
	require.ErrorIs(t, err, domain.ErrParseFailure)
}

func TestSelectAndDrop(t *testing.T) {
	in := frameOf(t, []string{"a", "b", "c"}, []any{1, 2, 3})

	sel, err := (&SelectTransform{Fields: []string{"c", "a"}}).Transform(in)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a"}, sel.Columns())

	drop, err := (&DropTransform{Fields: []string{"b"}}).Transform(in)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, drop.Columns())

	_, err = (&SelectTransform{Fields: []string{"z"}}).Transform(in)
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestTransformErrors(t *testing.T) {
	in := frameOf(t, []string{"v"}, []any{"abc"})

	_, err := (&RoundTransform{Field: "v", Places: 2}).Transform(in)
	require.ErrorIs(t, err, domain.ErrParseFailure)

	_, err = (&RoundTransform{Field: "missing", Places: 2}).Transform(in)
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)

	shrink := TransformerFunc(func(f *domain.Frame) (*domain.Frame, error) { return f.Head(0), nil })
	_, err = ApplyTransformers(in, []Transformer{shrink})
	require.ErrorContains(t, err, "changed row count")
}

func TestBuildTransformersRejectsBadConfig(t *testing.T) {
	for _, tc := range []TransformConfig{
		{Type: "uppercase"},
		{Type: "round"},
		{Type: "scale", Config: map[string]any{"field": "x"}},
		{Type: "type_cast", Config: map[string]any{"field": "x"}},
		{Type: "currency", Config: map[string]any{"field": "x"}},
		{Type: "currency", Config: map[string]any{"field": "x", "targets": []any{map[string]any{"currency": "GBP", "field": "y"}}}},
		{Type: "rename", Config: map[string]any{}},
		{Type: "select", Config: map[string]any{}},
	} {
		_, err := BuildTransformers([]TransformConfig{tc})
		require.Error(t, err, "%+v", tc)
	}
}
