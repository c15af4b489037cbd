package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

func TestBuild_Empty(t *testing.T) {
	expr, err := Build(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, expr)

	expr, err = Build([]string{"", "  "}, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, expr)
}

func TestBuild_TagsRenderAsContains(t *testing.T) {
	// When
	expr, err := Build([]string{"#backtest", "qubx"}, nil)

	// Then
	require.NoError(t, err)
	assert.Equal(t, `tags_str like "%#backtest%" and tags_str like "%#qubx%"`, expr.String())
}

func TestBuild_MetadataRendering(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]any
		want string
	}{
		{"raw greater", map[string]any{"sharpe": "> 1.5"}, `sharpe > 1.5`},
		{"raw ge no space", map[string]any{"cagr": ">=0.1"}, `cagr >= 0.1`},
		{"raw ne string", map[string]any{"strategy": "!= momentum"}, `strategy != "momentum"`},
		{"equality string", map[string]any{"strategy": "momentum"}, `strategy == "momentum"`},
		{"equality number", map[string]any{"sharpe": 2.0}, `sharpe == 2`},
		{"type alias", map[string]any{"type": "research"}, `type_field == "research"`},
		{"numeric string", map[string]any{"drawdown": "0.2"}, `drawdown == 0.2`},
		{"sorted keys", map[string]any{"strategy": "a", "cagr": "< 1"}, `cagr < 1 and strategy == "a"`},
		{"expression key", map[string]any{"sharpe > 1.5": nil}, `sharpe > 1.5`},
		{"expression key no spaces", map[string]any{"drawdown<=0.3": nil}, `drawdown <= 0.3`},
		{"expression key alias", map[string]any{"type != idea": nil}, `type_field != "idea"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Build(nil, tt.meta)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr.String())
		})
	}
}

func TestBuild_Malformed(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		meta map[string]any
	}{
		{"unknown field", nil, map[string]any{"venue": "binance"}},
		{"bad number", nil, map[string]any{"sharpe": "> high"}},
		{"missing literal", nil, map[string]any{"sharpe": ">="}},
		{"string for numeric", nil, map[string]any{"cagr": `"0.1"`}},
		{"unsupported type", nil, map[string]any{"strategy": []string{"a"}}},
		{"nil without operator", nil, map[string]any{"sharpe": nil}},
		{"expression without field", nil, map[string]any{"> 1.5": nil}},
		{"quote in tag", []string{`#a"b`}, nil},
		{"space in tag", []string{"#a b"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Build(tt.tags, tt.meta)
			assert.Nil(t, expr)
			assert.ErrorIs(t, err, kberrors.ErrMalformedFilter)
		})
	}
}

func TestBuild_SQL(t *testing.T) {
	// Given
	expr, err := Build([]string{"#idea"}, map[string]any{"sharpe": ">= 1", "type": "note"})
	require.NoError(t, err)

	// When
	clause, args := expr.SQL()

	// Then
	assert.Equal(t, `(instr(tags_str, ?) > 0) AND (sharpe >= ?) AND (type_field = ?)`, clause)
	assert.Equal(t, []any{`"#idea"`, 1.0, "note"}, args)
}

func TestMatch(t *testing.T) {
	sharpe := 2.0
	rec := map[string]any{
		"tags_str":   `["#backtest","#idea"]`,
		"type_field": "research",
		"sharpe":     &sharpe,
		"cagr":       nil,
	}

	tests := []struct {
		name string
		tags []string
		meta map[string]any
		want bool
	}{
		{"tag present", []string{"#idea"}, nil, true},
		{"tag substring matches", []string{"#back"}, nil, true},
		{"tag absent", []string{"#qubx"}, nil, false},
		{"all tags required", []string{"#idea", "#qubx"}, nil, false},
		{"numeric compare", nil, map[string]any{"sharpe": "> 1.5"}, true},
		{"numeric compare false", nil, map[string]any{"sharpe": "< 1.5"}, false},
		{"absent numeric never matches", nil, map[string]any{"cagr": "!= 1"}, false},
		{"string equality", nil, map[string]any{"type": "research"}, true},
		{"combined", []string{"#backtest"}, map[string]any{"type": "research", "sharpe": 2.0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Build(tt.tags, tt.meta)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr.Match(rec))
		})
	}
}
