package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	n := NewNormalizer(nil, 2024)

	t.Run("income", func(t *testing.T) {
		rec, ok := n.Normalize(RawRow{"01/01/2024", "Receita", "Venda", "1000,00"}, 0)
		require.True(t, ok)
		assert.Equal(t, FinancialRecord{Period: "2024-01", Income: 1000, Category: "Receita"}, rec)
	})

	t.Run("expense", func(t *testing.T) {
		rec, ok := n.Normalize(RawRow{"01/01/2024", "Despesa", "Aluguel", "400,00"}, 1)
		require.True(t, ok)
		assert.Equal(t, FinancialRecord{Period: "2024-01", Expense: 400, Category: "Despesa"}, rec)
	})

	t.Run("keyword match ignores case", func(t *testing.T) {
		rec, ok := n.Normalize(RawRow{"2024-03", "Other INCOME", "", "10"}, 0)
		require.True(t, ok)
		assert.Equal(t, 10.0, rec.Income)
		assert.Zero(t, rec.Expense)
	})

	t.Run("unparseable amount dropped", func(t *testing.T) {
		_, ok := n.Normalize(RawRow{"01/01/2024", "Despesa", "x", "abc"}, 0)
		assert.False(t, ok)
	})

	t.Run("short row", func(t *testing.T) {
		_, ok := n.Normalize(RawRow{"01/01/2024"}, 0)
		assert.False(t, ok)
	})

	t.Run("missing category and date", func(t *testing.T) {
		rec, ok := n.Normalize(RawRow{"", nil, "", 12.5}, 5)
		require.True(t, ok)
		assert.Equal(t, DefaultCategory, rec.Category)
		assert.Equal(t, "2024-06", rec.Period)
		assert.Equal(t, 12.5, rec.Expense)
	})

	t.Run("large numeric cells", func(t *testing.T) {
		for _, tc := range []struct {
			cell any
			want float64
		}{
			{1000000.0, 1000000},
			{1234567.0, 1234567},
			{2500000.5, 2500000.5},
			{float32(3000000), 3000000},
			{int64(1500000), 1500000},
		} {
			rec, ok := n.Normalize(RawRow{"01/01/2024", "Despesa", "x", tc.cell}, 0)
			require.True(t, ok, "%v", tc.cell)
			assert.Equal(t, tc.want, rec.Expense, "%v", tc.cell)
		}
	})
}

func TestCellTextAvoidsExponent(t *testing.T) {
	assert.Equal(t, "1000000", CellText(1e6))
	assert.Equal(t, "1234567.25", CellText(1234567.25))
	assert.Equal(t, "0.5", CellText(float32(0.5)))
}

func TestNormalizeExactlyOneSide(t *testing.T) {
	n := NewNormalizer(NewKeywordClassifier("salario"), 2024)
	rows := []RawRow{
		{"01/02/2024", "Salario", "", "3000"},
		{"01/02/2024", "Mercado", "", "-120,40"},
		{"01/02/2024", "Mercado", "", "0"},
		{"", "", "", "9"},
	}
	for i, row := range rows {
		rec, ok := n.Normalize(row, i)
		if !ok {
			continue
		}
		assert.True(t, (rec.Income == 0) != (rec.Expense == 0), "row %d: %+v", i, rec)
		assert.GreaterOrEqual(t, rec.Income, 0.0)
		assert.GreaterOrEqual(t, rec.Expense, 0.0)
	}
}

func TestNormalizeValues(t *testing.T) {
	n := NewNormalizer(nil, 2024)

	t.Run("header only", func(t *testing.T) {
		_, err := n.NormalizeValues("s1", [][]any{{"Data", "Categoria", "Descricao", "Valor"}})
		var mErr *MalformedInputError
		require.ErrorAs(t, err, &mErr)
		assert.Equal(t, "s1", mErr.SourceID)
		assert.True(t, errors.Is(err, ErrNoData))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := n.NormalizeValues("s1", nil)
		assert.ErrorIs(t, err, ErrNoData)
	})

	t.Run("rows tagged and dropped", func(t *testing.T) {
		values := [][]any{
			{"Data", "Categoria", "Descricao", "Valor"},
			{"01/01/2024", "Receita", "Venda", "1000,00"},
			{"01/01/2024", "Despesa", "?", "abc"},
			{"", "Despesa", "Aluguel", "400"},
		}
		recs, err := n.NormalizeValues("s1", values)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "s1", recs[0].SourceID)
		assert.Equal(t, "s1", recs[1].SourceID)
		// data row index 2 with no date falls back to March.
		assert.Equal(t, "2024-03", recs[1].Period)
	})
}

func TestRowsFromPayload(t *testing.T) {
	var payload any
	require.NoError(t, json.Unmarshal([]byte(`[["h"],["01/01/2024","Receita","x",10]]`), &payload))
	rows, err := RowsFromPayload(payload)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, "10", CellText(rows[1][3]))

	_, err = RowsFromPayload(map[string]any{"values": 1})
	var mErr *MalformedInputError
	assert.ErrorAs(t, err, &mErr)

	_, err = RowsFromPayload([]any{[]any{"a"}, "b"})
	assert.ErrorAs(t, err, &mErr)
}
