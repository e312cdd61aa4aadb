package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Amount
		wantErr error
	}{
		{name: "whole number", input: "5", want: 5_000_000},
		{name: "one decimal", input: "5.0", want: 5_000_000},
		{name: "smallest unit", input: "0.000001", want: 1},
		{name: "leading dot", input: ".5", want: 500_000},
		{name: "dollar prefix", input: "$1.25", want: 1_250_000},
		{name: "trailing zeros beyond precision", input: "1.1000000", want: 1_100_000},
		{name: "negative", input: "-1", wantErr: ErrNegativeAmount},
		{name: "too precise", input: "0.0000001", wantErr: ErrTooPrecise},
		{name: "empty", input: "", wantErr: ErrInvalidAmount},
		{name: "garbage", input: "abc", wantErr: ErrInvalidAmount},
		{name: "signed fraction", input: "1.-5", wantErr: ErrInvalidAmount},
		{name: "plus in fraction", input: "1.+5", wantErr: ErrInvalidAmount},
		{name: "sign after plus", input: "+-5", wantErr: ErrInvalidAmount},
		{name: "space in fraction", input: "1. 5", wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmount_String(t *testing.T) {
	assert.Equal(t, "5.000000", FromUnits(5).String())
	assert.Equal(t, "0.010000", MustParse("0.01").String())
	assert.Equal(t, "-0.500000", Amount(-500_000).String())
}

func TestAmount_ToUnits(t *testing.T) {
	a := MustParse("10.000000")

	assert.Equal(t, uint64(10_000_000), a.ToUnits(6))
	assert.Equal(t, uint64(10_000_000_000), a.ToUnits(9))
	assert.Equal(t, uint64(1000), a.ToUnits(2))
	assert.Equal(t, uint64(0), Amount(-1).ToUnits(6))
	assert.Equal(t, uint64(1), MustParse("0.005").ToUnits(2), "rounds half up")
}

func TestAmount_JSON(t *testing.T) {
	var body struct {
		Price Amount `json:"price"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"price": 5.5}`), &body))
	assert.Equal(t, MustParse("5.5"), body.Price)

	require.NoError(t, json.Unmarshal([]byte(`{"price": "0.25"}`), &body))
	assert.Equal(t, MustParse("0.25"), body.Price)

	require.NoError(t, json.Unmarshal([]byte(`{"price": 1e1}`), &body))
	assert.Equal(t, FromUnits(10), body.Price)

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"price": 10.0}`, string(out))
}
