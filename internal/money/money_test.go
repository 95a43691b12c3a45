package money

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Amount
		wantErr bool
	}{
		{name: "whole", input: "150", want: 15000},
		{name: "one_decimal", input: "150.5", want: 15050},
		{name: "two_decimals", input: "0.25", want: 25},
		{name: "spaces", input: " 12.00 ", want: 1200},
		{name: "three_decimals", input: "1.234", wantErr: true},
		{name: "garbage", input: "abc", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrInvalidAmount))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAmountJSON(t *testing.T) {
	type payload struct {
		Amount Amount `json:"amount"`
	}

	b, err := json.Marshal(payload{Amount: 15050})
	require.NoError(t, err)
	require.JSONEq(t, `{"amount":150.50}`, string(b))

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"amount":250}`), &p))
	require.Equal(t, Amount(25000), p.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount":"99.99"}`), &p))
	require.Equal(t, Amount(9999), p.Amount)

	require.Error(t, json.Unmarshal([]byte(`{"amount":1.001}`), &p))
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("100-200")
	require.NoError(t, err)
	require.Equal(t, Range{Low: 10000, High: 20000}, r)
	require.True(t, r.Contains(15000))
	require.False(t, r.Contains(20001))

	r, err = ParseRange("300")
	require.NoError(t, err)
	require.Equal(t, Range{Low: 0, High: 30000}, r)

	_, err = ParseRange("200-100")
	require.Error(t, err)

	_, err = ParseRange("")
	require.Error(t, err)
}

func TestString(t *testing.T) {
	require.Equal(t, "150.00", FromMajor(150).String())
	require.Equal(t, "0.05", Amount(5).String())
}
