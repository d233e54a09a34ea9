package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", a.String())

	_, err = ParseAmount("-5")
	assert.ErrorContains(t, err, "negative")

	_, err = ParseAmount("1.5")
	assert.ErrorContains(t, err, "invalid")
}

func TestAmount_Equals(t *testing.T) {
	assert.True(t, NewAmount(7).Equals(NewAmount(7)))
	assert.False(t, NewAmount(7).Equals(NewAmount(8)))
	assert.True(t, Amount{}.Equals(Amount{}))
	assert.False(t, Amount{}.Equals(ZeroAmount()))
	assert.Equal(t, "0", Amount{}.String())
}

func TestAmount_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Funds Amount `json:"funds"`
	}{NewAmount(1000)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"funds":"1000"}`, string(data))

	var out struct {
		Funds Amount `json:"funds"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"funds":"42"}`), &out))
	assert.True(t, out.Funds.Equals(NewAmount(42)))

	assert.Error(t, json.Unmarshal([]byte(`{"funds":"-1"}`), &out))
}

func TestAmount_Scan(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want string
	}{
		{"string", "250", "250"},
		{"bytes", []byte("17"), "17"},
		{"int64", int64(9), "9"},
		{"nil", nil, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Amount
			require.NoError(t, a.Scan(tt.src))
			assert.Equal(t, tt.want, a.String())
		})
	}

	var a Amount
	assert.Error(t, a.Scan(3.5))

	v, err := NewAmount(12).Value()
	require.NoError(t, err)
	assert.Equal(t, "12", v)
}
