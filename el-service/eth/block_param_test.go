package eth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockParamJSON(t *testing.T) {
	cases := []struct {
		in  string
		out BlockParam
	}{
		{`"latest"`, LatestBlock()},
		{`"pending"`, BlockParam{Tag: Pending}},
		{`"earliest"`, BlockParam{Tag: Earliest}},
		{`"finalized"`, BlockParam{Tag: Finalized}},
		{`"safe"`, BlockParam{Tag: Safe}},
		{`"0x64"`, NumberBlock(100)},
		{`"0X64"`, NumberBlock(100)},
		{`"100"`, NumberBlock(100)},
		{`100`, NumberBlock(100)},
		{`"0x0"`, NumberBlock(0)},
	}
	for _, c := range cases {
		var p BlockParam
		require.NoError(t, json.Unmarshal([]byte(c.in), &p), c.in)
		require.Equal(t, c.out, p, c.in)
	}

	for _, bad := range []string{`""`, `"0x"`, `"0xzz"`, `"-1"`, `"newest"`, `true`, `-5`, `"0x01"`} {
		var p BlockParam
		err := json.Unmarshal([]byte(bad), &p)
		require.ErrorIs(t, err, ErrInvalidBlockParam, bad)
	}
}

func TestBlockParamString(t *testing.T) {
	require.Equal(t, "0x64", NumberBlock(100).String())
	require.Equal(t, "latest", LatestBlock().String())
	require.True(t, NumberBlock(0).IsNumber())
	require.False(t, LatestBlock().IsNumber())
	require.True(t, LatestBlock().IsLatest())

	out, err := json.Marshal(NumberBlock(255))
	require.NoError(t, err)
	require.Equal(t, `"0xff"`, string(out))
}
