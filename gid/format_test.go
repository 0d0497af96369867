package gid

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGID_String(t *testing.T) {
	g := New(0x0000000200000028, 0x1f)
	assert.Equal(t, "{0000000200000028, 000000000000001f}", g.String())
	assert.Equal(t, "0000000200000028000000000000001f", g.Hex())
	assert.Equal(t, "{invalid}", Invalid.String())
}

func TestParse(t *testing.T) {
	g := Make(4, 17, 0xdeadbeef).WithLog2Credit(9).MarkSplit()

	for _, s := range []string{g.String(), g.Hex(), "0x" + g.Hex(), "  " + g.String() + "\n"} {
		got, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, g, got)
	}

	got, err := Parse("{invalid}")
	require.NoError(t, err)
	assert.Equal(t, Invalid, got)

	for _, bad := range []string{"", "{12}", "{zz, 00}", "abc", g.Hex() + "0"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrMalformed, bad)
	}

	assert.Panics(t, func() { MustParse("nope") })
}

func TestBinary_RoundTripClearsLock(t *testing.T) {
	values := []GID{
		Make(0, 1, 0),
		Make(12, 300, 1<<63).WithLog2Credit(MaxLog2Credit),
		Make(1, 2, 3).WithLog2Credit(0).MarkSplit().WithDontCache(true),
		{Msb: ^uint64(0), Lsb: ^uint64(0)},
	}

	for _, g := range values {
		locked := GID{Msb: g.Msb | LockMask, Lsb: g.Lsb}
		b, err := locked.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, b, Size)

		var got GID
		require.NoError(t, got.UnmarshalBinary(b))

		assert.False(t, got.IsLocked())
		if diff := cmp.Diff(g.WithoutLock().Describe(), got.Describe()); diff != "" {
			t.Errorf("fields mismatch (-want +got):\n%s", diff)
		}
	}

	_, err := Decode(make([]byte, Size-1))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestGID_JSON(t *testing.T) {
	g := Make(2, 3, 4).WithLog2Credit(6)

	b, err := json.Marshal(map[string]GID{"id": g})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+g.Hex()+`"}`, string(b))

	var out map[string]GID
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, g, out["id"])
}

func TestGID_Describe(t *testing.T) {
	f := Make(5, 33, 1).WithLog2Credit(3).MarkSplit().Describe()
	assert.Equal(t, Fields{
		GID:           Make(5, 33, 1).WithLog2Credit(3).MarkSplit().String(),
		Locality:      5,
		ComponentType: 33,
		Credit:        8,
		Log2Credit:    3,
		HasCredits:    true,
		WasSplit:      true,
	}, f)

	assert.Equal(t, int64(-1), GID{Lsb: 1}.Describe().Locality)
}
