package frame

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Layout(t *testing.T) {
	f := New(
		MotorState{Enabled: true, Angle: 1.0},
		MotorState{Enabled: false, Angle: -2.5},
	)
	got := Encode(f)

	want := []byte{
		0x01, 0x00, 0x00, 0x80, 0x3f, // true, 1.0
		0x00, 0x00, 0x00, 0x20, 0xc0, // false, -2.5
		0x00, 0x00, 0x00, 0x00, 0x00, // padding
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Encode mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_AlwaysFifteenBytes(t *testing.T) {
	frames := []StateFrame{
		{},
		New(MotorState{Enabled: true, Angle: float32(math.Inf(1))}),
		New(MotorState{true, math.MaxFloat32}, MotorState{true, math.SmallestNonzeroFloat32}, MotorState{true, float32(math.NaN())}),
	}
	for _, f := range frames {
		assert.Len(t, Encode(f), Size)
	}
	assert.Equal(t, 15, Size)
}

func TestRoundTrip_BitExact(t *testing.T) {
	nan := math.Float32frombits(0x7fc00123)
	frames := []StateFrame{
		{},
		New(MotorState{true, 0.5235988}, MotorState{false, 5.759587}, MotorState{true, 6.2831}),
		New(MotorState{true, nan}, MotorState{false, float32(math.Copysign(0, -1))}),
	}
	for _, f := range frames {
		got, err := Decode(Encode(f))
		require.NoError(t, err)
		assert.True(t, f.Equal(got), "round trip changed %+v into %+v", f, got)
		for i := range f.Motors {
			assert.Equal(t, math.Float32bits(f.Motors[i].Angle), math.Float32bits(got.Motors[i].Angle))
		}
	}
}

func TestDecode_WrongLength(t *testing.T) {
	for _, n := range []int{0, 14, 16, 24} {
		_, err := Decode(make([]byte, n))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFrameFormat))

		var fe *FormatError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, n, fe.Length)
	}
}

func TestDecode_NonzeroBoolByteIsTrue(t *testing.T) {
	b := Encode(StateFrame{})
	b[5] = 2
	b[10] = 0xff
	f, err := Decode(b)
	require.NoError(t, err)
	assert.False(t, f.Motors[0].Enabled)
	assert.True(t, f.Motors[1].Enabled)
	assert.True(t, f.Motors[2].Enabled)
}

func TestNew_Padding(t *testing.T) {
	f := New(MotorState{Enabled: true, Angle: 3})
	assert.Equal(t, MotorState{}, f.Motors[1])
	assert.Equal(t, MotorState{}, f.Motors[2])
}

func TestEqual(t *testing.T) {
	a := New(MotorState{true, 1})
	assert.True(t, a.Equal(New(MotorState{true, 1})))
	assert.False(t, a.Equal(New(MotorState{false, 1})))
	assert.False(t, a.Equal(New(MotorState{true, 1.0001})))
}
