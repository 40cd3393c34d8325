package runlen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUncompressedPackBoundary(t *testing.T) {
	require.Equal(t, uint8(4), Base[0].Increment)
	require.Equal(t, uint8(4), Base[BaseUncompressedLimit-1].Increment)
	require.NotEqual(t, uint8(4), Base[BaseUncompressedLimit].Increment)

	require.Equal(t, uint8(2), Partials[0].Increment)
	require.Equal(t, uint8(2), Partials[PartialsUncompressedLimit-1].Increment)
}

func TestIsCompressed(t *testing.T) {
	assert.False(t, IsCompressed(false, 0))
	assert.False(t, IsCompressed(false, BaseUncompressedLimit-1))
	assert.True(t, IsCompressed(false, BaseUncompressedLimit))
	assert.True(t, IsCompressed(false, 255))

	assert.False(t, IsCompressed(true, PartialsUncompressedLimit-1))
	assert.True(t, IsCompressed(true, PartialsUncompressedLimit))
}

func TestDecodePackBase(t *testing.T) {
	// byte = s0 + 3*s1 + 9*s2 + 27*s3, s_i in {0,1,2} -> {WIN,LOSS,DRAW}
	var b byte = 0 + 3*1 + 9*2 + 27*0 // s0=0(WIN) s1=1(LOSS) s2=2(DRAW) s3=0(WIN)
	assert.Equal(t, Win, DecodePack(false, b, 0))
	assert.Equal(t, Loss, DecodePack(false, b, 1))
	assert.Equal(t, Draw, DecodePack(false, b, 2))
	assert.Equal(t, Win, DecodePack(false, b, 3))
}

func TestDecodePackPartials(t *testing.T) {
	var b byte = 4 + 6*5 // s0=4(DrawOrLoss) s1=5(WinOrDraw)
	assert.Equal(t, DrawOrLoss, DecodePack(true, b, 0))
	assert.Equal(t, WinOrDraw, DecodePack(true, b, 1))
}

func TestLoadCompressedRunTableOverride(t *testing.T) {
	defer BuildDefaultTables()

	LoadCompressedRunTable(false, map[byte]Entry{
		200: {Increment: 50, Value: Draw},
		10:  {Increment: 99}, // below limit, ignored
	})
	require.Equal(t, Entry{Increment: 50, Value: Draw}, Base[200])
	require.Equal(t, uint8(4), Base[10].Increment)
}
