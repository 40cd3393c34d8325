package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eygilbert/egdb"
)

func TestParsePosition(t *testing.T) {
	pos, turn, err := parsePosition("B:B6,19,23:WK32,1")
	require.NoError(t, err)
	assert.Equal(t, egdb.Black, turn)

	expectBlack := uint64(1)<<squareToBit(6) | uint64(1)<<squareToBit(19) | uint64(1)<<squareToBit(23)
	expectWhite := uint64(1)<<squareToBit(32) | uint64(1)<<squareToBit(1)
	expectKing := uint64(1) << squareToBit(32)
	assert.Equal(t, expectBlack, pos.Black)
	assert.Equal(t, expectWhite, pos.White)
	assert.Equal(t, expectKing, pos.King)
}

func TestParsePositionRejectsBadTurn(t *testing.T) {
	_, _, err := parsePosition("X:B1:W2")
	assert.Error(t, err)
}

func TestParsePositionRejectsWrongFieldCount(t *testing.T) {
	_, _, err := parsePosition("B:B1")
	assert.Error(t, err)
}

func TestParsePositionRejectsOutOfRangeSquare(t *testing.T) {
	_, _, err := parsePosition("B:B51:W2")
	assert.Error(t, err)
}

func TestParsePositionRejectsBadSideMarker(t *testing.T) {
	_, _, err := parsePosition("B:Z1:W2")
	assert.Error(t, err)
}

func TestSquareToBitStaysWithin64Bits(t *testing.T) {
	for sq := 1; sq <= 50; sq++ {
		assert.Less(t, squareToBit(sq), uint(64))
	}
}

func TestMirrorBoardIsInvolution(t *testing.T) {
	for sq := 1; sq <= 50; sq++ {
		bit := squareToBit(sq)
		board := uint64(1) << bit
		assert.Equal(t, board, mirrorBoard(mirrorBoard(board)))
	}
}

func TestMirrorBoardMovesOffTheCenterForEverySquare(t *testing.T) {
	for sq := 1; sq <= 50; sq++ {
		bit := squareToBit(sq)
		board := uint64(1) << bit
		assert.NotEqual(t, board, mirrorBoard(board), "square %d mirrors to itself", sq)
	}
}
