package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockDeterministic(t *testing.T) {
	c1 := New()
	c1.Block([]byte{0xFF, 0x00, 0x08, 0x00, 0x00, 0x60})

	c2 := New()
	c2.Block([]byte{0xFF, 0x00, 0x08, 0x00, 0x00, 0x60})

	assert.EqualValues(t, c1, c2)
}

func TestBlockDetectsSingleBitFlip(t *testing.T) {
	data := []byte{0xFF, 0x00, 0x08, 0x00, 0x00, 0x60, 0x01, 0x02}
	c1 := New()
	c1.Block(data)

	flipped := append([]byte(nil), data...)
	flipped[3] ^= 0x01
	c2 := New()
	c2.Block(flipped)

	assert.NotEqual(t, c1, c2)
}

func TestSingleMatchesBlock(t *testing.T) {
	data := []byte{0x10, 0x20, 0x30, 0x40}

	block := New()
	block.Block(data)

	single := New()
	for _, b := range data {
		single.Single(b)
	}

	assert.EqualValues(t, block, single)
}

func TestChecksum8Complement(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	chk := Checksum8(data)

	var sum byte
	for _, b := range data {
		sum += b
	}
	sum += chk
	assert.EqualValues(t, 0, sum)
}
