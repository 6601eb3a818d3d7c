package secure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario3SecureHandshakeCryptogramsMatch(t *testing.T) {
	cipher := StdBlockCipher{}
	scbk := DefaultSCBKD

	cpRandom := [8]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	pdRandom := [8]byte{0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}

	cpEnc, cpMac1, cpMac2 := DeriveSessionKeys(cipher, scbk, cpRandom)
	pdEnc, pdMac1, pdMac2 := DeriveSessionKeys(cipher, scbk, cpRandom)
	assert.Equal(t, cpEnc, pdEnc)
	assert.Equal(t, cpMac1, pdMac1)
	assert.Equal(t, cpMac2, pdMac2)

	pdCryptogram := PDCryptogram(cipher, pdEnc, cpRandom, pdRandom)
	cpVerify := PDCryptogram(cipher, cpEnc, cpRandom, pdRandom)
	assert.Equal(t, pdCryptogram, cpVerify, "CP must be able to recompute the PD cryptogram")

	cpCryptogram := CPCryptogram(cipher, cpEnc, pdRandom, cpRandom)
	pdVerify := CPCryptogram(cipher, pdEnc, pdRandom, cpRandom)
	assert.Equal(t, cpCryptogram, pdVerify, "PD must be able to recompute the CP cryptogram")
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	cipher := StdBlockCipher{}
	var sEnc, mac1, mac2, prevMAC [16]byte
	for i := range sEnc {
		sEnc[i] = byte(i)
		mac1[i] = byte(i + 1)
		mac2[i] = byte(i + 2)
	}
	header := []byte{0xFF, 0x00, 0x10, 0x00, 0x0C}
	payload := []byte("hello osdp secure channel")

	ciphertext, tag, newMAC := WrapPayload(cipher, sEnc, mac1, mac2, prevMAC, header, payload)
	plaintext, unwrapMAC, err := UnwrapPayload(cipher, sEnc, mac1, mac2, prevMAC, header, ciphertext, tag)
	require.NoError(t, err)
	assert.Equal(t, payload, plaintext)
	assert.Equal(t, newMAC, unwrapMAC)
}

func TestUnwrapDetectsBitFlip(t *testing.T) {
	cipher := StdBlockCipher{}
	var sEnc, mac1, mac2, prevMAC [16]byte
	header := []byte{0xFF, 0x00, 0x10, 0x00, 0x0C}
	payload := []byte("sensitive")

	ciphertext, tag, _ := WrapPayload(cipher, sEnc, mac1, mac2, prevMAC, header, payload)
	ciphertext[0] ^= 0x01

	_, _, err := UnwrapPayload(cipher, sEnc, mac1, mac2, prevMAC, header, ciphertext, tag)
	assert.Error(t, err)
}

func TestMACAdvanceUsesMac2OnLastBlock(t *testing.T) {
	cipher := StdBlockCipher{}
	var mac1, mac2, prevState [16]byte
	mac2[0] = 0xFF // distinguish from mac1

	oneBlock := make([]byte, 16)
	stateOneBlock := MACAdvance(cipher, mac1, mac2, prevState, oneBlock)

	// Recomputing manually with mac1 only (wrong) must differ, proving the
	// last (and only, here) block really used mac2.
	wrongState := MACAdvance(cipher, mac1, mac1, prevState, oneBlock)
	assert.NotEqual(t, stateOneBlock, wrongState)
}
