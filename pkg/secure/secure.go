// Package secure implements the OSDP secure-channel cryptographic transform:
// session-key derivation, cryptograms, the R-MAC/C-MAC CBC-MAC chain, and
// payload wrap/unwrap. ECB and CBC composition live here, built in terms of
// the single-block BlockCipher primitive the application supplies — the
// package never calls into crypto/cipher's own CBC/ECB mode wrappers, only
// into the block primitive, so a caller can substitute a hardware AES engine
// without touching this logic.
package secure

import (
	"bytes"

	"github.com/osdp-go/osdp"
)

// BlockCipher is the external AES-128 primitive collaborator (§6).
type BlockCipher interface {
	EncryptBlock(key, in, out []byte)
	DecryptBlock(key, in, out []byte)
}

// RandomSource is the external cryptographic RNG collaborator (§6).
type RandomSource interface {
	Fill(buf []byte) error
}

// DefaultSCBKD is the publicly documented default Secure Channel Base Key
// used only during install-mode provisioning (§4.4).
var DefaultSCBKD = [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}

func encryptBlock(c BlockCipher, key, in [16]byte) [16]byte {
	var out [16]byte
	c.EncryptBlock(key[:], in[:], out[:])
	return out
}

func decryptBlock(c BlockCipher, key, in [16]byte) [16]byte {
	var out [16]byte
	c.DecryptBlock(key[:], in[:], out[:])
	return out
}

func xor16(a, b [16]byte) [16]byte {
	var out [16]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func invert(a [16]byte) [16]byte {
	var out [16]byte
	for i := range out {
		out[i] = ^a[i]
	}
	return out
}

// DeriveSessionKeys computes S-ENC, S-MAC1, S-MAC2 from the base key and the
// CP-generated random, per §4.4's three fixed key-derivation blocks.
func DeriveSessionKeys(c BlockCipher, scbk [16]byte, cpRandom [8]byte) (sEnc, sMac1, sMac2 [16]byte) {
	mk := func(b0, b1 byte) [16]byte {
		var in [16]byte
		in[0] = b0
		in[1] = b1
		copy(in[2:9], cpRandom[:7])
		return in
	}
	sEnc = encryptBlock(c, scbk, mk(0x01, 0x82))
	sMac1 = encryptBlock(c, scbk, mk(0x01, 0x01))
	sMac2 = encryptBlock(c, scbk, mk(0x01, 0x02))
	return
}

// PDCryptogram computes the value the PD sends and the CP verifies.
func PDCryptogram(c BlockCipher, sEnc [16]byte, cpRandom, pdRandom [8]byte) [16]byte {
	var in [16]byte
	copy(in[0:8], cpRandom[:])
	copy(in[8:16], pdRandom[:])
	return encryptBlock(c, sEnc, in)
}

// CPCryptogram computes the value the CP sends and the PD verifies.
func CPCryptogram(c BlockCipher, sEnc [16]byte, pdRandom, cpRandom [8]byte) [16]byte {
	var in [16]byte
	copy(in[0:8], pdRandom[:])
	copy(in[8:16], cpRandom[:])
	return encryptBlock(c, sEnc, in)
}

func padZeroBlocks(data []byte) []byte {
	if len(data) == 0 {
		return make([]byte, 16)
	}
	rem := len(data) % 16
	if rem == 0 {
		return data
	}
	out := make([]byte, len(data)+16-rem)
	copy(out, data)
	return out
}

// MACAdvance runs the CBC-MAC chain over data (zero-padded to a 16-byte
// multiple), keyed with mac1 for every block but the last, and mac2 for the
// last — the exact key switch §4.4 requires.
func MACAdvance(c BlockCipher, mac1, mac2, prevState [16]byte, data []byte) [16]byte {
	padded := padZeroBlocks(data)
	state := prevState
	n := len(padded) / 16
	for i := 0; i < n; i++ {
		var block [16]byte
		copy(block[:], padded[i*16:(i+1)*16])
		key := mac1
		if i == n-1 {
			key = mac2
		}
		state = encryptBlock(c, key, xor16(state, block))
	}
	return state
}

func cbcEncrypt(c BlockCipher, key, iv [16]byte, plaintext []byte) []byte {
	out := make([]byte, len(plaintext))
	prev := iv
	for off := 0; off < len(plaintext); off += 16 {
		var block [16]byte
		copy(block[:], plaintext[off:off+16])
		enc := encryptBlock(c, key, xor16(block, prev))
		copy(out[off:off+16], enc[:])
		prev = enc
	}
	return out
}

func cbcDecrypt(c BlockCipher, key, iv [16]byte, ciphertext []byte) []byte {
	out := make([]byte, len(ciphertext))
	prev := iv
	for off := 0; off < len(ciphertext); off += 16 {
		var block [16]byte
		copy(block[:], ciphertext[off:off+16])
		dec := decryptBlock(c, key, block)
		plain := xor16(dec, prev)
		copy(out[off:off+16], plain[:])
		prev = block
	}
	return out
}

func pad80Zero(data []byte) []byte {
	padded := append(append([]byte(nil), data...), 0x80)
	rem := len(padded) % 16
	if rem != 0 {
		padded = append(padded, make([]byte, 16-rem)...)
	}
	return padded
}

func strip80ZeroPad(data []byte) ([]byte, error) {
	for i := len(data) - 1; i >= 0; i-- {
		if data[i] == 0x80 {
			return data[:i], nil
		}
		if data[i] != 0x00 {
			break
		}
	}
	return nil, osdp.ErrMalformed
}

// WrapPayload implements §4.4's SCS_17/18 payload wrap: 0x80-then-zero pad,
// AES-CBC encrypt under sEnc with IV = inverted previous MAC state, then
// advance the MAC chain over header||ciphertext and return its first 4
// bytes as the wire tag.
func WrapPayload(c BlockCipher, sEnc, mac1, mac2, prevMAC [16]byte, header, payload []byte) (ciphertext []byte, tag [4]byte, newMAC [16]byte) {
	padded := pad80Zero(payload)
	iv := invert(prevMAC)
	ciphertext = cbcEncrypt(c, sEnc, iv, padded)

	macInput := make([]byte, 0, len(header)+len(ciphertext))
	macInput = append(macInput, header...)
	macInput = append(macInput, ciphertext...)
	newMAC = MACAdvance(c, mac1, mac2, prevMAC, macInput)
	copy(tag[:], newMAC[:4])
	return
}

// MACOnlyWrap computes the wire tag for a secure data frame that carries no
// encrypted payload (§4.4 SCS_15/16: bare opcode byte, nothing to protect
// beyond integrity) — the plaintext is sent unchanged with a 4-byte MAC
// appended, chained from prevMAC exactly like WrapPayload's MAC half.
func MACOnlyWrap(c BlockCipher, mac1, mac2, prevMAC [16]byte, header, payload []byte) (tag [4]byte, newMAC [16]byte) {
	macInput := make([]byte, 0, len(header)+len(payload))
	macInput = append(macInput, header...)
	macInput = append(macInput, payload...)
	newMAC = MACAdvance(c, mac1, mac2, prevMAC, macInput)
	copy(tag[:], newMAC[:4])
	return
}

// MACOnlyVerify recomputes the tag for a received MAC-only secure frame,
// reporting a mismatch as osdp.ErrSecureCondition without advancing the MAC
// chain, mirroring UnwrapPayload's fail-closed behavior.
func MACOnlyVerify(c BlockCipher, mac1, mac2, prevMAC [16]byte, header, payload []byte, tag [4]byte) (newMAC [16]byte, err error) {
	gotTag, mac := MACOnlyWrap(c, mac1, mac2, prevMAC, header, payload)
	if !bytes.Equal(gotTag[:], tag[:]) {
		return prevMAC, osdp.ErrSecureCondition
	}
	return mac, nil
}

// UnwrapPayload reverses WrapPayload: verifies the MAC first (over the
// received ciphertext, before ever decrypting it), then decrypts and strips
// padding. A MAC mismatch is reported as osdp.ErrSecureCondition and the
// previous MAC state is returned unchanged so the caller can tear the
// session down without corrupting the chain.
func UnwrapPayload(c BlockCipher, sEnc, mac1, mac2, prevMAC [16]byte, header, ciphertext []byte, tag [4]byte) (plaintext []byte, newMAC [16]byte, err error) {
	if len(ciphertext)%16 != 0 {
		return nil, prevMAC, osdp.ErrMalformed
	}
	macInput := make([]byte, 0, len(header)+len(ciphertext))
	macInput = append(macInput, header...)
	macInput = append(macInput, ciphertext...)
	computed := MACAdvance(c, mac1, mac2, prevMAC, macInput)
	if !bytes.Equal(computed[:4], tag[:]) {
		return nil, prevMAC, osdp.ErrSecureCondition
	}

	iv := invert(prevMAC)
	padded := cbcDecrypt(c, sEnc, iv, ciphertext)
	plaintext, err = strip80ZeroPad(padded)
	if err != nil {
		return nil, computed, err
	}
	return plaintext, computed, nil
}
