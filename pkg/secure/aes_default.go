package secure

import (
	"crypto/aes"
	"crypto/rand"
)

// StdBlockCipher is the default BlockCipher backed by the standard library's
// AES implementation. It exists purely as the reference/test implementation
// of the external Crypto collaborator (§6) — the teacher's own pkg/can/virtual
// supplies a default Bus over net.Conn the same way, as a concrete stand-in
// for an interface the core treats as pluggable. A deployment with a hardware
// AES engine would supply its own BlockCipher instead.
type StdBlockCipher struct{}

func (StdBlockCipher) EncryptBlock(key, in, out []byte) {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err) // key length is a programmer error, not a runtime condition
	}
	block.Encrypt(out, in)
}

func (StdBlockCipher) DecryptBlock(key, in, out []byte) {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	block.Decrypt(out, in)
}

// StdRandomSource is the default RandomSource backed by crypto/rand.
type StdRandomSource struct{}

func (StdRandomSource) Fill(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}
