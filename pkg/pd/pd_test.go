package pd

import (
	"testing"

	"github.com/osdp-go/osdp"
	"github.com/osdp-go/osdp/pkg/catalog"
	"github.com/osdp-go/osdp/pkg/packet"
	"github.com/osdp-go/osdp/pkg/secure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel is an in-memory, single-PD loopback transport: the test
// writes CP bytes into inbox and drains whatever the PD sends into outbox.
type fakeChannel struct {
	inbox  []byte
	outbox []byte
}

func (c *fakeChannel) ID() int { return 1 }

func (c *fakeChannel) Recv(buf []byte) (int, error) {
	n := copy(buf, c.inbox)
	c.inbox = c.inbox[n:]
	return n, nil
}

func (c *fakeChannel) Send(buf []byte) (int, error) {
	c.outbox = append(c.outbox, buf...)
	return len(buf), nil
}

func (c *fakeChannel) Flush() error { return nil }

func newTestPD(t *testing.T, opts Options) (*PD, *fakeChannel) {
	t.Helper()
	ch := &fakeChannel{}
	if opts.Cipher == nil {
		opts.Cipher = secure.StdBlockCipher{}
	}
	if opts.RNG == nil {
		opts.RNG = secure.StdRandomSource{}
	}
	p, err := Setup(ch, opts)
	require.NoError(t, err)
	return p, ch
}

func sendAndDrain(t *testing.T, p *PD, ch *fakeChannel, frame *packet.Frame) *packet.Frame {
	t.Helper()
	raw, err := packet.Build(frame, 0)
	require.NoError(t, err)
	ch.inbox = append(ch.inbox, raw...)

	require.NoError(t, p.Refresh())

	require.NotEmpty(t, ch.outbox)
	res, reply, n := packet.Parse(ch.outbox, frame.Address)
	require.Equal(t, packet.ResultComplete, res)
	ch.outbox = ch.outbox[n:]
	return reply
}

func TestScenario1PollGetsAck(t *testing.T) {
	p, ch := newTestPD(t, Options{Address: 0})
	reply := sendAndDrain(t, p, ch, &packet.Frame{Address: 0, Sequence: 0, UseCRC: true, Payload: []byte{0x60}})

	assert.Equal(t, uint8(0x40), reply.Payload[0])
}

func TestScenario2IDExchangeReturnsConfiguredIdentity(t *testing.T) {
	p, ch := newTestPD(t, Options{
		Address:   0,
		VendorOUI: [3]byte{0xA1, 0xB2, 0xC3},
		Model:     0x01,
		Version:   0x02,
		Serial:    [4]byte{0x78, 0x56, 0x34, 0x12},
		Firmware:  [3]byte{0x03, 0x02, 0x01},
	})
	sendAndDrain(t, p, ch, &packet.Frame{Address: 0, Sequence: 0, UseCRC: true, Payload: []byte{0x60}})
	reply := sendAndDrain(t, p, ch, &packet.Frame{Address: 0, Sequence: 1, UseCRC: true, Payload: []byte{0x61, 0x00}})

	require.Equal(t, uint8(catalog.ReplyPDID), reply.Payload[0])
	pdid, err := catalog.DecodePDID(reply.Payload[1:])
	require.NoError(t, err)
	assert.Equal(t, [3]byte{0xA1, 0xB2, 0xC3}, pdid.VendorOUI)
	assert.Equal(t, [4]byte{0x78, 0x56, 0x34, 0x12}, pdid.Serial)
}

func TestKeysetRejectedWithoutSecureChannel(t *testing.T) {
	p, ch := newTestPD(t, Options{Address: 0})
	sendAndDrain(t, p, ch, &packet.Frame{Address: 0, Sequence: 0, UseCRC: true, Payload: []byte{0x60}})

	key := make([]byte, 16)
	payload := append([]byte{0x75, 0x00, 16}, key...)
	reply := sendAndDrain(t, p, ch, &packet.Frame{Address: 0, Sequence: 1, UseCRC: true, Payload: payload})

	require.Equal(t, uint8(catalog.ReplyNak), reply.Payload[0])
	nak, err := catalog.DecodeNak(reply.Payload[1:])
	require.NoError(t, err)
	assert.Equal(t, osdp.NakScCond, nak.Code)
}

func TestSequenceMismatchIsNakked(t *testing.T) {
	p, ch := newTestPD(t, Options{Address: 0})
	sendAndDrain(t, p, ch, &packet.Frame{Address: 0, Sequence: 0, UseCRC: true, Payload: []byte{0x60}})

	// PD now expects sequence 1; send 2 instead.
	reply := sendAndDrain(t, p, ch, &packet.Frame{Address: 0, Sequence: 2, UseCRC: true, Payload: []byte{0x60}})
	require.Equal(t, uint8(catalog.ReplyNak), reply.Payload[0])
	nak, err := catalog.DecodeNak(reply.Payload[1:])
	require.NoError(t, err)
	assert.Equal(t, osdp.NakSeqNum, nak.Code)
}

func TestSecureHandshakeActivatesChannel(t *testing.T) {
	p, ch := newTestPD(t, Options{Address: 0})
	sendAndDrain(t, p, ch, &packet.Frame{Address: 0, Sequence: 0, UseCRC: true, Payload: []byte{0x60}})

	cpRandom := [8]byte{0, 1, 2, 3, 4, 5, 6, 7}
	chlngPayload := append([]byte{0x76}, cpRandom[:]...)
	reply := sendAndDrain(t, p, ch, &packet.Frame{Address: 0, Sequence: 1, UseCRC: true, Payload: chlngPayload})
	require.Equal(t, uint8(catalog.ReplyCCrypt), reply.Payload[0])
	ccrypt, err := catalog.DecodeCCrypt(reply.Payload[1:])
	require.NoError(t, err)

	cipher := secure.StdBlockCipher{}
	sEnc, _, _ := secure.DeriveSessionKeys(cipher, secure.DefaultSCBKD, cpRandom)
	wantPDCryptogram := secure.PDCryptogram(cipher, sEnc, cpRandom, ccrypt.PDRandom)
	assert.Equal(t, wantPDCryptogram, ccrypt.PDCryptogram)

	cpCryptogram := secure.CPCryptogram(cipher, sEnc, ccrypt.PDRandom, cpRandom)
	scryptPayload := append([]byte{0x77}, cpCryptogram[:]...)
	reply2 := sendAndDrain(t, p, ch, &packet.Frame{Address: 0, Sequence: 2, UseCRC: true, Payload: scryptPayload})
	require.Equal(t, uint8(catalog.ReplyRMacI), reply2.Payload[0])
	assert.True(t, p.Record().SecureActive)
}
