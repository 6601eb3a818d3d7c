package cp

import (
	"testing"

	"github.com/osdp-go/osdp"
	"github.com/osdp-go/osdp/pkg/catalog"
	"github.com/osdp-go/osdp/pkg/pd"
	"github.com/osdp-go/osdp/pkg/secure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// duplexChannel is one end of an in-memory back-to-back wire: Send appends
// to the peer's inbound slice, Recv drains this end's own inbound slice.
type duplexChannel struct {
	id       int
	outgoing *[]byte
	incoming *[]byte
}

func (c *duplexChannel) ID() int { return c.id }

func (c *duplexChannel) Recv(buf []byte) (int, error) {
	n := copy(buf, *c.incoming)
	*c.incoming = (*c.incoming)[n:]
	return n, nil
}

func (c *duplexChannel) Send(buf []byte) (int, error) {
	*c.outgoing = append(*c.outgoing, buf...)
	return len(buf), nil
}

func (c *duplexChannel) Flush() error { return nil }

func newWire() (cpSide, pdSide *duplexChannel) {
	var cpToPD, pdToCP []byte
	cpSide = &duplexChannel{id: 1, outgoing: &cpToPD, incoming: &pdToCP}
	pdSide = &duplexChannel{id: 1, outgoing: &pdToCP, incoming: &cpToPD}
	return cpSide, pdSide
}

func runUntilOnline(t *testing.T, c *CP, p *pd.PD, address uint8, ticks int) *osdp.Record {
	t.Helper()
	var rec *osdp.Record
	for i := 0; i < ticks; i++ {
		require.NoError(t, c.Refresh())
		require.NoError(t, p.Refresh())
		rec, _ = c.Record(address)
		if rec.State == osdp.StateOnline {
			break
		}
	}
	return rec
}

func TestHandshakeReachesSecureOnline(t *testing.T) {
	cpChannel, pdChannel := newWire()

	cipher := secure.StdBlockCipher{}
	rng := secure.StdRandomSource{}

	c, err := New(Options{Cipher: cipher, RNG: rng})
	require.NoError(t, err)
	require.NoError(t, c.AddPD(0, PDOptions{Channel: cpChannel, UseCRC: true}))

	p, err := pd.Setup(pdChannel, pd.Options{Address: 0, Cipher: cipher, RNG: rng, UseCRC: true})
	require.NoError(t, err)

	rec := runUntilOnline(t, c, p, 0, 20)
	require.NotNil(t, rec)
	assert.Equal(t, osdp.StateOnline, rec.State)
	assert.True(t, rec.Online)
	assert.True(t, rec.SecureActive)
	assert.True(t, p.Record().SecureActive)
}

func TestIDExchangePopulatesRecord(t *testing.T) {
	cpChannel, pdChannel := newWire()
	cipher := secure.StdBlockCipher{}
	rng := secure.StdRandomSource{}

	c, err := New(Options{Cipher: cipher, RNG: rng})
	require.NoError(t, err)
	require.NoError(t, c.AddPD(0, PDOptions{Channel: cpChannel, UseCRC: true}))

	p, err := pd.Setup(pdChannel, pd.Options{
		Address:   0,
		Cipher:    cipher,
		RNG:       rng,
		UseCRC:    true,
		VendorOUI: [3]byte{0xA1, 0xB2, 0xC3},
		Model:     0x01,
		Version:   0x02,
		Serial:    [4]byte{0x78, 0x56, 0x34, 0x12},
		Firmware:  [3]byte{0x03, 0x02, 0x01},
	})
	require.NoError(t, err)

	rec := runUntilOnline(t, c, p, 0, 20)
	require.NotNil(t, rec)
	assert.Equal(t, [3]byte{0xA1, 0xB2, 0xC3}, rec.VendorOUI)
	assert.Equal(t, [4]byte{0x78, 0x56, 0x34, 0x12}, rec.Serial)
}

func TestQueuedCommandIsDeliveredOnline(t *testing.T) {
	cpChannel, pdChannel := newWire()
	cipher := secure.StdBlockCipher{}
	rng := secure.StdRandomSource{}

	var gotOut catalog.Out
	seen := false

	c, err := New(Options{Cipher: cipher, RNG: rng})
	require.NoError(t, err)
	require.NoError(t, c.AddPD(0, PDOptions{Channel: cpChannel, UseCRC: true}))

	p, err := pd.Setup(pdChannel, pd.Options{
		Address: 0, Cipher: cipher, RNG: rng, UseCRC: true,
		CommandCallback: func(cmd catalog.Command) pd.CommandResult {
			if out, ok := cmd.Record.(catalog.Out); ok {
				gotOut = out
				seen = true
			}
			return pd.CommandResult{Action: pd.ReplyActionDefault}
		},
	})
	require.NoError(t, err)

	runUntilOnline(t, c, p, 0, 20)
	require.NoError(t, c.QueueCommand(0, catalog.CmdOut, catalog.Out{OutputNumber: 2, ControlCode: 1, Timer: 500}))

	for i := 0; i < 5 && !seen; i++ {
		require.NoError(t, c.Refresh())
		require.NoError(t, p.Refresh())
	}

	require.True(t, seen)
	assert.Equal(t, uint8(2), gotOut.OutputNumber)
}
