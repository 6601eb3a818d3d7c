package catalog

import (
	"testing"

	"github.com/osdp-go/osdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario2IDExchange(t *testing.T) {
	pdid := PDID{
		VendorOUI: [3]byte{0xA1, 0xB2, 0xC3},
		Model:     0x01,
		Version:   0x02,
		Serial:    [4]byte{0x78, 0x56, 0x34, 0x12},
		Firmware:  [3]byte{0x03, 0x02, 0x01},
	}
	code, data, err := EncodeReply(pdid)
	require.NoError(t, err)
	assert.Equal(t, ReplyPDID, code)

	reply, err := DecodeReply(code, data)
	require.NoError(t, err)
	got := reply.Record.(PDID)
	assert.Equal(t, pdid, got)
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, err := DecodePDID([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, osdp.ErrRecordInvalid)
}

func TestDecodeUnknownCommand(t *testing.T) {
	_, err := DecodeCommand(0xFE, nil)
	assert.ErrorIs(t, err, osdp.ErrUnknownCommand)
}

func TestTextRejectsOversizedData(t *testing.T) {
	big := make([]byte, textMaxLen+1)
	_, err := Text{Data: big}.Encode()
	assert.Error(t, err)
}

func TestKeysetRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	code, data, err := EncodeCommand(Keyset{KeyType: 0, KeyData: key})
	require.NoError(t, err)
	assert.Equal(t, CmdKeyset, code)

	cmd, err := DecodeCommand(code, data)
	require.NoError(t, err)
	got := cmd.Record.(Keyset)
	assert.Equal(t, key, got.KeyData)
}

func TestFileTransferRoundTrip(t *testing.T) {
	ft := FileTransfer{FileID: 7, TotalSize: 10000, Offset: 128, Data: make([]byte, 128)}
	code, data, err := EncodeCommand(ft)
	require.NoError(t, err)

	cmd, err := DecodeCommand(code, data)
	require.NoError(t, err)
	got := cmd.Record.(FileTransfer)
	assert.Equal(t, ft.TotalSize, got.TotalSize)
	assert.Equal(t, ft.Offset, got.Offset)
	assert.Len(t, got.Data, 128)
}

func TestPointStatusEncodesDistinctReplyOpcodes(t *testing.T) {
	for _, code := range []ReplyCode{ReplyIstatr, ReplyOstatr, ReplyRstatr} {
		status := PointStatus{Code: code, Points: []byte{0x01, 0x00, 0x01}}
		gotCode, data, err := EncodeReply(status)
		require.NoError(t, err)
		assert.Equal(t, code, gotCode)

		reply, err := DecodeReply(gotCode, data)
		require.NoError(t, err)
		got := reply.Record.(PointStatus)
		assert.Equal(t, status, got)
	}
}

func TestEncodeReplyRejectsPointStatusWithUnrelatedCode(t *testing.T) {
	_, _, err := EncodeReply(PointStatus{Code: ReplyAck, Points: []byte{0x01}})
	assert.Equal(t, osdp.ErrIllegalArgument, err)
}

func TestCardRawBitLength(t *testing.T) {
	// 26-bit Wiegand, 4 bytes of data.
	raw := append([]byte{0x01, 0x00, 26, 0x00}, make([]byte, 4)...)
	card, err := DecodeCardRaw(raw)
	require.NoError(t, err)
	assert.EqualValues(t, 26, card.BitCount)
	assert.Len(t, card.Data, 4)
}
