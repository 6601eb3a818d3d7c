package catalog

import (
	"encoding/binary"

	"github.com/osdp-go/osdp"
)

// Poll carries no payload.
type Poll struct{}

func (Poll) Encode() ([]byte, error) { return nil, nil }

func DecodePoll(data []byte) (Poll, error) {
	if len(data) != 0 {
		return Poll{}, osdp.ErrRecordInvalid
	}
	return Poll{}, nil
}

// Ack carries no payload.
type Ack struct{}

func (Ack) Encode() ([]byte, error) { return nil, nil }

func DecodeAck(data []byte) (Ack, error) {
	if len(data) != 0 {
		return Ack{}, osdp.ErrRecordInvalid
	}
	return Ack{}, nil
}

// Nak carries a single NakCode byte.
type Nak struct {
	Code osdp.NakCode
}

func (n Nak) Encode() ([]byte, error) {
	return []byte{byte(n.Code)}, nil
}

func DecodeNak(data []byte) (Nak, error) {
	if len(data) != 1 {
		return Nak{}, osdp.ErrRecordInvalid
	}
	return Nak{Code: osdp.NakCode(data[0])}, nil
}

// IDRequest is the CMD_ID command; ReplyType is a reserved byte, always 0x00
// on the wire today.
type IDRequest struct {
	ReplyType uint8
}

func (c IDRequest) Encode() ([]byte, error) {
	return []byte{c.ReplyType}, nil
}

func DecodeIDRequest(data []byte) (IDRequest, error) {
	if len(data) != 1 {
		return IDRequest{}, osdp.ErrRecordInvalid
	}
	return IDRequest{ReplyType: data[0]}, nil
}

// PDID is the REPLY_PDID record.
type PDID struct {
	VendorOUI [3]byte
	Model     uint8
	Version   uint8
	Serial    [4]byte
	Firmware  [3]byte
}

func (p PDID) Encode() ([]byte, error) {
	out := make([]byte, 12)
	copy(out[0:3], p.VendorOUI[:])
	out[3] = p.Model
	out[4] = p.Version
	copy(out[5:9], p.Serial[:])
	copy(out[9:12], p.Firmware[:])
	return out, nil
}

func DecodePDID(data []byte) (PDID, error) {
	if len(data) != 12 {
		return PDID{}, osdp.ErrRecordInvalid
	}
	var p PDID
	copy(p.VendorOUI[:], data[0:3])
	p.Model = data[3]
	p.Version = data[4]
	copy(p.Serial[:], data[5:9])
	copy(p.Firmware[:], data[9:12])
	return p, nil
}

// CapRequest carries no payload.
type CapRequest struct{}

func (CapRequest) Encode() ([]byte, error) { return nil, nil }

func DecodeCapRequest(data []byte) (CapRequest, error) {
	if len(data) != 0 {
		return CapRequest{}, osdp.ErrRecordInvalid
	}
	return CapRequest{}, nil
}

// CapabilityEntry is one 3-byte capability record.
type CapabilityEntry struct {
	Code            osdp.CapabilityCode
	ComplianceLevel uint8
	NumItems        uint8
}

// PDCap is the REPLY_PDCAP record: a variable list of 3-byte entries.
type PDCap struct {
	Entries []CapabilityEntry
}

func (p PDCap) Encode() ([]byte, error) {
	out := make([]byte, 0, len(p.Entries)*3)
	for _, e := range p.Entries {
		out = append(out, byte(e.Code), e.ComplianceLevel, e.NumItems)
	}
	return out, nil
}

func DecodePDCap(data []byte) (PDCap, error) {
	if len(data)%3 != 0 {
		return PDCap{}, osdp.ErrRecordInvalid
	}
	var p PDCap
	for i := 0; i < len(data); i += 3 {
		p.Entries = append(p.Entries, CapabilityEntry{
			Code:            osdp.CapabilityCode(data[i]),
			ComplianceLevel: data[i+1],
			NumItems:        data[i+2],
		})
	}
	return p, nil
}

// StatusRequest covers LSTAT/ISTAT/OSTAT/RSTAT, all of which carry no
// payload.
type StatusRequest struct{}

func (StatusRequest) Encode() ([]byte, error) { return nil, nil }

func DecodeStatusRequest(data []byte) (StatusRequest, error) {
	if len(data) != 0 {
		return StatusRequest{}, osdp.ErrRecordInvalid
	}
	return StatusRequest{}, nil
}

// Lstatr is the local status reply: tamper and power-report flags.
type Lstatr struct {
	Tamper bool
	Power  bool
}

func (l Lstatr) Encode() ([]byte, error) {
	return []byte{boolByte(l.Tamper), boolByte(l.Power)}, nil
}

func DecodeLstatr(data []byte) (Lstatr, error) {
	if len(data) != 2 {
		return Lstatr{}, osdp.ErrRecordInvalid
	}
	return Lstatr{Tamper: data[0] != 0, Power: data[1] != 0}, nil
}

// Istatr/Ostatr/Rstatr share this shape: a variable-length vector of
// per-point status bytes (input points, output points, reader tamper points
// respectively). Code records which of the three reply opcodes this value
// is bound for, since the three are otherwise indistinguishable Go values.
type PointStatus struct {
	Code   ReplyCode
	Points []byte
}

func (p PointStatus) Encode() ([]byte, error) {
	return append([]byte(nil), p.Points...), nil
}

func DecodePointStatus(code ReplyCode, data []byte) (PointStatus, error) {
	return PointStatus{Code: code, Points: append([]byte(nil), data...)}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Out is the CMD_OUT output-control command.
type Out struct {
	OutputNumber uint8
	ControlCode  uint8
	Timer        uint16
}

func (o Out) Encode() ([]byte, error) {
	out := make([]byte, 4)
	out[0] = o.OutputNumber
	out[1] = o.ControlCode
	binary.LittleEndian.PutUint16(out[2:4], o.Timer)
	return out, nil
}

func DecodeOut(data []byte) (Out, error) {
	if len(data) != 4 {
		return Out{}, osdp.ErrRecordInvalid
	}
	return Out{
		OutputNumber: data[0],
		ControlCode:  data[1],
		Timer:        binary.LittleEndian.Uint16(data[2:4]),
	}, nil
}

// LEDControl is one temporary or permanent LED control sub-record.
type LEDControl struct {
	ControlCode uint8
	OnTime      uint8
	OffTime     uint8
	OnColor     osdp.LEDColor
	OffColor    osdp.LEDColor
	Timer       uint16
}

func (c LEDControl) encodeInto(out []byte) {
	out[0] = c.ControlCode
	out[1] = c.OnTime
	out[2] = c.OffTime
	out[3] = byte(c.OnColor)
	out[4] = byte(c.OffColor)
	binary.LittleEndian.PutUint16(out[5:7], c.Timer)
}

func decodeLEDControl(data []byte) LEDControl {
	return LEDControl{
		ControlCode: data[0],
		OnTime:      data[1],
		OffTime:     data[2],
		OnColor:     osdp.LEDColor(data[3]),
		OffColor:    osdp.LEDColor(data[4]),
		Timer:       binary.LittleEndian.Uint16(data[5:7]),
	}
}

// Led is the CMD_LED command: 2 bytes addressing plus a temporary and a
// permanent control sub-record.
type Led struct {
	ReaderNumber uint8
	LedNumber    uint8
	Temporary    LEDControl
	Permanent    LEDControl
}

func (l Led) Encode() ([]byte, error) {
	out := make([]byte, 16)
	out[0] = l.ReaderNumber
	out[1] = l.LedNumber
	l.Temporary.encodeInto(out[2:9])
	l.Permanent.encodeInto(out[9:16])
	return out, nil
}

func DecodeLed(data []byte) (Led, error) {
	if len(data) != 16 {
		return Led{}, osdp.ErrRecordInvalid
	}
	return Led{
		ReaderNumber: data[0],
		LedNumber:    data[1],
		Temporary:    decodeLEDControl(data[2:9]),
		Permanent:    decodeLEDControl(data[9:16]),
	}, nil
}

// Buz is the CMD_BUZ reader buzzer command.
type Buz struct {
	ReaderNumber uint8
	ControlCode  uint8
	OnTime       uint8
	OffTime      uint8
	RepeatCount  uint8
}

func (b Buz) Encode() ([]byte, error) {
	return []byte{b.ReaderNumber, b.ControlCode, b.OnTime, b.OffTime, b.RepeatCount}, nil
}

func DecodeBuz(data []byte) (Buz, error) {
	if len(data) != 5 {
		return Buz{}, osdp.ErrRecordInvalid
	}
	return Buz{
		ReaderNumber: data[0],
		ControlCode:  data[1],
		OnTime:       data[2],
		OffTime:      data[3],
		RepeatCount:  data[4],
	}, nil
}

const textMaxLen = 32

// Text is the CMD_TEXT reader text-output command. Data is variable length
// up to textMaxLen; decode requires the 6-byte header plus exactly the data
// length its sixth byte declares.
type Text struct {
	ReaderNumber uint8
	Control      uint8
	TempTime     uint8
	Row          uint8
	Col          uint8
	Data         []byte
}

func (t Text) Encode() ([]byte, error) {
	if len(t.Data) > textMaxLen {
		return nil, osdp.ErrBufferTooSmall
	}
	out := make([]byte, 6+len(t.Data))
	out[0] = t.ReaderNumber
	out[1] = t.Control
	out[2] = t.TempTime
	out[3] = t.Row
	out[4] = t.Col
	out[5] = uint8(len(t.Data))
	copy(out[6:], t.Data)
	return out, nil
}

func DecodeText(data []byte) (Text, error) {
	if len(data) < 6 {
		return Text{}, osdp.ErrRecordInvalid
	}
	n := int(data[5])
	if len(data) != 6+n || n > textMaxLen {
		return Text{}, osdp.ErrRecordInvalid
	}
	return Text{
		ReaderNumber: data[0],
		Control:      data[1],
		TempTime:     data[2],
		Row:          data[3],
		Col:          data[4],
		Data:         append([]byte(nil), data[6:]...),
	}, nil
}

// Comset is the CMD_COMSET command to reassign a PD's address/baud rate.
type Comset struct {
	Address  uint8
	BaudRate uint32
}

func (c Comset) Encode() ([]byte, error) {
	out := make([]byte, 5)
	out[0] = c.Address
	binary.LittleEndian.PutUint32(out[1:5], c.BaudRate)
	return out, nil
}

func DecodeComset(data []byte) (Comset, error) {
	if len(data) != 5 {
		return Comset{}, osdp.ErrRecordInvalid
	}
	return Comset{Address: data[0], BaudRate: binary.LittleEndian.Uint32(data[1:5])}, nil
}

// Com is the REPLY_COM confirmation echoing the new address/baud rate.
type Com struct {
	Address  uint8
	BaudRate uint32
}

func (c Com) Encode() ([]byte, error) {
	out := make([]byte, 5)
	out[0] = c.Address
	binary.LittleEndian.PutUint32(out[1:5], c.BaudRate)
	return out, nil
}

func DecodeCom(data []byte) (Com, error) {
	if len(data) != 5 {
		return Com{}, osdp.ErrRecordInvalid
	}
	return Com{Address: data[0], BaudRate: binary.LittleEndian.Uint32(data[1:5])}, nil
}

const keysetMaxLen = 32

// Keyset is the CMD_KEYSET command installing a new SCBK. KeyType 0 means
// "general" (SCBK); KeyData is at minimum the 16-byte AES-128 key.
type Keyset struct {
	KeyType uint8
	KeyData []byte
}

func (k Keyset) Encode() ([]byte, error) {
	if len(k.KeyData) > keysetMaxLen {
		return nil, osdp.ErrBufferTooSmall
	}
	out := make([]byte, 2+len(k.KeyData))
	out[0] = k.KeyType
	out[1] = uint8(len(k.KeyData))
	copy(out[2:], k.KeyData)
	return out, nil
}

func DecodeKeyset(data []byte) (Keyset, error) {
	if len(data) < 2 {
		return Keyset{}, osdp.ErrRecordInvalid
	}
	n := int(data[1])
	if len(data) != 2+n || n < 16 || n > keysetMaxLen {
		return Keyset{}, osdp.ErrRecordInvalid
	}
	return Keyset{KeyType: data[0], KeyData: append([]byte(nil), data[2:]...)}, nil
}

const mfgMaxLen = 64

// Mfg is CMD_MFG / REPLY_MFGREP, a manufacturer-specific escape hatch.
type Mfg struct {
	VendorOUI [3]byte
	Data      []byte
}

func (m Mfg) Encode() ([]byte, error) {
	if len(m.Data) > mfgMaxLen {
		return nil, osdp.ErrBufferTooSmall
	}
	out := make([]byte, 3+len(m.Data))
	copy(out[0:3], m.VendorOUI[:])
	copy(out[3:], m.Data)
	return out, nil
}

func DecodeMfg(data []byte) (Mfg, error) {
	if len(data) < 3 || len(data) > 3+mfgMaxLen {
		return Mfg{}, osdp.ErrRecordInvalid
	}
	var m Mfg
	copy(m.VendorOUI[:], data[0:3])
	m.Data = append([]byte(nil), data[3:]...)
	return m, nil
}

// Chlng is the CMD_CHLNG secure-channel handshake challenge.
type Chlng struct {
	CPRandom [8]byte
}

func (c Chlng) Encode() ([]byte, error) {
	return append([]byte(nil), c.CPRandom[:]...), nil
}

func DecodeChlng(data []byte) (Chlng, error) {
	if len(data) != 8 {
		return Chlng{}, osdp.ErrRecordInvalid
	}
	var c Chlng
	copy(c.CPRandom[:], data)
	return c, nil
}

// CCrypt is the REPLY_CCRYPT handshake response.
type CCrypt struct {
	PDRandom     [8]byte
	PDClientUID  [8]byte
	PDCryptogram [16]byte
}

func (c CCrypt) Encode() ([]byte, error) {
	out := make([]byte, 32)
	copy(out[0:8], c.PDRandom[:])
	copy(out[8:16], c.PDClientUID[:])
	copy(out[16:32], c.PDCryptogram[:])
	return out, nil
}

func DecodeCCrypt(data []byte) (CCrypt, error) {
	if len(data) != 32 {
		return CCrypt{}, osdp.ErrRecordInvalid
	}
	var c CCrypt
	copy(c.PDRandom[:], data[0:8])
	copy(c.PDClientUID[:], data[8:16])
	copy(c.PDCryptogram[:], data[16:32])
	return c, nil
}

// Scrypt is the CMD_SCRYPT handshake confirmation.
type Scrypt struct {
	CPCryptogram [16]byte
}

func (s Scrypt) Encode() ([]byte, error) {
	return append([]byte(nil), s.CPCryptogram[:]...), nil
}

func DecodeScrypt(data []byte) (Scrypt, error) {
	if len(data) != 16 {
		return Scrypt{}, osdp.ErrRecordInvalid
	}
	var s Scrypt
	copy(s.CPCryptogram[:], data)
	return s, nil
}

// RMacI is the REPLY_RMAC_I carrying the initial R-MAC.
type RMacI struct {
	RMAC [16]byte
}

func (r RMacI) Encode() ([]byte, error) {
	return append([]byte(nil), r.RMAC[:]...), nil
}

func DecodeRMacI(data []byte) (RMacI, error) {
	if len(data) != 16 {
		return RMacI{}, osdp.ErrRecordInvalid
	}
	var r RMacI
	copy(r.RMAC[:], data)
	return r, nil
}

// FileTxFlagCancel aborts an in-progress transfer, carried in bit 31 of
// FileTransfer.Flags (value taken unchanged from the original
// implementation's OSDP_CMD_FILE_TX_FLAG_CANCEL).
const FileTxFlagCancel uint32 = 1 << 31

// FileTransfer is the CMD_FILETRANSFER command fragmenting a file upload.
type FileTransfer struct {
	FileID    uint8
	TotalSize uint32
	Offset    uint32
	Flags     uint32
	Data      []byte
}

func (f FileTransfer) Encode() ([]byte, error) {
	out := make([]byte, 15+len(f.Data))
	out[0] = f.FileID
	binary.LittleEndian.PutUint32(out[1:5], f.TotalSize)
	binary.LittleEndian.PutUint32(out[5:9], f.Offset)
	binary.LittleEndian.PutUint32(out[9:13], f.Flags)
	binary.LittleEndian.PutUint16(out[13:15], uint16(len(f.Data)))
	copy(out[15:], f.Data)
	return out, nil
}

func DecodeFileTransfer(data []byte) (FileTransfer, error) {
	if len(data) < 15 {
		return FileTransfer{}, osdp.ErrRecordInvalid
	}
	n := int(binary.LittleEndian.Uint16(data[13:15]))
	if len(data) != 15+n {
		return FileTransfer{}, osdp.ErrRecordInvalid
	}
	return FileTransfer{
		FileID:    data[0],
		TotalSize: binary.LittleEndian.Uint32(data[1:5]),
		Offset:    binary.LittleEndian.Uint32(data[5:9]),
		Flags:     binary.LittleEndian.Uint32(data[9:13]),
		Data:      append([]byte(nil), data[15:]...),
	}, nil
}

// Ftstat is the REPLY_FTSTAT advancing the file-transfer cursor.
type Ftstat struct {
	Status    uint8
	Delay     uint16
	MaxTxSize uint16
	Offset    uint32
}

func (f Ftstat) Encode() ([]byte, error) {
	out := make([]byte, 9)
	out[0] = f.Status
	binary.LittleEndian.PutUint16(out[1:3], f.Delay)
	binary.LittleEndian.PutUint16(out[3:5], f.MaxTxSize)
	binary.LittleEndian.PutUint32(out[5:9], f.Offset)
	return out, nil
}

func DecodeFtstat(data []byte) (Ftstat, error) {
	if len(data) != 9 {
		return Ftstat{}, osdp.ErrRecordInvalid
	}
	return Ftstat{
		Status:    data[0],
		Delay:     binary.LittleEndian.Uint16(data[1:3]),
		MaxTxSize: binary.LittleEndian.Uint16(data[3:5]),
		Offset:    binary.LittleEndian.Uint32(data[5:9]),
	}, nil
}

// BioRead is the CMD_BIOREAD biometric capture request.
type BioRead struct {
	ReaderNumber uint8
	Type         uint8
	Format       uint8
	Quality      uint8
}

func (b BioRead) Encode() ([]byte, error) {
	return []byte{b.ReaderNumber, b.Type, b.Format, b.Quality}, nil
}

func DecodeBioRead(data []byte) (BioRead, error) {
	if len(data) != 4 {
		return BioRead{}, osdp.ErrRecordInvalid
	}
	return BioRead{ReaderNumber: data[0], Type: data[1], Format: data[2], Quality: data[3]}, nil
}

// BioReadr is the REPLY_BIOREADR carrying the captured biometric template.
type BioReadr struct {
	Data []byte
}

func DecodeBioReadr(data []byte) (BioReadr, error) {
	return BioReadr{Data: append([]byte(nil), data...)}, nil
}

// CardRaw is the REPLY_RAW unsolicited card-read event, raw/Wiegand format.
// BitCount is the length of Data in bits, not bytes, per §4.5.
type CardRaw struct {
	ReaderNumber uint8
	FormatCode   uint8
	BitCount     uint16
	Data         []byte
}

func DecodeCardRaw(data []byte) (CardRaw, error) {
	if len(data) < 4 {
		return CardRaw{}, osdp.ErrRecordInvalid
	}
	bitCount := binary.LittleEndian.Uint16(data[2:4])
	expectBytes := (int(bitCount) + 7) / 8
	if len(data) != 4+expectBytes {
		return CardRaw{}, osdp.ErrRecordInvalid
	}
	return CardRaw{
		ReaderNumber: data[0],
		FormatCode:   data[1],
		BitCount:     bitCount,
		Data:         append([]byte(nil), data[4:]...),
	}, nil
}

// CardFmt is the REPLY_FMT ASCII-format card-read event. Data length is in
// bytes, not bits, per §4.5.
type CardFmt struct {
	ReaderNumber uint8
	Direction    uint8
	Data         []byte
}

func DecodeCardFmt(data []byte) (CardFmt, error) {
	if len(data) < 3 {
		return CardFmt{}, osdp.ErrRecordInvalid
	}
	n := int(data[2])
	if len(data) != 3+n {
		return CardFmt{}, osdp.ErrRecordInvalid
	}
	return CardFmt{ReaderNumber: data[0], Direction: data[1], Data: append([]byte(nil), data[3:]...)}, nil
}

// Keypad is the REPLY_KEYPAD keypress event.
type Keypad struct {
	ReaderNumber uint8
	Data         []byte
}

func DecodeKeypad(data []byte) (Keypad, error) {
	if len(data) < 2 {
		return Keypad{}, osdp.ErrRecordInvalid
	}
	n := int(data[1])
	if len(data) != 2+n {
		return Keypad{}, osdp.ErrRecordInvalid
	}
	return Keypad{ReaderNumber: data[0], Data: append([]byte(nil), data[2:]...)}, nil
}
