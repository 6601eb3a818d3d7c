// Package packet implements the OSDP byte-level packet codec: framing,
// sequence-number and SCB placement, and the CRC-16/checksum trailer. It is
// deliberately a pure, stateless transform — RX accumulation across partial
// reads and sequence-number bookkeeping belong to the role state machines
// (pkg/pd, pkg/cp) that drive it.
package packet

import (
	"encoding/binary"

	"github.com/osdp-go/osdp"
	"github.com/osdp-go/osdp/internal/crc"
)

const (
	som = 0xFF

	ctrlSeqMask   = 0x03
	ctrlUseCRC    = 0x04
	ctrlHasSCB    = 0x08
	addrReplyBit  = 0x80
	addrMask      = 0x7F
	broadcastAddr = 0x7F

	headerLen  = 5 // SOM, ADDR, LEN_LO, LEN_HI, CTRL
	maxLeadingGarbage = 64
)

// SCB is the optional Secure Channel Block header following CTRL.
type SCB struct {
	Type uint8
	Data []byte
}

// SCB type codes (named SCS_xx in the OSDP spec). The data-security block
// codes (0x15-0x18) come in command/reply pairs, each pair split again by
// whether there is anything beyond the bare opcode byte to encrypt: a
// same-shape data frame with nothing to encrypt is sent MAC-only.
const (
	SCSChallenge      uint8 = 0x11 // CHLNG
	SCSHandshakeReply uint8 = 0x12 // CCRYPT
	SCSRMACInit       uint8 = 0x14 // RMAC_I
	SCSCmdMACOnly     uint8 = 0x15 // CP->PD, no data beyond the opcode
	SCSReplyMACOnly   uint8 = 0x16 // PD->CP, no data beyond the opcode
	SCSCmdEncrypted   uint8 = 0x17 // CP->PD, encrypted command data
	SCSReplyEncrypted uint8 = 0x18 // PD->CP, encrypted reply data
)

// Frame is the decoded representation of one OSDP packet.
type Frame struct {
	Reply     bool
	Address   uint8
	Sequence  uint8
	UseCRC    bool
	SCB       *SCB
	Payload   []byte
	Trailer   []byte // as received (set by Parse), for diagnostics
}

// Build serializes f into wire bytes. Buffer sizing is handled internally;
// Build never truncates — if a caller-supplied maxLen is exceeded, it
// surfaces osdp.ErrBufferTooSmall rather than writing a short frame.
func Build(f *Frame, maxLen int) ([]byte, error) {
	if f.Sequence > 3 {
		return nil, osdp.ErrIllegalArgument
	}

	scbLen := 0
	if f.SCB != nil {
		scbLen = 2 + len(f.SCB.Data)
	}
	trailerLen := 2
	if !f.UseCRC {
		trailerLen = 1
	}

	total := headerLen + scbLen + len(f.Payload) + trailerLen
	if maxLen > 0 && total > maxLen {
		return nil, osdp.ErrBufferTooSmall
	}

	buf := make([]byte, total)
	buf[0] = som
	addr := f.Address & addrMask
	if f.Reply {
		addr |= addrReplyBit
	}
	buf[1] = addr
	binary.LittleEndian.PutUint16(buf[2:4], uint16(total))

	ctrl := f.Sequence & ctrlSeqMask
	if f.UseCRC {
		ctrl |= ctrlUseCRC
	}
	if f.SCB != nil {
		ctrl |= ctrlHasSCB
	}
	buf[4] = ctrl

	off := headerLen
	if f.SCB != nil {
		buf[off] = uint8(2 + len(f.SCB.Data))
		buf[off+1] = f.SCB.Type
		copy(buf[off+2:], f.SCB.Data)
		off += scbLen
	}
	copy(buf[off:], f.Payload)
	off += len(f.Payload)

	if f.UseCRC {
		acc := crc.New()
		acc.Block(buf[:off])
		v := uint16(acc)
		buf[off] = byte(v & 0xFF)
		buf[off+1] = byte(v >> 8)
	} else {
		buf[off] = crc.Checksum8(buf[:off])
	}
	return buf, nil
}

// ParseResult distinguishes the four outcomes §4.3 defines for Parse.
type ParseResult int

const (
	ResultComplete ParseResult = iota
	ResultNeedMore
	ResultSoftDiscard
	ResultMalformed
)

// Parse walks buf looking for one complete frame addressed to ownAddress (or
// broadcast). It returns the outcome, the frame (when complete), and the
// number of bytes consumed from buf (valid for Complete, SoftDiscard, and
// Malformed — callers should drop that many bytes and keep the remainder for
// NeedMore).
func Parse(buf []byte, ownAddress uint8) (ParseResult, *Frame, int) {
	somIdx := -1
	limit := len(buf)
	if limit > maxLeadingGarbage {
		limit = maxLeadingGarbage
	}
	for i := 0; i < limit; i++ {
		if buf[i] == som {
			somIdx = i
			break
		}
	}
	if somIdx < 0 {
		if len(buf) < maxLeadingGarbage {
			return ResultNeedMore, nil, 0
		}
		return ResultMalformed, nil, limit
	}
	if somIdx > 0 {
		// Leading garbage before SOM: malformed, caller discards up to SOM.
		return ResultMalformed, nil, somIdx
	}
	if len(buf) < headerLen {
		return ResultNeedMore, nil, 0
	}

	declaredLen := int(binary.LittleEndian.Uint16(buf[2:4]))
	if declaredLen < headerLen+1 {
		return ResultMalformed, nil, 1
	}
	if len(buf) < declaredLen {
		return ResultNeedMore, nil, 0
	}

	ctrl := buf[4]
	useCRC := ctrl&ctrlUseCRC != 0
	trailerLen := 1
	if useCRC {
		trailerLen = 2
	}
	if declaredLen < headerLen+trailerLen {
		return ResultMalformed, nil, 1
	}

	payloadEnd := declaredLen - trailerLen
	if useCRC {
		acc := crc.New()
		acc.Block(buf[:payloadEnd])
		want := uint16(acc)
		got := uint16(buf[payloadEnd]) | uint16(buf[payloadEnd+1])<<8
		if want != got {
			return ResultMalformed, nil, declaredLen
		}
	} else {
		want := crc.Checksum8(buf[:payloadEnd])
		if want != buf[payloadEnd] {
			return ResultMalformed, nil, declaredLen
		}
	}

	rawAddr := buf[1]
	addr := rawAddr & addrMask
	reply := rawAddr&addrReplyBit != 0
	if addr != ownAddress && addr != broadcastAddr && ownAddress != broadcastAddr {
		return ResultSoftDiscard, nil, declaredLen
	}

	off := headerLen
	var scb *SCB
	if ctrl&ctrlHasSCB != 0 {
		if off+1 >= payloadEnd {
			return ResultMalformed, nil, declaredLen
		}
		scbLen := int(buf[off])
		if scbLen < 2 || off+scbLen > payloadEnd {
			return ResultMalformed, nil, declaredLen
		}
		scb = &SCB{Type: buf[off+1]}
		if scbLen > 2 {
			scb.Data = append([]byte(nil), buf[off+2:off+scbLen]...)
		}
		off += scbLen
	}

	payload := append([]byte(nil), buf[off:payloadEnd]...)
	frame := &Frame{
		Reply:    reply,
		Address:  addr,
		Sequence: ctrl & ctrlSeqMask,
		UseCRC:   useCRC,
		SCB:      scb,
		Payload:  payload,
		Trailer:  append([]byte(nil), buf[payloadEnd:declaredLen]...),
	}
	return ResultComplete, frame, declaredLen
}
