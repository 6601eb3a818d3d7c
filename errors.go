package osdp

import "errors"

// Sentinel errors for conditions that are local to a single call and do not
// carry protocol-level NAK semantics back across the wire.
var (
	ErrIllegalArgument  = errors.New("osdp: illegal argument")
	ErrBufferTooSmall   = errors.New("osdp: buffer too small")
	ErrNeedMore         = errors.New("osdp: need more bytes")
	ErrMalformed        = errors.New("osdp: malformed frame")
	ErrSoftDiscard      = errors.New("osdp: frame addressed to another unit")
	ErrSequenceMismatch = errors.New("osdp: sequence number mismatch")
	ErrTimeout          = errors.New("osdp: response timeout")
	ErrAllocFailed      = errors.New("osdp: queue exhausted")
	ErrFileIO           = errors.New("osdp: file backing store error")
	ErrSecureCondition  = errors.New("osdp: secure channel condition not met")
	ErrNotSecure        = errors.New("osdp: secure channel not active")
	ErrUnknownCommand   = errors.New("osdp: unknown command")
	ErrWouldBlock       = errors.New("osdp: transport would block")
	ErrRecordInvalid    = errors.New("osdp: command/reply record invalid")
)

// NakCode is the typed record-level NAK vocabulary carried in a NAK reply's
// single data byte. It mirrors the OSDP PD NAK code table.
type NakCode uint8

const (
	NakNone        NakCode = 0x00
	NakMessageChk  NakCode = 0x01
	NakCmdLen      NakCode = 0x02
	NakCmdUnknown  NakCode = 0x03
	NakSeqNum      NakCode = 0x04
	NakScUnsup     NakCode = 0x05
	NakScCond      NakCode = 0x06
	NakBioType     NakCode = 0x07
	NakBioFmt      NakCode = 0x08
	NakRecord      NakCode = 0x09
)

var nakDescription = map[NakCode]string{
	NakNone:       "no error",
	NakMessageChk: "message check character(s) error",
	NakCmdLen:     "command length error",
	NakCmdUnknown: "unknown command code",
	NakSeqNum:     "sequence number error",
	NakScUnsup:    "secure channel not supported",
	NakScCond:     "secure channel condition not met",
	NakBioType:    "biometric type not supported",
	NakBioFmt:     "biometric format not supported",
	NakRecord:     "unable to process command record",
}

func (n NakCode) String() string {
	if s, ok := nakDescription[n]; ok {
		return s
	}
	return "unknown nak code"
}
