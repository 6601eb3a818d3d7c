package osdp

import "time"

// Session state machine values for both roles, shared by the root Record so
// that both the pd and cp packages can inspect/drive the same session
// bookkeeping (see SPEC_FULL.md DESIGN NOTES, "Shared CP/PD internals").
type SessionState uint8

const (
	StateInit SessionState = iota
	StateIdle
	StateIDReq
	StateCapReq
	StateSCInit
	StateSCChlng
	StateSCScrypt
	StateOnline
	StateOffline
	StateSendReply
	StateErr
)

var sessionStateNames = map[SessionState]string{
	StateInit:      "init",
	StateIdle:      "idle",
	StateIDReq:     "id_req",
	StateCapReq:    "cap_req",
	StateSCInit:    "sc_init",
	StateSCChlng:   "sc_chlng",
	StateSCScrypt:  "sc_scrypt",
	StateOnline:    "online",
	StateOffline:   "offline",
	StateSendReply: "send_reply",
	StateErr:       "err",
}

func (s SessionState) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Record is the per-PD record held by both roles: identity, capability
// vector, session bookkeeping, and secure-channel key material. The core
// reuses one data model across pd.PD and cp.CP for codec and secure-channel
// logic, per DESIGN NOTES ("shared CP/PD internals").
type Record struct {
	// Identity
	Address   uint8
	BaudRate  int
	ChannelID int
	Name      string

	// Static info, populated from ID/CAP exchange (CP side) or configured
	// directly (PD side).
	VendorOUI       [3]byte
	Model           uint8
	Version         uint8
	Serial          [4]byte
	FirmwareVersion [3]byte

	Capabilities map[CapabilityCode]Capability

	// Session
	SequenceNumber uint8
	LastActivity   time.Time
	State          SessionState
	Online         bool
	Tamper         bool
	PowerReport    bool
	SecureActive   bool
	InstallMode    bool
	UsingSCBKD     bool
	IsPDRole       bool

	// ReaderTamperStatus is one byte per attached reader, auto-reported in
	// RSTATR the same way Tamper/PowerReport are auto-reported in LSTATR —
	// both come straight from core state, unlike ISTATR/OSTATR which need
	// the application callback to query actual input/output hardware.
	ReaderTamperStatus []byte

	// Secure-channel block
	SCBK         [16]byte
	SEnc         [16]byte
	SMac1        [16]byte
	SMac2        [16]byte
	CPRandom     [8]byte
	PDRandom     [8]byte
	CPCryptogram [16]byte
	PDCryptogram [16]byte
	RMAC         [16]byte
	CMAC         [16]byte
	PDClientUID  [8]byte

	// RX scratch buffer fill counter. The bytes themselves live in the
	// internal/fifo RX buffer owned by pkg/pd or pkg/cp, and neither role
	// updates this field.
	RXFill int

	// File-transfer cursor
	FileTransfer FileCursor

	// Soft-discard telemetry (DESIGN.md open-question decision).
	SoftDiscardCount uint64
}

// FileCursor tracks an in-progress file transfer, shared between the
// initiating and receiving side of the overlay (C8).
type FileCursor struct {
	Active    bool
	FileID    int
	TotalSize int64
	Offset    int64
}

func (c *FileCursor) Remaining() int64 {
	if !c.Active {
		return 0
	}
	r := c.TotalSize - c.Offset
	if r < 0 {
		return 0
	}
	return r
}

// NewRecord returns a zeroed Record for the given address, ready for either
// role to populate further.
func NewRecord(address uint8, channelID int) *Record {
	return &Record{
		Address:      address,
		ChannelID:    channelID,
		Capabilities: make(map[CapabilityCode]Capability),
		State:        StateInit,
	}
}

// ResetSecureChannel zeros all session key material and clears
// secure-active, as required on any fatal/session-ending error (§7).
func (r *Record) ResetSecureChannel() {
	r.SEnc = [16]byte{}
	r.SMac1 = [16]byte{}
	r.SMac2 = [16]byte{}
	r.CPRandom = [8]byte{}
	r.PDRandom = [8]byte{}
	r.CPCryptogram = [16]byte{}
	r.PDCryptogram = [16]byte{}
	r.RMAC = [16]byte{}
	r.CMAC = [16]byte{}
	r.SecureActive = false
}
