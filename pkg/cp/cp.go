// Package cp implements the Control Panel role state machine (§4.7): for
// each managed PD, a per-address session progresses
// init -> id_req -> cap_req -> (sc_init -> sc_chlng -> sc_scrypt ->) online
// -> offline, driven by a synchronous Refresh tick exactly like pkg/pd — no
// goroutines, no blocking calls, one outstanding command at a time per
// session (see the pkg/cp notes in DESIGN.md's package layout).
package cp

import (
	"log/slog"
	"time"

	"github.com/osdp-go/osdp"
	"github.com/osdp-go/osdp/internal/fifo"
	"github.com/osdp-go/osdp/pkg/catalog"
	"github.com/osdp-go/osdp/pkg/packet"
	"github.com/osdp-go/osdp/pkg/secure"
)

const (
	rxScratchSize = 256
	defaultMaxLen = 256

	defaultPollIntervalMs     = 50
	defaultResponseTimeoutMs  = 200
	defaultOfflineBackoffMs   = 8000
	defaultMaxRetries         = 1
	defaultCommandQueueSize   = 8
)

// EventCallback is invoked for every reply a session receives while online
// that does not merely acknowledge a CP-issued command as expected — card
// reads, keypad events, and manufacturer replies delivered on a POLL.
type EventCallback func(address uint8, reply catalog.Reply)

// Options configures a CP instance and its default per-PD timing.
type Options struct {
	Cipher secure.BlockCipher
	RNG    secure.RandomSource
	Logger *slog.Logger

	PollIntervalMs    int
	ResponseTimeoutMs int
	OfflineBackoffMs  int
	MaxRetries        int

	// IgnoreUnsolicited must be set explicitly by the deployment; there is
	// no default inference. false means an unmatched reply ends the
	// session immediately (§4.7).
	IgnoreUnsolicited bool

	EventCallback EventCallback
}

// PDOptions configures one managed peripheral.
type PDOptions struct {
	Channel       osdp.Channel
	SCBK          [16]byte
	UseCRC        bool
	EnforceSecure bool
	CommandQueueSize int
}

type pendingCommand struct {
	code      catalog.CommandCode
	record    any
	sequence  uint8
	sentAt    time.Time
	retries   int
}

type session struct {
	address uint8
	channel osdp.Channel
	record  *osdp.Record
	rx      *fifo.Fifo

	useCRC        bool
	enforceSecure bool

	sendSeq uint8
	pending *pendingCommand

	cmdQueue *osdp.Queue[queuedCommand]

	lastPollAt   time.Time
	offlineSince time.Time
}

type queuedCommand struct {
	code   catalog.CommandCode
	record any
}

// CP manages a set of PD sessions, each independently state-machined.
type CP struct {
	logger *slog.Logger
	cipher secure.BlockCipher
	rng    secure.RandomSource

	pollIntervalMs    int
	responseTimeoutMs int
	offlineBackoffMs  int
	maxRetries        int
	ignoreUnsolicited bool
	eventCallback     EventCallback

	sessions map[uint8]*session
}

// New constructs a CP. Cipher and RNG are required external collaborators.
func New(opts Options) (*CP, error) {
	if opts.Cipher == nil || opts.RNG == nil {
		return nil, osdp.ErrIllegalArgument
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cp := &CP{
		logger:            logger.With("role", "cp"),
		cipher:            opts.Cipher,
		rng:               opts.RNG,
		pollIntervalMs:    orDefault(opts.PollIntervalMs, defaultPollIntervalMs),
		responseTimeoutMs: orDefault(opts.ResponseTimeoutMs, defaultResponseTimeoutMs),
		offlineBackoffMs:  orDefault(opts.OfflineBackoffMs, defaultOfflineBackoffMs),
		maxRetries:        orDefault(opts.MaxRetries, defaultMaxRetries),
		ignoreUnsolicited: opts.IgnoreUnsolicited,
		eventCallback:     opts.EventCallback,
		sessions:          make(map[uint8]*session),
	}
	return cp, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// AddPD registers a new managed peripheral, starting its session at init.
func (cp *CP) AddPD(address uint8, opts PDOptions) error {
	if opts.Channel == nil {
		return osdp.ErrIllegalArgument
	}
	qsize := opts.CommandQueueSize
	if qsize <= 0 {
		qsize = defaultCommandQueueSize
	}
	rec := osdp.NewRecord(address, opts.Channel.ID())
	rec.SCBK = opts.SCBK
	rec.UsingSCBKD = opts.SCBK == [16]byte{}
	if rec.UsingSCBKD {
		rec.SCBK = secure.DefaultSCBKD
	}
	cp.sessions[address] = &session{
		address:       address,
		channel:       opts.Channel,
		record:        rec,
		rx:            fifo.New(rxScratchSize),
		useCRC:        opts.UseCRC,
		enforceSecure: opts.EnforceSecure,
		cmdQueue:      osdp.NewQueue[queuedCommand](qsize),
	}
	return nil
}

// Record returns the live record for address, if managed.
func (cp *CP) Record(address uint8) (*osdp.Record, bool) {
	s, ok := cp.sessions[address]
	if !ok {
		return nil, false
	}
	return s.record, true
}

// QueueCommand enqueues an application-level command to be issued the next
// time the session is online and idle, ahead of the default POLL cadence.
func (cp *CP) QueueCommand(address uint8, code catalog.CommandCode, record any) error {
	s, ok := cp.sessions[address]
	if !ok {
		return osdp.ErrIllegalArgument
	}
	return s.cmdQueue.Push(queuedCommand{code: code, record: record})
}

// Refresh ticks every managed session once. Each call is non-blocking.
func (cp *CP) Refresh() error {
	for _, s := range cp.sessions {
		if err := cp.refreshSession(s); err != nil {
			cp.logger.Warn("session refresh error", "address", s.address, "error", err)
		}
	}
	return nil
}

func (cp *CP) refreshSession(s *session) error {
	var buf [rxScratchSize]byte
	n, err := s.channel.Recv(buf[:])
	if err != nil && err != osdp.ErrWouldBlock {
		return err
	}
	if n > 0 {
		s.rx.Write(buf[:n], nil)
	}

	var scratch [rxScratchSize]byte
	peeked := s.rx.Peek(scratch[:])
	result, frame, consumed := packet.Parse(scratch[:peeked], s.address)
	switch result {
	case packet.ResultNeedMore:
		// fallthrough to timeout/poll bookkeeping below
	case packet.ResultSoftDiscard:
		s.rx.Discard(consumed)
		s.record.SoftDiscardCount++
	case packet.ResultMalformed:
		s.rx.Discard(consumed)
	case packet.ResultComplete:
		s.rx.Discard(consumed)
		s.record.LastActivity = time.Now()
		cp.handleFrame(s, frame)
	}

	if s.pending != nil {
		cp.checkTimeout(s)
		return nil
	}

	return cp.advance(s)
}

func (cp *CP) checkTimeout(s *session) {
	elapsed := time.Since(s.pending.sentAt)
	if elapsed < time.Duration(cp.responseTimeoutMs)*time.Millisecond {
		return
	}
	if s.pending.retries < cp.maxRetries {
		s.pending.retries++
		s.pending.sentAt = time.Now()
		cp.send(s, s.pending.code, s.pending.record, s.pending.sequence)
		return
	}
	cp.logger.Warn("command timed out", "address", s.address, "command", s.pending.code)
	s.pending = nil
	cp.goOffline(s)
}

func (cp *CP) goOffline(s *session) {
	s.record.State = osdp.StateOffline
	s.record.Online = false
	s.record.ResetSecureChannel()
	s.offlineSince = time.Now()
}

// handleFrame matches a reply to the outstanding command (or treats it as
// unsolicited) and routes it to the state-specific handler.
func (cp *CP) handleFrame(s *session, frame *packet.Frame) {
	if len(frame.Payload) < 1 {
		return
	}

	payload := frame.Payload
	if s.record.SecureActive {
		plain, err := cp.unwrapSecureReply(s, frame)
		if err != nil {
			// Invariant 3: an unwrapped (or unverifiable) data packet while
			// secure-active ends the session, it is never silently accepted.
			cp.logger.Warn("secure reply verify failed", "address", s.address, "error", err)
			cp.goOffline(s)
			return
		}
		payload = plain
	}

	code := catalog.ReplyCode(payload[0])
	reply, err := catalog.DecodeReply(code, payload[1:])
	if err != nil {
		return
	}

	if s.pending == nil || frame.Sequence != s.pending.sequence {
		cp.handleUnsolicited(s, reply)
		return
	}

	pending := s.pending
	s.pending = nil

	if reply.Code == catalog.ReplyNak {
		cp.handleNak(s, pending, reply.Record.(catalog.Nak))
		return
	}

	switch s.record.State {
	case osdp.StateIDReq:
		cp.onIDReply(s, reply)
	case osdp.StateCapReq:
		cp.onCapReply(s, reply)
	case osdp.StateSCChlng:
		cp.onChlngReply(s, reply, frame)
	case osdp.StateSCScrypt:
		cp.onScryptReply(s, reply)
	case osdp.StateOnline:
		cp.onOnlineReply(s, reply)
	}
}

// unwrapSecureReply reverses the PD's SCS_16/18 wrap on an incoming reply
// while the secure channel is active, mirroring pkg/pd's unwrapSecureCommand.
func (cp *CP) unwrapSecureReply(s *session, frame *packet.Frame) ([]byte, error) {
	if frame.SCB == nil || len(frame.Payload) < 5 {
		return nil, osdp.ErrSecureCondition
	}
	header := []byte{2, frame.SCB.Type}
	body := frame.Payload[:len(frame.Payload)-4]
	var tag [4]byte
	copy(tag[:], frame.Payload[len(frame.Payload)-4:])

	switch frame.SCB.Type {
	case packet.SCSReplyMACOnly:
		newMAC, err := secure.MACOnlyVerify(cp.cipher, s.record.SMac1, s.record.SMac2, s.record.CMAC, header, body, tag)
		if err != nil {
			return nil, err
		}
		s.record.CMAC = newMAC
		return body, nil
	case packet.SCSReplyEncrypted:
		opcode := body[0]
		plain, newMAC, err := secure.UnwrapPayload(cp.cipher, s.record.SEnc, s.record.SMac1, s.record.SMac2, s.record.CMAC, header, body[1:], tag)
		if err != nil {
			return nil, err
		}
		s.record.CMAC = newMAC
		return append([]byte{opcode}, plain...), nil
	default:
		return nil, osdp.ErrSecureCondition
	}
}

func (cp *CP) handleUnsolicited(s *session, reply catalog.Reply) {
	if cp.ignoreUnsolicited {
		cp.logger.Debug("dropped unsolicited reply", "address", s.address, "reply", reply.Code)
		return
	}
	cp.logger.Warn("unsolicited reply ended session", "address", s.address, "reply", reply.Code)
	cp.goOffline(s)
}

func (cp *CP) handleNak(s *session, pending *pendingCommand, nak catalog.Nak) {
	cp.logger.Warn("command nakked", "address", s.address, "command", pending.code, "nak", nak.Code)
	switch s.record.State {
	case osdp.StateOnline:
		// A NAK on an application command doesn't end the session.
	case osdp.StateSCChlng, osdp.StateSCScrypt:
		// PD refused (or doesn't support) the secure channel. Fall back to
		// an insecure session unless the deployment requires security.
		s.record.ResetSecureChannel()
		if s.enforceSecure {
			cp.goOffline(s)
			return
		}
		s.record.State = osdp.StateOnline
		s.record.Online = true
	default:
		cp.goOffline(s)
	}
}

func (cp *CP) onIDReply(s *session, reply catalog.Reply) {
	pdid := reply.Record.(catalog.PDID)
	s.record.VendorOUI = pdid.VendorOUI
	s.record.Model = pdid.Model
	s.record.Version = pdid.Version
	s.record.Serial = pdid.Serial
	s.record.FirmwareVersion = pdid.Firmware
	s.record.State = osdp.StateCapReq
}

func (cp *CP) onCapReply(s *session, reply catalog.Reply) {
	pdcap := reply.Record.(catalog.PDCap)
	s.record.Capabilities = make(map[osdp.CapabilityCode]osdp.Capability, len(pdcap.Entries))
	for _, e := range pdcap.Entries {
		s.record.Capabilities[e.Code] = osdp.Capability{ComplianceLevel: e.ComplianceLevel, NumItems: e.NumItems}
	}
	s.record.State = osdp.StateSCInit
}

func (cp *CP) onChlngReply(s *session, reply catalog.Reply, frame *packet.Frame) {
	ccrypt := reply.Record.(catalog.CCrypt)
	s.record.PDRandom = ccrypt.PDRandom
	s.record.PDClientUID = ccrypt.PDClientUID

	// §4.6: the CCRYPT reply's SCB carries a one-byte SCBK-vs-SCBK-D
	// indicator (0 = SCBK-D, 1 = SCBK) — the PD, not the CP, decides which
	// key it used, so the CP must follow it before deriving session keys.
	if frame.SCB != nil && len(frame.SCB.Data) > 0 && frame.SCB.Data[0] == 0 {
		s.record.SCBK = secure.DefaultSCBKD
		s.record.UsingSCBKD = true
	}

	sEnc, sMac1, sMac2 := secure.DeriveSessionKeys(cp.cipher, s.record.SCBK, s.record.CPRandom)
	s.record.SEnc, s.record.SMac1, s.record.SMac2 = sEnc, sMac1, sMac2

	want := secure.PDCryptogram(cp.cipher, sEnc, s.record.CPRandom, ccrypt.PDRandom)
	if want != ccrypt.PDCryptogram {
		cp.logger.Warn("PD cryptogram mismatch", "address", s.address)
		s.record.ResetSecureChannel()
		if s.enforceSecure {
			cp.goOffline(s)
			return
		}
		s.record.State = osdp.StateOnline
		s.record.Online = true
		return
	}
	s.record.CPCryptogram = secure.CPCryptogram(cp.cipher, sEnc, ccrypt.PDRandom, s.record.CPRandom)
	s.record.State = osdp.StateSCScrypt
}

func (cp *CP) onScryptReply(s *session, reply catalog.Reply) {
	rmaci := reply.Record.(catalog.RMacI)
	s.record.RMAC = rmaci.RMAC
	s.record.CMAC = rmaci.RMAC
	s.record.SecureActive = true
	s.record.State = osdp.StateOnline
	s.record.Online = true
}

func (cp *CP) onOnlineReply(s *session, reply catalog.Reply) {
	if reply.Code != catalog.ReplyAck && cp.eventCallback != nil {
		cp.eventCallback(s.address, reply)
	}
}

// advance issues the next command for a session with no outstanding reply:
// the handshake progression while joining, or POLL/queued commands once
// online.
func (cp *CP) advance(s *session) error {
	switch s.record.State {
	case osdp.StateInit:
		return cp.sendIDRequest(s)
	case osdp.StateCapReq:
		return cp.sendCapRequest(s)
	case osdp.StateSCInit:
		return cp.sendChlng(s)
	case osdp.StateSCScrypt:
		return cp.sendCommand(s, catalog.CmdScrypt, catalog.Scrypt{CPCryptogram: s.record.CPCryptogram})
	case osdp.StateOnline:
		return cp.advanceOnline(s)
	case osdp.StateOffline:
		if time.Since(s.offlineSince) >= time.Duration(cp.offlineBackoffMs)*time.Millisecond {
			s.record.State = osdp.StateInit
		}
		return nil
	default:
		return nil
	}
}

func (cp *CP) advanceOnline(s *session) error {
	if queued, ok := s.cmdQueue.Pop(); ok {
		return cp.sendCommand(s, queued.code, queued.record)
	}
	if time.Since(s.lastPollAt) < time.Duration(cp.pollIntervalMs)*time.Millisecond {
		return nil
	}
	s.lastPollAt = time.Now()
	return cp.sendCommand(s, catalog.CmdPoll, catalog.Poll{})
}

func (cp *CP) sendIDRequest(s *session) error {
	s.record.State = osdp.StateIDReq
	return cp.sendCommand(s, catalog.CmdID, catalog.IDRequest{})
}

func (cp *CP) sendCapRequest(s *session) error {
	return cp.sendCommand(s, catalog.CmdCap, catalog.CapRequest{})
}

func (cp *CP) sendChlng(s *session) error {
	var cpRandom [8]byte
	if err := cp.rng.Fill(cpRandom[:]); err != nil {
		return err
	}
	s.record.ResetSecureChannel()
	s.record.CPRandom = cpRandom
	s.record.State = osdp.StateSCChlng
	return cp.sendCommand(s, catalog.CmdChlng, catalog.Chlng{CPRandom: cpRandom})
}

func (cp *CP) nextSeq(s *session) uint8 {
	if s.sendSeq == 0 {
		s.sendSeq = 1
		return 0
	}
	seq := s.sendSeq
	s.sendSeq = s.sendSeq%3 + 1
	return seq
}

func (cp *CP) sendCommand(s *session, code catalog.CommandCode, record any) error {
	seq := cp.nextSeq(s)
	s.pending = &pendingCommand{code: code, record: record, sequence: seq, sentAt: time.Now()}
	return cp.send(s, code, record, seq)
}

func (cp *CP) send(s *session, code catalog.CommandCode, record any, seq uint8) error {
	_, data, err := catalog.EncodeCommand(record)
	if err != nil {
		return err
	}
	payload := append([]byte{uint8(code)}, data...)

	var scb *packet.SCB
	if s.record.SecureActive {
		scb, payload, err = cp.wrapSecureCommand(s, payload)
		if err != nil {
			return err
		}
	}

	frame := &packet.Frame{
		Address:  s.address,
		Sequence: seq,
		UseCRC:   s.useCRC,
		SCB:      scb,
		Payload:  payload,
	}
	wire, err := packet.Build(frame, defaultMaxLen)
	if err != nil {
		return err
	}
	_, err = s.channel.Send(wire)
	return err
}

// wrapSecureCommand builds the SCS_15/17 data-security SCB for an outgoing
// command and seals payload accordingly, advancing s.record.CMAC — the CP
// side mirror of pkg/pd's wrapSecureReply.
func (cp *CP) wrapSecureCommand(s *session, payload []byte) (*packet.SCB, []byte, error) {
	if len(payload) > 1 {
		scbType := uint8(packet.SCSCmdEncrypted)
		header := []byte{2, scbType}
		ciphertext, tag, newMAC := secure.WrapPayload(cp.cipher, s.record.SEnc, s.record.SMac1, s.record.SMac2, s.record.CMAC, header, payload[1:])
		s.record.CMAC = newMAC
		wire := append([]byte{payload[0]}, ciphertext...)
		wire = append(wire, tag[:]...)
		return &packet.SCB{Type: scbType}, wire, nil
	}

	scbType := uint8(packet.SCSCmdMACOnly)
	header := []byte{2, scbType}
	tag, newMAC := secure.MACOnlyWrap(cp.cipher, s.record.SMac1, s.record.SMac2, s.record.CMAC, header, payload)
	s.record.CMAC = newMAC
	wire := append(append([]byte(nil), payload...), tag[:]...)
	return &packet.SCB{Type: scbType}, wire, nil
}
