// Package pd implements the Peripheral Device role state machine (§4.6): a
// single-threaded, tick-driven responder that decodes one inbound command
// per Refresh call, runs the secure-channel handshake, and replies in kind.
// It never blocks and never spawns a goroutine — the host application calls
// Refresh from its own loop, the way the original drives its CAN stack from
// a single Process call, adapted here to cooperative, non-blocking ticks
// (see the pkg/cp notes in DESIGN.md's package layout).
package pd

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
	rxScratchSize  = 256
	defaultMaxLen  = 256
	defaultEventCap = 8
)

// ReplyAction tells Refresh how to answer a command once the application
// callback has run.
type ReplyAction int

const (
	ReplyActionDefault ReplyAction = iota // ACK
	ReplyActionNak
	ReplyActionMfgrep
	ReplyActionRecord // Record holds an arbitrary typed reply (e.g. Ftstat)
)

// CommandResult is what the application's command callback returns.
type CommandResult struct {
	Action ReplyAction
	Nak    osdp.NakCode
	Mfgrep catalog.Mfg
	Record any
}

// CommandCallback is invoked for commands that carry application
// semantics (output control, LED, buzzer, text, manufacturer). Commands
// the state machine itself must answer (poll, id, cap, the secure
// handshake) never reach it.
type CommandCallback func(cmd catalog.Command) CommandResult

// Options configures a PD. Address, VendorOUI/Model/Version/Serial/Firmware
// and Capabilities describe the unit's identity; Cipher/RNG are the
// external secure-channel collaborators (§6); SCBK is the provisioned key,
// left zero to operate only with the default install-mode key.
type Options struct {
	Address      uint8
	UseCRC       bool
	VendorOUI    [3]byte
	Model        uint8
	Version      uint8
	Serial       [4]byte
	Firmware     [3]byte
	Capabilities map[osdp.CapabilityCode]osdp.Capability

	SCBK          [16]byte
	EnforceSecure bool

	Cipher secure.BlockCipher
	RNG    secure.RandomSource
	Logger *slog.Logger

	CommandCallback CommandCallback
	EventQueueSize  int
}

// PD is one peripheral device endpoint bound to a single channel.
type PD struct {
	logger   *slog.Logger
	channel  osdp.Channel
	record   *osdp.Record
	cipher   secure.BlockCipher
	rng      secure.RandomSource
	callback CommandCallback
	enforceSecure bool
	useCRC   bool

	rx       *fifo.Fifo
	events   *osdp.Queue[catalog.Reply]

	expectSeq uint8
	lastSeq   uint8
	haveSeq   bool
}

// Setup constructs a PD bound to channel, ready for Refresh to drive.
func Setup(channel osdp.Channel, opts Options) (*PD, error) {
	if channel == nil {
		return nil, osdp.ErrIllegalArgument
	}
	if opts.Cipher == nil || opts.RNG == nil {
		return nil, osdp.ErrIllegalArgument
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eventCap := opts.EventQueueSize
	if eventCap <= 0 {
		eventCap = defaultEventCap
	}

	rec := osdp.NewRecord(opts.Address, channel.ID())
	rec.IsPDRole = true
	rec.VendorOUI = opts.VendorOUI
	rec.Model = opts.Model
	rec.Version = opts.Version
	rec.Serial = opts.Serial
	rec.FirmwareVersion = opts.Firmware
	if opts.Capabilities != nil {
		rec.Capabilities = opts.Capabilities
	}
	rec.SCBK = opts.SCBK
	rec.UsingSCBKD = opts.SCBK == [16]byte{}
	if rec.UsingSCBKD {
		rec.SCBK = secure.DefaultSCBKD
		rec.InstallMode = true
	}

	return &PD{
		logger:        logger.With("role", "pd", "address", opts.Address),
		channel:       channel,
		record:        rec,
		cipher:        opts.Cipher,
		rng:           opts.RNG,
		callback:      opts.CommandCallback,
		enforceSecure: opts.EnforceSecure,
		useCRC:        opts.UseCRC,
		rx:            fifo.New(rxScratchSize),
		events:        osdp.NewQueue[catalog.Reply](eventCap),
	}, nil
}

// Record exposes the PD's session/identity record for diagnostics.
func (p *PD) Record() *osdp.Record { return p.record }

// QueueEvent enqueues an unsolicited reply (e.g. a card read) to be
// delivered on the next POLL. It returns osdp.ErrAllocFailed if the event
// queue is full (§7 alloc_failed policy — no blocking, no silent growth).
func (p *PD) QueueEvent(reply catalog.Reply) error {
	return p.events.Push(reply)
}

// Refresh performs at most one non-blocking read/parse/reply cycle. The
// host calls it on every tick (≥20 Hz per §5); a single call never blocks
// on Recv/Send and decodes at most one command.
func (p *PD) Refresh() error {
	var buf [rxScratchSize]byte
	n, err := p.channel.Recv(buf[:])
	if err != nil && err != osdp.ErrWouldBlock {
		return err
	}
	if n > 0 {
		p.rx.Write(buf[:n], nil)
	}

	var scratch [rxScratchSize]byte
	peeked := p.rx.Peek(scratch[:])
	result, frame, consumed := packet.Parse(scratch[:peeked], p.record.Address)

	switch result {
	case packet.ResultNeedMore:
		return nil
	case packet.ResultSoftDiscard:
		p.rx.Discard(consumed)
		p.record.SoftDiscardCount++
		return nil
	case packet.ResultMalformed:
		p.rx.Discard(consumed)
		p.logger.Warn("malformed frame discarded", "bytes", consumed)
		return nil
	}
	p.rx.Discard(consumed)
	p.record.LastActivity = time.Now()

	return p.handleFrame(frame)
}

func (p *PD) handleFrame(frame *packet.Frame) error {
	if len(frame.Payload) < 1 {
		return p.replyNak(osdp.NakRecord)
	}

	p.lastSeq = frame.Sequence
	if frame.Sequence == 0 {
		// advanceSeq below moves the expected sequence from 0 to 1.
		p.haveSeq = true
		p.expectSeq = 0
	} else if !p.haveSeq || frame.Sequence != p.expectSeq {
		return p.replyNak(osdp.NakSeqNum)
	}

	payload := frame.Payload
	if p.record.SecureActive {
		plain, err := p.unwrapSecureCommand(frame)
		if err != nil {
			// Invariant 3: an unwrapped (or unverifiable) data packet while
			// secure-active ends the session, it is never silently accepted.
			p.record.ResetSecureChannel()
			p.advanceSeq()
			return p.replyNak(osdp.NakScCond)
		}
		payload = plain
	}

	code := catalog.CommandCode(payload[0])
	data := payload[1:]

	cmd, err := catalog.DecodeCommand(code, data)
	if err == osdp.ErrUnknownCommand {
		p.advanceSeq()
		return p.replyNak(osdp.NakCmdUnknown)
	}
	if err != nil {
		p.advanceSeq()
		return p.replyNak(osdp.NakRecord)
	}

	p.advanceSeq()

	switch cmd.Code {
	case catalog.CmdLstat:
		return p.replyRecord(catalog.Lstatr{Tamper: p.record.Tamper, Power: p.record.PowerReport})
	case catalog.CmdRstat:
		return p.replyRecord(catalog.PointStatus{
			Code:   catalog.ReplyRstatr,
			Points: append([]byte(nil), p.record.ReaderTamperStatus...),
		})
	}

	switch rec := cmd.Record.(type) {
	case catalog.Poll:
		return p.handlePoll()
	case catalog.IDRequest:
		return p.handleIDRequest()
	case catalog.CapRequest:
		return p.handleCapRequest()
	case catalog.Chlng:
		return p.handleChlng(rec)
	case catalog.Scrypt:
		return p.handleScrypt(rec)
	case catalog.Keyset:
		return p.handleKeyset(rec)
	default:
		return p.handleApplicationCommand(cmd)
	}
}

// unwrapSecureCommand reverses the CP's SCS_15/17 wrap on an incoming
// command while the secure channel is active: MAC-only frames (no data
// beyond the opcode) are verified as-is, encrypted frames are verified then
// decrypted. Either path advances the running MAC chain on success.
func (p *PD) unwrapSecureCommand(frame *packet.Frame) ([]byte, error) {
	if frame.SCB == nil || len(frame.Payload) < 5 {
		return nil, osdp.ErrSecureCondition
	}
	header := []byte{2, frame.SCB.Type}
	body := frame.Payload[:len(frame.Payload)-4]
	var tag [4]byte
	copy(tag[:], frame.Payload[len(frame.Payload)-4:])

	switch frame.SCB.Type {
	case packet.SCSCmdMACOnly:
		newMAC, err := secure.MACOnlyVerify(p.cipher, p.record.SMac1, p.record.SMac2, p.record.CMAC, header, body, tag)
		if err != nil {
			return nil, err
		}
		p.record.CMAC = newMAC
		return body, nil
	case packet.SCSCmdEncrypted:
		opcode := body[0]
		plain, newMAC, err := secure.UnwrapPayload(p.cipher, p.record.SEnc, p.record.SMac1, p.record.SMac2, p.record.CMAC, header, body[1:], tag)
		if err != nil {
			return nil, err
		}
		p.record.CMAC = newMAC
		return append([]byte{opcode}, plain...), nil
	default:
		return nil, osdp.ErrSecureCondition
	}
}

func (p *PD) advanceSeq() {
	if p.expectSeq == 0 {
		p.expectSeq = 1
		return
	}
	p.expectSeq = p.expectSeq%3 + 1
}

func (p *PD) handlePoll() error {
	if reply, ok := p.events.Pop(); ok {
		return p.replyRecord(reply.Record)
	}
	return p.replyRecord(catalog.Ack{})
}

func (p *PD) handleIDRequest() error {
	return p.replyRecord(catalog.PDID{
		VendorOUI: p.record.VendorOUI,
		Model:     p.record.Model,
		Version:   p.record.Version,
		Serial:    p.record.Serial,
		Firmware:  p.record.FirmwareVersion,
	})
}

func (p *PD) handleCapRequest() error {
	entries := make([]catalog.CapabilityEntry, 0, len(p.record.Capabilities))
	for code, c := range p.record.Capabilities {
		entries = append(entries, catalog.CapabilityEntry{
			Code:            code,
			ComplianceLevel: c.ComplianceLevel,
			NumItems:        c.NumItems,
		})
	}
	return p.replyRecord(catalog.PDCap{Entries: entries})
}

// handleChlng implements the PD side of the SCS_11/SCS_12 handshake open:
// reset any prior session, remember the CP's random, derive session keys,
// and answer with our own random plus the cryptogram proving we hold SCBK.
func (p *PD) handleChlng(chlng catalog.Chlng) error {
	p.record.ResetSecureChannel()
	p.record.CPRandom = chlng.CPRandom

	var pdRandom [8]byte
	if err := p.rng.Fill(pdRandom[:]); err != nil {
		return p.replyNak(osdp.NakScCond)
	}
	p.record.PDRandom = pdRandom

	sEnc, sMac1, sMac2 := secure.DeriveSessionKeys(p.cipher, p.record.SCBK, p.record.CPRandom)
	p.record.SEnc, p.record.SMac1, p.record.SMac2 = sEnc, sMac1, sMac2
	p.record.PDCryptogram = secure.PDCryptogram(p.cipher, sEnc, p.record.CPRandom, pdRandom)

	var clientUID [8]byte
	copy(clientUID[:3], p.record.VendorOUI[:])
	copy(clientUID[3:], p.record.Serial[:])
	p.record.PDClientUID = clientUID

	// §4.6: the CCRYPT reply's SCB carries a one-byte SCBK-vs-SCBK-D
	// indicator (0 = SCBK-D, 1 = SCBK), mirroring pd_build_reply's
	// "smb[2] = ISSET_FLAG(pd, PD_FLAG_SC_USE_SCBKD) ? 0 : 1" — it belongs
	// in the SCB header, not the CCrypt payload.
	scbkdByte := byte(1)
	if p.record.UsingSCBKD {
		scbkdByte = 0
	}
	return p.replyFrame(catalog.CCrypt{
		PDClientUID:  clientUID,
		PDRandom:     pdRandom,
		PDCryptogram: p.record.PDCryptogram,
	}, &packet.SCB{Type: packet.SCSHandshakeReply, Data: []byte{scbkdByte}})
}

// handleScrypt verifies the CP's cryptogram (proof it derived the same
// S-ENC) and, on success, activates the secure channel and answers with
// the R-MAC seed the CP will use to start the MAC chain.
func (p *PD) handleScrypt(s catalog.Scrypt) error {
	want := secure.CPCryptogram(p.cipher, p.record.SEnc, p.record.PDRandom, p.record.CPRandom)
	if want != s.CPCryptogram {
		p.record.ResetSecureChannel()
		return p.replyNak(osdp.NakScCond)
	}
	p.record.RMAC = secure.MACAdvance(p.cipher, p.record.SMac1, p.record.SMac2, [16]byte{}, append(append([]byte{}, p.record.CPRandom[:]...), p.record.PDRandom[:]...))
	p.record.CMAC = p.record.RMAC
	// The R-MAC_I reply itself closes the handshake: send it under its own
	// handshake SCB, then flip secure-active so every reply after this one
	// goes through wrapSecureReply.
	err := p.replyFrame(catalog.RMacI{RMAC: p.record.RMAC}, &packet.SCB{Type: packet.SCSRMACInit})
	p.record.SecureActive = true
	return err
}

// handleKeyset implements §4.6's "KEYSET only under an active secure
// channel" rule: outside a secure session it is rejected with sc_cond,
// never silently accepted.
func (p *PD) handleKeyset(k catalog.Keyset) error {
	if !p.record.SecureActive {
		return p.replyNak(osdp.NakScCond)
	}
	if len(k.KeyData) != 16 {
		return p.replyNak(osdp.NakRecord)
	}
	copy(p.record.SCBK[:], k.KeyData)
	p.record.UsingSCBKD = false
	p.record.InstallMode = false
	return p.replyRecord(catalog.Ack{})
}

func (p *PD) handleApplicationCommand(cmd catalog.Command) error {
	if p.enforceSecure && !p.record.SecureActive {
		return p.replyNak(osdp.NakScCond)
	}
	if p.callback == nil {
		return p.replyRecord(catalog.Ack{})
	}
	result := p.callback(cmd)
	switch result.Action {
	case ReplyActionNak:
		return p.replyNak(result.Nak)
	case ReplyActionMfgrep:
		return p.replyRecord(result.Mfgrep)
	case ReplyActionRecord:
		return p.replyRecord(result.Record)
	default:
		return p.replyRecord(catalog.Ack{})
	}
}

func (p *PD) replyNak(code osdp.NakCode) error {
	return p.replyRecord(catalog.Nak{Code: code})
}

// replyRecord answers with record's canonical reply opcode, wrapped under
// the secure channel whenever one is active (Invariant 3: no reply leaves
// the PD unwrapped once secure-active is set).
func (p *PD) replyRecord(record any) error {
	return p.replyFrame(record, nil)
}

// replyFrame is replyRecord's general form: scb lets the secure-handshake
// replies (CCRYPT, R-MAC_I) attach their own handshake SCB instead of the
// data-security one replyFrame would otherwise build.
func (p *PD) replyFrame(record any, scb *packet.SCB) error {
	replyCode, data, err := catalog.EncodeReply(record)
	if err != nil {
		return err
	}
	payload := append([]byte{uint8(replyCode)}, data...)

	if scb == nil && p.record.SecureActive {
		var err error
		scb, payload, err = p.wrapSecureReply(payload)
		if err != nil {
			return err
		}
	}

	frame := &packet.Frame{
		Reply:    true,
		Address:  p.record.Address,
		Sequence: p.lastSeq,
		UseCRC:   p.useCRC,
		SCB:      scb,
		Payload:  payload,
	}
	wire, err := packet.Build(frame, defaultMaxLen)
	if err != nil {
		return err
	}
	_, err = p.channel.Send(wire)
	return err
}

// wrapSecureReply builds the SCS_16/18 data-security SCB for an outgoing
// reply and seals payload accordingly, advancing p.record.CMAC — mirroring
// pd_build_reply's "smb[1] = (len > 1) ? SCS_18 : SCS_16" rule: a reply that
// carries nothing beyond its opcode byte is sent MAC-only, anything larger
// is encrypted.
func (p *PD) wrapSecureReply(payload []byte) (*packet.SCB, []byte, error) {
	if len(payload) > 1 {
		scbType := uint8(packet.SCSReplyEncrypted)
		header := []byte{2, scbType}
		ciphertext, tag, newMAC := secure.WrapPayload(p.cipher, p.record.SEnc, p.record.SMac1, p.record.SMac2, p.record.CMAC, header, payload[1:])
		p.record.CMAC = newMAC
		wire := append([]byte{payload[0]}, ciphertext...)
		wire = append(wire, tag[:]...)
		return &packet.SCB{Type: scbType}, wire, nil
	}

	scbType := uint8(packet.SCSReplyMACOnly)
	header := []byte{2, scbType}
	tag, newMAC := secure.MACOnlyWrap(p.cipher, p.record.SMac1, p.record.SMac2, p.record.CMAC, header, payload)
	p.record.CMAC = newMAC
	wire := append(append([]byte(nil), payload...), tag[:]...)
	return &packet.SCB{Type: scbType}, wire, nil
}
