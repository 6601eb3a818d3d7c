package catalog

import "github.com/osdp-go/osdp"

// Command is a decoded CP->PD command: the opcode plus whichever typed
// record Decode produced.
type Command struct {
	Code    CommandCode
	Record  any
}

// Reply is a decoded PD->CP reply.
type Reply struct {
	Code   ReplyCode
	Record any
}

// DecodeCommand dispatches on code the way sdo_client.go's WriteRaw
// dispatches on a Go type to pick its wire encoding — here in reverse, wire
// opcode to Go type.
func DecodeCommand(code CommandCode, data []byte) (Command, error) {
	var (
		rec any
		err error
	)
	switch code {
	case CmdPoll:
		rec, err = DecodePoll(data)
	case CmdID:
		rec, err = DecodeIDRequest(data)
	case CmdCap:
		rec, err = DecodeCapRequest(data)
	case CmdLstat, CmdIstat, CmdOstat, CmdRstat:
		rec, err = DecodeStatusRequest(data)
	case CmdOut:
		rec, err = DecodeOut(data)
	case CmdLed:
		rec, err = DecodeLed(data)
	case CmdBuz:
		rec, err = DecodeBuz(data)
	case CmdText:
		rec, err = DecodeText(data)
	case CmdComset:
		rec, err = DecodeComset(data)
	case CmdKeyset:
		rec, err = DecodeKeyset(data)
	case CmdMfg:
		rec, err = DecodeMfg(data)
	case CmdChlng:
		rec, err = DecodeChlng(data)
	case CmdScrypt:
		rec, err = DecodeScrypt(data)
	case CmdFileTransfer:
		rec, err = DecodeFileTransfer(data)
	case CmdBioRead:
		rec, err = DecodeBioRead(data)
	default:
		return Command{}, osdp.ErrUnknownCommand
	}
	if err != nil {
		return Command{}, err
	}
	return Command{Code: code, Record: rec}, nil
}

// EncodeCommand is the encode-side counterpart, type-switching on the
// concrete record the same way sdo_client.go's WriteRaw type-switches on the
// value to write.
func EncodeCommand(record any) (CommandCode, []byte, error) {
	switch v := record.(type) {
	case Poll:
		b, err := v.Encode()
		return CmdPoll, b, err
	case IDRequest:
		b, err := v.Encode()
		return CmdID, b, err
	case CapRequest:
		b, err := v.Encode()
		return CmdCap, b, err
	case Out:
		b, err := v.Encode()
		return CmdOut, b, err
	case Led:
		b, err := v.Encode()
		return CmdLed, b, err
	case Buz:
		b, err := v.Encode()
		return CmdBuz, b, err
	case Text:
		b, err := v.Encode()
		return CmdText, b, err
	case Comset:
		b, err := v.Encode()
		return CmdComset, b, err
	case Keyset:
		b, err := v.Encode()
		return CmdKeyset, b, err
	case Mfg:
		b, err := v.Encode()
		return CmdMfg, b, err
	case Chlng:
		b, err := v.Encode()
		return CmdChlng, b, err
	case Scrypt:
		b, err := v.Encode()
		return CmdScrypt, b, err
	case FileTransfer:
		b, err := v.Encode()
		return CmdFileTransfer, b, err
	case BioRead:
		b, err := v.Encode()
		return CmdBioRead, b, err
	default:
		return 0, nil, osdp.ErrIllegalArgument
	}
}

// DecodeReply dispatches a reply opcode to its typed record.
func DecodeReply(code ReplyCode, data []byte) (Reply, error) {
	var (
		rec any
		err error
	)
	switch code {
	case ReplyAck:
		rec, err = DecodeAck(data)
	case ReplyNak:
		rec, err = DecodeNak(data)
	case ReplyPDID:
		rec, err = DecodePDID(data)
	case ReplyPDCap:
		rec, err = DecodePDCap(data)
	case ReplyLstatr:
		rec, err = DecodeLstatr(data)
	case ReplyIstatr, ReplyOstatr, ReplyRstatr:
		rec, err = DecodePointStatus(code, data)
	case ReplyCom:
		rec, err = DecodeCom(data)
	case ReplyCCrypt:
		rec, err = DecodeCCrypt(data)
	case ReplyRMacI:
		rec, err = DecodeRMacI(data)
	case ReplyFtstat:
		rec, err = DecodeFtstat(data)
	case ReplyBioReadr:
		rec, err = DecodeBioReadr(data)
	case ReplyRaw:
		rec, err = DecodeCardRaw(data)
	case ReplyFmt:
		rec, err = DecodeCardFmt(data)
	case ReplyKeypad:
		rec, err = DecodeKeypad(data)
	case ReplyMfgrep:
		rec, err = DecodeMfg(data)
	case ReplyBusy:
		rec, err = DecodeAck(data)
	default:
		return Reply{}, osdp.ErrUnknownCommand
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{Code: code, Record: rec}, nil
}

// EncodeReply is the encode-side counterpart for reply records.
func EncodeReply(record any) (ReplyCode, []byte, error) {
	switch v := record.(type) {
	case Ack:
		b, err := v.Encode()
		return ReplyAck, b, err
	case Nak:
		b, err := v.Encode()
		return ReplyNak, b, err
	case PDID:
		b, err := v.Encode()
		return ReplyPDID, b, err
	case PDCap:
		b, err := v.Encode()
		return ReplyPDCap, b, err
	case Lstatr:
		b, err := v.Encode()
		return ReplyLstatr, b, err
	case PointStatus:
		if v.Code != ReplyIstatr && v.Code != ReplyOstatr && v.Code != ReplyRstatr {
			return 0, nil, osdp.ErrIllegalArgument
		}
		b, err := v.Encode()
		return v.Code, b, err
	case Com:
		b, err := v.Encode()
		return ReplyCom, b, err
	case CCrypt:
		b, err := v.Encode()
		return ReplyCCrypt, b, err
	case RMacI:
		b, err := v.Encode()
		return ReplyRMacI, b, err
	case Ftstat:
		b, err := v.Encode()
		return ReplyFtstat, b, err
	case Mfg:
		b, err := v.Encode()
		return ReplyMfgrep, b, err
	default:
		return 0, nil, osdp.ErrIllegalArgument
	}
}
