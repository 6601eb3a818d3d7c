// Package filetransfer implements the file-transfer overlay (§4.8): a
// sequence of FILETRANSFER commands carrying (offset, chunk) tuples, paired
// with FTSTAT replies advancing the cursor, layered over the ordinary
// command/reply cycle rather than replacing it — one chunk per tick, so
// POLLs are never starved.
package filetransfer

import (
	"github.com/osdp-go/osdp"
	"github.com/osdp-go/osdp/internal/fifo"
	"github.com/osdp-go/osdp/pkg/catalog"
	"github.com/osdp-go/osdp/pkg/cp"
	"github.com/osdp-go/osdp/pkg/pd"
)

// Sender drives an outbound transfer from the CP side: it reads chunks from
// an application-supplied File and produces one FILETRANSFER command at a
// time (Start, then HandleReply), advancing its cursor only once the
// matching FTSTAT reply confirms receipt.
type Sender struct {
	file   osdp.File
	fileID uint8
	mtu    int
	cursor osdp.FileCursor
}

// NewSender returns a Sender for fileID, chunking at most mtu bytes per
// FILETRANSFER command.
func NewSender(file osdp.File, fileID uint8, mtu int) *Sender {
	return &Sender{file: file, fileID: fileID, mtu: mtu}
}

// Start opens the backing file and reports the first chunk to send.
func (s *Sender) Start() (catalog.FileTransfer, error) {
	size, err := s.file.Open(int(s.fileID))
	if err != nil {
		return catalog.FileTransfer{}, osdp.ErrFileIO
	}
	s.cursor = osdp.FileCursor{Active: true, FileID: int(s.fileID), TotalSize: size}
	return s.nextChunk()
}

// Active reports whether a transfer is in progress.
func (s *Sender) Active() bool { return s.cursor.Active }

// Cursor exposes transfer progress for status queries.
func (s *Sender) Cursor() osdp.FileCursor { return s.cursor }

func (s *Sender) nextChunk() (catalog.FileTransfer, error) {
	remaining := s.cursor.Remaining()
	chunkLen := int64(s.mtu)
	if remaining < chunkLen {
		chunkLen = remaining
	}
	buf := make([]byte, chunkLen)
	n, err := s.file.Read(buf, s.cursor.Offset)
	if err != nil {
		s.abort()
		return catalog.FileTransfer{}, osdp.ErrFileIO
	}
	return catalog.FileTransfer{
		FileID:    s.fileID,
		TotalSize: uint32(s.cursor.TotalSize),
		Offset:    uint32(s.cursor.Offset),
		Data:      buf[:n],
	}, nil
}

// HandleReply consumes an FTSTAT reply, advances the cursor, and — unless
// the transfer just completed — returns the next chunk to send.
func (s *Sender) HandleReply(ft catalog.Ftstat) (next catalog.FileTransfer, hasNext bool, err error) {
	if !s.cursor.Active {
		return catalog.FileTransfer{}, false, nil
	}
	s.cursor.Offset = int64(ft.Offset)
	if s.cursor.Remaining() <= 0 {
		s.file.Close()
		s.cursor.Active = false
		return catalog.FileTransfer{}, false, nil
	}
	next, err = s.nextChunk()
	return next, err == nil, err
}

// Cancel builds the abort command the application should send to end the
// transfer mid-stream, per FileTxFlagCancel.
func (s *Sender) Cancel() catalog.FileTransfer {
	s.abort()
	return catalog.FileTransfer{FileID: s.fileID, Flags: catalog.FileTxFlagCancel}
}

func (s *Sender) abort() {
	if s.cursor.Active {
		s.file.Close()
	}
	s.cursor.Active = false
}

// Drive queues the given chunk as a FILETRANSFER command on the session — a
// thin adapter for callers that already manage a cp.CP. It installs no reply
// hook: the caller passes each FTSTAT reply to HandleReply and drives the
// next chunk itself.
func Drive(c *cp.CP, address uint8, chunk catalog.FileTransfer) error {
	return c.QueueCommand(address, catalog.CmdFileTransfer, chunk)
}

// Receiver handles inbound FILETRANSFER commands on the PD side, writing
// each chunk to an application-supplied File and answering with the new
// cursor offset. Each chunk is staged through an internal/fifo buffer that
// is reset per command and drained in full before the file write; a failed
// write is reported as osdp.ErrFileIO and is not resumed.
type Receiver struct {
	file   osdp.File
	mtu    int
	cursor osdp.FileCursor
	stage  *fifo.Fifo
}

// NewReceiver returns a Receiver that writes chunks of at most mtu bytes.
func NewReceiver(file osdp.File, mtu int) *Receiver {
	// fifo keeps one slot free, so an mtu-byte chunk needs mtu+1 slots.
	return &Receiver{file: file, mtu: mtu, stage: fifo.New(mtu + 1)}
}

// Handle processes one FILETRANSFER command and returns the FTSTAT reply.
func (r *Receiver) Handle(cmd catalog.FileTransfer) (catalog.Ftstat, error) {
	if cmd.Flags&catalog.FileTxFlagCancel != 0 {
		r.abort()
		return catalog.Ftstat{Status: statusCancelled, MaxTxSize: uint16(r.mtu)}, nil
	}

	if cmd.Offset == 0 {
		if _, err := r.file.Open(int(cmd.FileID)); err != nil {
			return catalog.Ftstat{}, osdp.ErrFileIO
		}
		r.cursor = osdp.FileCursor{Active: true, FileID: int(cmd.FileID), TotalSize: int64(cmd.TotalSize)}
	}
	if !r.cursor.Active {
		return catalog.Ftstat{Status: statusCancelled}, osdp.ErrFileIO
	}

	r.stage.Reset()
	r.stage.Write(cmd.Data, nil)
	buf := make([]byte, r.stage.GetOccupied())
	var eof bool
	n := r.stage.Read(buf, &eof)

	if _, err := r.file.Write(buf[:n], int64(cmd.Offset)); err != nil {
		return catalog.Ftstat{}, osdp.ErrFileIO
	}
	r.cursor.Offset = int64(cmd.Offset) + int64(n)

	if r.cursor.Remaining() <= 0 {
		r.file.Close()
		r.cursor.Active = false
	}
	return catalog.Ftstat{Status: statusOK, MaxTxSize: uint16(r.mtu), Offset: uint32(r.cursor.Offset)}, nil
}

// Cursor exposes transfer progress for status queries.
func (r *Receiver) Cursor() osdp.FileCursor { return r.cursor }

func (r *Receiver) abort() {
	if r.cursor.Active {
		r.file.Close()
	}
	r.cursor.Active = false
}

const (
	statusOK        = 0
	statusCancelled = 3
)

// CommandResult adapts a Receiver into a pd.CommandCallback response for the
// application's outer callback to return directly.
func (r *Receiver) CommandResult(cmd catalog.Command) (pd.CommandResult, bool) {
	ft, ok := cmd.Record.(catalog.FileTransfer)
	if !ok {
		return pd.CommandResult{}, false
	}
	reply, err := r.Handle(ft)
	if err != nil {
		return pd.CommandResult{Action: pd.ReplyActionNak, Nak: osdp.NakRecord}, true
	}
	return pd.CommandResult{Action: pd.ReplyActionRecord, Record: reply}, true
}
