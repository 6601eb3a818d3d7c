package filetransfer

import (
	"testing"

	"github.com/osdp-go/osdp/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFile is an in-memory osdp.File backed by a byte slice, standing in for
// the application-supplied backing store.
type memFile struct {
	data   []byte
	closed bool
}

func (f *memFile) Open(fileID int) (int64, error) {
	f.closed = false
	return int64(len(f.data)), nil
}

func (f *memFile) Read(buf []byte, offset int64) (int, error) {
	n := copy(buf, f.data[offset:])
	return n, nil
}

func (f *memFile) Write(buf []byte, offset int64) (int, error) {
	need := int(offset) + len(buf)
	if need > len(f.data) {
		grown := make([]byte, need)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[offset:], buf)
	return len(buf), nil
}

func (f *memFile) Close() error {
	f.closed = true
	return nil
}

func TestScenario6FileTransferByteForByte(t *testing.T) {
	source := make([]byte, 10000)
	for i := range source {
		source[i] = byte(i % 256)
	}
	src := &memFile{data: source}
	dst := &memFile{data: make([]byte, 0)}

	sender := NewSender(src, 7, 128)
	receiver := NewReceiver(dst, 128)

	chunk, err := sender.Start()
	require.NoError(t, err)

	for {
		ftstat, err := receiver.Handle(chunk)
		require.NoError(t, err)

		next, hasNext, err := sender.HandleReply(ftstat)
		require.NoError(t, err)
		if !hasNext {
			break
		}
		chunk = next
	}

	assert.Equal(t, int64(10000), receiver.Cursor().Offset)
	assert.Equal(t, int64(0), receiver.Cursor().Remaining())
	assert.Equal(t, int64(10000), sender.Cursor().Offset)
	assert.Equal(t, int64(0), sender.Cursor().Remaining())
	assert.False(t, sender.Active())
	assert.Equal(t, source, dst.data)
	assert.True(t, src.closed)
	assert.True(t, dst.closed)
}

func TestCancelAbortsTransfer(t *testing.T) {
	src := &memFile{data: make([]byte, 1000)}
	dst := &memFile{data: make([]byte, 0)}

	sender := NewSender(src, 3, 128)
	receiver := NewReceiver(dst, 128)

	_, err := sender.Start()
	require.NoError(t, err)

	cancel := sender.Cancel()
	assert.False(t, sender.Active())

	reply, err := receiver.Handle(cancel)
	require.NoError(t, err)
	assert.Equal(t, uint8(statusCancelled), reply.Status)
}

func TestPDCommandResultAdapter(t *testing.T) {
	dst := &memFile{data: make([]byte, 0)}
	receiver := NewReceiver(dst, 128)

	_, handled := receiver.CommandResult(catalog.Command{Record: catalog.Poll{}})
	assert.False(t, handled)

	result, handled := receiver.CommandResult(catalog.Command{
		Record: catalog.FileTransfer{FileID: 1, TotalSize: 4, Offset: 0, Data: []byte{1, 2, 3, 4}},
	})
	require.True(t, handled)
	ft, ok := result.Record.(catalog.Ftstat)
	require.True(t, ok)
	assert.Equal(t, uint32(4), ft.Offset)
}
