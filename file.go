package osdp

// File is the external backing-store collaborator the file-transfer overlay
// (pkg/filetransfer) reads from and writes to. Size and offset are always
// non-negative, and size >= offset is guaranteed by the caller.
type File interface {
	Open(fileID int) (size int64, err error)
	Read(buf []byte, offset int64) (int, error)
	Write(buf []byte, offset int64) (int, error)
	Close() error
}
