package osdp

// Channel is the non-blocking byte transport the core is driven over. ID
// identifies the wire. The CP does not coordinate sessions that share a
// channel: each session reads from and sends on it independently and may
// have its own command outstanding at the same time.
//
// Recv and Send must never block. Recv returns 0, nil when no bytes are
// currently available; Send either writes all of buf or returns an error —
// partial writes are not a valid outcome.
type Channel interface {
	ID() int
	Recv(buf []byte) (int, error)
	Send(buf []byte) (int, error)
	Flush() error
}

// ChannelManager is a registry of channels keyed by channel id, mirroring the
// teacher's BusManager dispatch role but keyed on byte channels rather than
// CAN frame subscriptions. pkg/cp does not use it, and it schedules nothing.
type ChannelManager struct {
	channels map[int]Channel
}

func NewChannelManager() *ChannelManager {
	return &ChannelManager{channels: make(map[int]Channel)}
}

func (cm *ChannelManager) Register(ch Channel) {
	if cm.channels == nil {
		cm.channels = make(map[int]Channel)
	}
	cm.channels[ch.ID()] = ch
}

func (cm *ChannelManager) Get(id int) (Channel, bool) {
	ch, ok := cm.channels[id]
	return ch, ok
}

func (cm *ChannelManager) Unregister(id int) {
	delete(cm.channels, id)
}
