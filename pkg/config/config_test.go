package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/osdp-go/osdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPDProfile(t *testing.T) {
	path := writeTemp(t, "profile.ini", `
[identity]
address = 0
vendor_oui = A1B2C3
model = 1
version = 2
serial = 78563412
firmware = 030201

[capability.2]
compliance = 1
items = 1

[capability.8]
compliance = 1
items = 1
`)
	profile, err := LoadPDProfile(path)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), profile.Address)
	assert.Equal(t, [3]byte{0xA1, 0xB2, 0xC3}, profile.VendorOUI)
	assert.Equal(t, [4]byte{0x78, 0x56, 0x34, 0x12}, profile.Serial)
	require.Contains(t, profile.Capabilities, osdp.CapabilityCode(2))
	assert.Equal(t, uint8(1), profile.Capabilities[osdp.CapabilityCode(2)].ComplianceLevel)
}

func TestLoadRoster(t *testing.T) {
	path := writeTemp(t, "roster.ini", `
[pd.0]
baud = 9600
enforce_secure = true
scbk = 000102030405060708090a0b0c0d0e0f

[pd.1]
baud = 19200
`)
	roster, err := LoadRoster(path)
	require.NoError(t, err)
	require.Len(t, roster, 2)

	var byAddr = map[uint8]RosterEntry{}
	for _, e := range roster {
		byAddr[e.Address] = e
	}
	assert.Equal(t, 9600, byAddr[0].BaudRate)
	assert.True(t, byAddr[0].EnforceSecure)
	assert.Equal(t, byte(0x0f), byAddr[0].SCBK[15])
	assert.False(t, byAddr[1].EnforceSecure)
}
