// Package config loads the ambient, file-based configuration this module
// has no spec-mandated wire equivalent for: a PD's identity/capability
// descriptor, and a CP's static per-PD roster (address, baud, provisioned
// SCBK). Both are INI files parsed with gopkg.in/ini.v1, the same library
// the teacher uses to load/export CANopen EDS object dictionaries
// (legacy/pkg/od/parser.go, legacy/pkg/od/export.go) — OSDP has no EDS
// equivalent, so the dependency is repurposed for this descriptor instead.
package config

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/osdp-go/osdp"
	"gopkg.in/ini.v1"
)

// PDProfile is a peripheral's static identity and capability vector, as
// populated directly into pd.Options by the caller.
type PDProfile struct {
	Address      uint8
	VendorOUI    [3]byte
	Model        uint8
	Version      uint8
	Serial       [4]byte
	Firmware     [3]byte
	Capabilities map[osdp.CapabilityCode]osdp.Capability
}

// LoadPDProfile parses a PD identity/capability descriptor file.
//
// Expected layout:
//
//	[identity]
//	address = 0
//	vendor_oui = A1B2C3
//	model = 1
//	version = 2
//	serial = 78563412
//	firmware = 030201
//
//	[capability.2]
//	compliance = 1
//	items = 1
func LoadPDProfile(path string) (PDProfile, error) {
	f, err := ini.Load(path)
	if err != nil {
		return PDProfile{}, fmt.Errorf("config: load pd profile: %w", err)
	}

	var profile PDProfile
	identity := f.Section("identity")
	addr, err := identity.Key("address").Uint()
	if err != nil {
		return PDProfile{}, fmt.Errorf("config: identity.address: %w", err)
	}
	profile.Address = uint8(addr)

	if err := readHexArray(identity.Key("vendor_oui").String(), profile.VendorOUI[:]); err != nil {
		return PDProfile{}, fmt.Errorf("config: identity.vendor_oui: %w", err)
	}
	model, err := identity.Key("model").Uint()
	if err != nil {
		return PDProfile{}, fmt.Errorf("config: identity.model: %w", err)
	}
	profile.Model = uint8(model)

	version, err := identity.Key("version").Uint()
	if err != nil {
		return PDProfile{}, fmt.Errorf("config: identity.version: %w", err)
	}
	profile.Version = uint8(version)

	if err := readHexArray(identity.Key("serial").String(), profile.Serial[:]); err != nil {
		return PDProfile{}, fmt.Errorf("config: identity.serial: %w", err)
	}
	if err := readHexArray(identity.Key("firmware").String(), profile.Firmware[:]); err != nil {
		return PDProfile{}, fmt.Errorf("config: identity.firmware: %w", err)
	}

	profile.Capabilities = make(map[osdp.CapabilityCode]osdp.Capability)
	for _, section := range f.Sections() {
		code, ok := parseCapabilitySection(section.Name())
		if !ok {
			continue
		}
		compliance, err := section.Key("compliance").Uint()
		if err != nil {
			return PDProfile{}, fmt.Errorf("config: %s.compliance: %w", section.Name(), err)
		}
		items, err := section.Key("items").Uint()
		if err != nil {
			return PDProfile{}, fmt.Errorf("config: %s.items: %w", section.Name(), err)
		}
		profile.Capabilities[code] = osdp.Capability{
			ComplianceLevel: uint8(compliance),
			NumItems:        uint8(items),
		}
	}
	return profile, nil
}

func parseCapabilitySection(name string) (osdp.CapabilityCode, bool) {
	const prefix = "capability."
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return 0, false
	}
	n, err := strconv.ParseUint(name[len(prefix):], 10, 8)
	if err != nil {
		return 0, false
	}
	return osdp.CapabilityCode(n), true
}

func readHexArray(s string, out []byte) error {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(decoded) != len(out) {
		return fmt.Errorf("config: expected %d bytes, got %d", len(out), len(decoded))
	}
	copy(out, decoded)
	return nil
}

// RosterEntry is one CP-managed peripheral's static transport/security
// parameters.
type RosterEntry struct {
	Address       uint8
	BaudRate      int
	SCBK          [16]byte
	EnforceSecure bool
}

// LoadRoster parses a CP's static per-PD roster file.
//
// Expected layout, one section per managed peripheral:
//
//	[pd.0]
//	baud = 9600
//	scbk = 000102030405060708090a0b0c0d0e0f
//	enforce_secure = false
func LoadRoster(path string) ([]RosterEntry, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load roster: %w", err)
	}

	var roster []RosterEntry
	for _, section := range f.Sections() {
		addr, ok := parsePDSection(section.Name())
		if !ok {
			continue
		}
		entry := RosterEntry{Address: addr}
		entry.BaudRate, err = section.Key("baud").Int()
		if err != nil {
			return nil, fmt.Errorf("config: %s.baud: %w", section.Name(), err)
		}
		entry.EnforceSecure = section.Key("enforce_secure").MustBool(false)

		if scbkHex := section.Key("scbk").String(); scbkHex != "" {
			if err := readHexArray(scbkHex, entry.SCBK[:]); err != nil {
				return nil, fmt.Errorf("config: %s.scbk: %w", section.Name(), err)
			}
		}
		roster = append(roster, entry)
	}
	return roster, nil
}

func parsePDSection(name string) (uint8, bool) {
	const prefix = "pd."
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return 0, false
	}
	n, err := strconv.ParseUint(name[len(prefix):], 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}
