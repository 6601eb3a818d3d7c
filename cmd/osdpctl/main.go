// Command osdpctl is a small demonstration CLI: it wires a CP and a single
// PD together over an in-process virtual channel and runs the handshake to
// completion, logging every state transition — the OSDP analogue of the
// teacher's cmd/canopen demo node.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/osdp-go/osdp"
	"github.com/osdp-go/osdp/pkg/catalog"
	"github.com/osdp-go/osdp/pkg/cp"
	"github.com/osdp-go/osdp/pkg/pd"
	"github.com/osdp-go/osdp/pkg/secure"
	"github.com/osdp-go/osdp/pkg/transport/virtual"
)

func main() {
	address := flag.Int("a", 0, "PD address")
	enforceSecure := flag.Bool("secure", false, "require a secure channel before marking the PD online")
	runFor := flag.Duration("d", 2*time.Second, "how long to run the demo loop")
	tickRate := flag.Duration("tick", 25*time.Millisecond, "Refresh tick interval (>= 20 Hz recommended)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cpConn, pdConn := net.Pipe()
	cpChannel := virtual.New(1, cpConn, logger)
	pdChannel := virtual.New(1, pdConn, logger)

	cipher := secure.StdBlockCipher{}
	rng := secure.StdRandomSource{}

	controller, err := cp.New(cp.Options{
		Cipher: cipher,
		RNG:    rng,
		Logger: logger,
		EventCallback: func(addr uint8, reply catalog.Reply) {
			logger.Info("unsolicited reply", "address", addr, "reply", reply.Code)
		},
	})
	if err != nil {
		fmt.Println("failed to create CP:", err)
		os.Exit(1)
	}
	if err := controller.AddPD(uint8(*address), cp.PDOptions{
		Channel:       cpChannel,
		UseCRC:        true,
		EnforceSecure: *enforceSecure,
	}); err != nil {
		fmt.Println("failed to register PD:", err)
		os.Exit(1)
	}

	peripheral, err := pd.Setup(pdChannel, pd.Options{
		Address:       uint8(*address),
		UseCRC:        true,
		EnforceSecure: *enforceSecure,
		Cipher:        cipher,
		RNG:           rng,
		Logger:        logger,
		VendorOUI:     [3]byte{0xA1, 0xB2, 0xC3},
		Model:         0x01,
		Version:       0x02,
		Serial:        [4]byte{0x78, 0x56, 0x34, 0x12},
		Firmware:      [3]byte{0x03, 0x02, 0x01},
		Capabilities: map[osdp.CapabilityCode]osdp.Capability{
			osdp.CapContactStatusMonitoring: {ComplianceLevel: 1, NumItems: 1},
		},
	})
	if err != nil {
		fmt.Println("failed to set up PD:", err)
		os.Exit(1)
	}

	ticker := time.NewTicker(*tickRate)
	defer ticker.Stop()
	deadline := time.Now().Add(*runFor)

	lastState := osdp.StateInit
	for now := range ticker.C {
		if err := controller.Refresh(); err != nil {
			logger.Warn("cp refresh error", "error", err)
		}
		if err := peripheral.Refresh(); err != nil {
			logger.Warn("pd refresh error", "error", err)
		}

		if rec, ok := controller.Record(uint8(*address)); ok && rec.State != lastState {
			logger.Info("state transition", "address", *address, "state", rec.State, "secure_active", rec.SecureActive)
			lastState = rec.State
		}
		if now.After(deadline) {
			break
		}
	}
}
