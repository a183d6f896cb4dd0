// cc1101-dump: Dump the CC1101 register configuration to a JSON file
//
// This tool opens the radio named in the gateway configuration, reads every
// configuration register and saves them as a snapshot. The snapshot can be
// written back with cc1101-load.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/herlein/gowmbus/pkg/cc1101"
	"github.com/herlein/gowmbus/pkg/ch341"
	"github.com/herlein/gowmbus/pkg/config"
	"github.com/herlein/gowmbus/pkg/radio"
)

func main() {
	configPath := flag.String("c", "", "Gateway config file providing the radio settings")
	busName := flag.String("b", "", "Bus: periph or ch341 (default: from config)")
	deviceSel := flag.String("d", "", ch341.SelectorUsage())
	outputFile := flag.String("o", "", "Output file path (default: etc/cc1101/<bus>.json)")
	verbose := flag.Bool("v", false, "Verbose output")
	jsonOutput := flag.Bool("json", false, "Output snapshot to stdout as JSON instead of file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *busName != "" {
		cfg.Radio.Bus = *busName
	}
	if *deviceSel != "" {
		cfg.Radio.Device = *deviceSel
	}

	bus, release, err := radio.OpenBus(cfg.Radio, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer release()

	// No reset here, it would discard the configuration being dumped
	chip := cc1101.New(bus, nil)
	defer func() { _ = bus.Close() }()

	partNum, version := chip.PartNum(), chip.Version()
	if err := chip.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if version == 0x00 || version == 0xFF {
		fmt.Fprintf(os.Stderr, "Error: %v: version 0x%02X\n", cc1101.ErrChipNotFound, version)
		os.Exit(1)
	}
	if *verbose {
		fmt.Printf("Connected to CC1101 on %s (partnum 0x%02X, version 0x%02X)\n", cfg.Radio.Bus, partNum, version)
		fmt.Println("Reading registers...")
	}

	snapshot, err := cc1101.TakeSnapshot(chip, cfg.Radio.Bus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read registers: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		data, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to marshal snapshot: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	path := *outputFile
	if path == "" {
		path = config.SnapshotPath(cfg.Radio.Bus)
	}
	if err := cc1101.SaveSnapshot(snapshot, path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to save snapshot: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Snapshot saved to: %s\n", path)

	if *verbose {
		printSummary(&snapshot.Registers)
	}
}

func printSummary(m *cc1101.RegisterMap) {
	fmt.Println("\nConfiguration Summary:")
	fmt.Printf("  Frequency:    %.6f MHz\n", float64(m.FrequencyHz())/1e6)
	fmt.Printf("  Data Rate:    %d Baud\n", m.DataRateBaud())
	fmt.Printf("  Deviation:    %d Hz\n", m.DeviationHz())
	fmt.Printf("  Bandwidth:    %d Hz\n", m.BandwidthHz())
	fmt.Printf("  Ch. Spacing:  %d Hz\n", m.ChannelSpacingHz())
	fmt.Printf("  Sync Word:    0x%04X\n", m.SyncWord())
	fmt.Printf("  State:        %s\n", cc1101.State(m.MARCSTATE))
}
