// lsch341: List all connected CH341A USB to SPI bridges
//
// This tool enumerates the CH341A bridges attached to the system. With -v it
// opens each bridge and reports the CC1101 found behind it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/gousb"

	"github.com/herlein/gowmbus/pkg/cc1101"
	"github.com/herlein/gowmbus/pkg/ch341"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (probe the CC1101 on each bridge)")
	flag.Parse()

	context := gousb.NewContext()
	defer context.Close()

	devices, err := ch341.List(context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to enumerate devices: %v\n", err)
		os.Exit(1)
	}

	if len(devices) == 0 {
		fmt.Println("No CH341A devices found")
		os.Exit(0)
	}

	fmt.Printf("Found %d CH341A device(s):\n", len(devices))
	fmt.Println()

	for i, device := range devices {
		if !*verbose {
			fmt.Printf("  #%d  %s  %d:%d\n", i, device.Serial, device.Bus, device.Address)
			continue
		}

		fmt.Printf("Device #%d:\n", i)
		fmt.Printf("  Serial:       %s\n", device.Serial)
		fmt.Printf("  Bus:Address:  %d:%d\n", device.Bus, device.Address)
		fmt.Printf("  Manufacturer: %s\n", device.Manufacturer)
		fmt.Printf("  Product:      %s\n", device.Product)

		info, err := probe(context, device)
		if err == nil {
			fmt.Printf("  Radio:        CC1101 (partnum 0x%02X, version 0x%02X)\n", info.PartNum, info.Version)
		} else {
			fmt.Printf("  Radio:        (error: %v)\n", err)
		}
		fmt.Println()
	}
}

// probe opens the bridge at the device's USB location and resets the radio
func probe(context *gousb.Context, device ch341.Info) (cc1101.Info, error) {
	bus, _, err := ch341.Open(context, fmt.Sprintf("%d:%d", device.Bus, device.Address))
	if err != nil {
		return cc1101.Info{}, err
	}
	chip := cc1101.New(bus, nil)
	defer func() { _ = chip.Close() }()
	return chip.Probe()
}
