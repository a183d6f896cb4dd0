// Package ch341 drives a CC1101 through a CH341A USB to SPI bridge using
// gousb.
package ch341

import (
	"fmt"

	"github.com/google/gousb"
)

// Info describes an attached CH341A
type Info struct {
	Serial       string
	Manufacturer string
	Product      string
	Bus          int
	Address      int
}

func (i Info) String() string {
	return fmt.Sprintf("%d:%d %s %s (Serial: %s)", i.Bus, i.Address, i.Manufacturer, i.Product, i.Serial)
}

// device is an opened CH341A with its claimed interface
type device struct {
	usb    *gousb.Device
	config *gousb.Config
	iface  *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	info   Info
}

func info(d *gousb.Device) Info {
	manufacturer, _ := d.Manufacturer()
	product, _ := d.Product()
	serial, _ := d.SerialNumber()
	return Info{
		Serial:       serial,
		Manufacturer: manufacturer,
		Product:      product,
		Bus:          d.Desc.Bus,
		Address:      d.Desc.Address,
	}
}

// openAll opens every attached CH341A
func openAll(ctx *gousb.Context) ([]*gousb.Device, error) {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(VendorID) && desc.Product == gousb.ID(ProductID)
	})
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	return devs, nil
}

// List returns the attached CH341A bridges
func List(ctx *gousb.Context) ([]Info, error) {
	devs, err := openAll(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(devs))
	for _, d := range devs {
		infos = append(infos, info(d))
		d.Close()
	}
	return infos, nil
}

func claim(d *gousb.Device) (*device, error) {
	d.SetAutoDetach(true)

	config, err := d.Config(1)
	if err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	iface, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", err)
	}
	in, err := iface.InEndpoint(endpointIn)
	if err != nil {
		iface.Close()
		config.Close()
		return nil, fmt.Errorf("failed to get IN endpoint: %w", err)
	}
	out, err := iface.OutEndpoint(endpointOut)
	if err != nil {
		iface.Close()
		config.Close()
		return nil, fmt.Errorf("failed to get OUT endpoint: %w", err)
	}
	return &device{usb: d, config: config, iface: iface, in: in, out: out, info: info(d)}, nil
}

func (d *device) close() error {
	d.iface.Close()
	d.config.Close()
	return d.usb.Close()
}

// endpoints joins the bulk endpoints into a transport
type endpoints struct {
	*gousb.InEndpoint
	*gousb.OutEndpoint
}

// Open selects a CH341A, claims it and switches it to SPI mode
func Open(ctx *gousb.Context, selector string) (*Bus, Info, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil, Info{}, err
	}
	devs, err := openAll(ctx)
	if err != nil {
		return nil, Info{}, err
	}
	infos := make([]Info, len(devs))
	for i, d := range devs {
		infos[i] = info(d)
	}
	idx, err := sel.Pick(infos)
	for i, d := range devs {
		if err != nil || i != idx {
			d.Close()
		}
	}
	if err != nil {
		return nil, Info{}, err
	}

	dev, err := claim(devs[idx])
	if err != nil {
		devs[idx].Close()
		return nil, Info{}, err
	}
	bus, err := newBus(endpoints{dev.in, dev.out}, dev.close)
	if err != nil {
		dev.close()
		return nil, Info{}, err
	}
	return bus, dev.info, nil
}
