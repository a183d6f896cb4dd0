// Package radio opens the CC1101 on the bus named in the configuration.
package radio

import (
	"github.com/google/gousb"
	"go.uber.org/zap"

	"github.com/herlein/gowmbus/pkg/cc1101"
	"github.com/herlein/gowmbus/pkg/ch341"
	"github.com/herlein/gowmbus/pkg/config"
	"github.com/herlein/gowmbus/pkg/periphbus"
)

// OpenBus opens the configured bus. release frees what the bus needs beyond
// its own Close and must be called after it.
func OpenBus(cfg config.RadioConfig, logger *zap.Logger) (bus cc1101.Bus, release func(), err error) {
	switch cfg.Bus {
	case config.BusCH341:
		usb := gousb.NewContext()
		b, info, err := ch341.Open(usb, cfg.Device)
		if err != nil {
			usb.Close()
			return nil, nil, err
		}
		logger.Info("using CH341", zap.Stringer("device", info))
		return b, func() { usb.Close() }, nil
	default:
		b, err := periphbus.Open(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using SPI port", zap.String("port", cfg.SPIPort),
			zap.String("gdo0", cfg.GDO0Pin), zap.String("gdo2", cfg.GDO2Pin))
		return b, func() {}, nil
	}
}

// Open opens the bus and probes the chip. closeFn idles the chip and
// releases the bus.
func Open(cfg config.RadioConfig, logger *zap.Logger) (chip *cc1101.Chip, closeFn func(), err error) {
	bus, release, err := OpenBus(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	chip = cc1101.New(bus, logger)
	closeFn = func() {
		_ = chip.Close()
		release()
	}
	if _, err := chip.Probe(); err != nil {
		closeFn()
		return nil, nil, err
	}
	return chip, closeFn, nil
}

// Profile returns the configured profile with the configured overrides
func Profile(cfg config.RadioConfig) (cc1101.Profile, error) {
	p, err := cc1101.LookupProfile(cfg.Profile)
	if err != nil {
		return cc1101.Profile{}, err
	}
	return p.Override(cfg.FrequencyHz, cfg.DataRateBaud, cfg.DeviationHz, cfg.BandwidthHz, cfg.ChannelSpacingHz), nil
}
