package cc1101

import (
	"fmt"
	"sort"
)

// Profile describes the physical layer parameters of a receive configuration
type Profile struct {
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	FrequencyHz      float64 `json:"frequency_hz"`
	DataRateBaud     float64 `json:"data_rate_baud"`
	DeviationHz      float64 `json:"deviation_hz"`
	BandwidthHz      float64 `json:"bandwidth_hz"`
	ChannelSpacingHz float64 `json:"channel_spacing_hz"`
}

// Override returns a copy of p with every non-zero argument replacing the
// corresponding parameter
func (p Profile) Override(frequencyHz, dataRateBaud, deviationHz, bandwidthHz, channelSpacingHz float64) Profile {
	if frequencyHz != 0 {
		p.FrequencyHz = frequencyHz
	}
	if dataRateBaud != 0 {
		p.DataRateBaud = dataRateBaud
	}
	if deviationHz != 0 {
		p.DeviationHz = deviationHz
	}
	if bandwidthHz != 0 {
		p.BandwidthHz = bandwidthHz
	}
	if channelSpacingHz != 0 {
		p.ChannelSpacingHz = channelSpacingHz
	}
	return p
}

// String summarizes the profile
func (p Profile) String() string {
	return fmt.Sprintf("%s: %.3f MHz, %.1f kBd, dev %.1f kHz, bw %.1f kHz",
		p.Name, p.FrequencyHz/1e6, p.DataRateBaud/1e3, p.DeviationHz/1e3, p.BandwidthHz/1e3)
}

// DefaultProfile is the profile used when none is configured
const DefaultProfile = "T1"

var profiles = map[string]Profile{
	"T1": {
		Name:             "T1",
		Description:      "wM-Bus T1 meter to other, 3-out-of-6 coded",
		FrequencyHz:      868.95e6,
		DataRateBaud:     100e3,
		DeviationHz:      50e3,
		BandwidthHz:      200e3,
		ChannelSpacingHz: 200e3,
	},
	"C1": {
		Name:             "C1",
		Description:      "wM-Bus C1 meter to other, NRZ coded",
		FrequencyHz:      868.95e6,
		DataRateBaud:     100e3,
		DeviationHz:      45e3,
		BandwidthHz:      200e3,
		ChannelSpacingHz: 200e3,
	},
}

// LookupProfile returns the named profile
func LookupProfile(name string) (Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// ProfileNames lists the known profiles in sorted order
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
