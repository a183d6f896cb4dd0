package meters

import "github.com/herlein/gowmbus/pkg/wmbus"

func init() {
	Register(Driver{Name: UnknownDriver})

	// Generic OMS meter, selected by name only
	Register(Driver{
		Name:      "oms",
		LinkModes: wmbus.NewLinkModes(wmbus.LinkModeT1, wmbus.LinkModeC1),
		Records:   true,
	})

	Register(Driver{
		Name:      "kamheat",
		LinkModes: wmbus.NewLinkModes(wmbus.LinkModeC1, wmbus.LinkModeT1),
		Detect: []Detection{
			{"KAM", 0x04, 0x34},
			{"KAM", 0x0C, 0x34},
			{"KAM", 0x04, 0x35},
			{"KAM", 0x0C, 0x35},
		},
		Records: true,
	})

	Register(Driver{
		Name:      "iperl",
		LinkModes: wmbus.NewLinkModes(wmbus.LinkModeT1),
		Detect: []Detection{
			{"SEN", 0x06, 0x68},
			{"SEN", 0x07, 0x68},
			{"SEN", 0x07, 0x7C},
		},
		Records: true,
	})

	Register(Driver{
		Name:      "hydrus",
		LinkModes: wmbus.NewLinkModes(wmbus.LinkModeT1),
		Detect: []Detection{
			{"DME", 0x07, 0x70},
			{"DME", 0x07, 0x76},
			{"HYD", 0x07, 0x24},
		},
		Records: true,
	})

	Register(Driver{
		Name:      "qcaloric",
		LinkModes: wmbus.NewLinkModes(wmbus.LinkModeC1),
		Detect: []Detection{
			{"QDS", 0x08, 0x35},
			{"QDS", 0x08, 0x34},
		},
		Records: true,
	})
}
