// Package config loads vigil's CUE configuration.
//
// A config file is unified with the embedded #Config definition, so unknown
// fields, bad enum values and missing defaults are handled by CUE itself.
//
//	log_level: "debug"
//	source: {
//		kind: "http"
//		addr: "127.0.0.1:9000"
//	}
//	journal:          "vigil.db"
//	report_window_ms: 1000
package config
