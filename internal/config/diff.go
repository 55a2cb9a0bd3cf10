package config

import "slices"

// Diff describes what changed between two configs, split into changes that
// can be hot-applied and those that need a restart (anything touching the
// vendor connection or the audio format of a live stream).
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DumpChanged bool

	// RestartRequired lists the config sections whose changes only take
	// effect on the next session.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return !d.LogLevelChanged && !d.DumpChanged && len(d.RestartRequired) == 0
}

// Compute compares old and new configs and returns what changed.
func Compute(old, new *Config) Diff {
	d := Diff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Dump != new.Dump {
		d.DumpChanged = true
	}

	if !vendorEqual(old.Vendor, new.Vendor) {
		d.RestartRequired = append(d.RestartRequired, "vendor")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Buffer != new.Buffer {
		d.RestartRequired = append(d.RestartRequired, "buffer")
	}
	if old.Reconnect != new.Reconnect {
		d.RestartRequired = append(d.RestartRequired, "reconnect")
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}

	return d
}

func vendorEqual(a, b VendorConfig) bool {
	return a.Name == b.Name &&
		a.Tencent == b.Tencent &&
		a.Soniox.APIKey == b.Soniox.APIKey &&
		a.Soniox.URL == b.Soniox.URL &&
		a.Soniox.Model == b.Soniox.Model &&
		a.Soniox.KeepaliveIntervalMS == b.Soniox.KeepaliveIntervalMS &&
		slices.Equal(a.Soniox.LanguageHints, b.Soniox.LanguageHints)
}
