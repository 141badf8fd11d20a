package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged  bool
	NewLogLevel      LogLevel
	KeywordsChanged  bool // high or medium severity judge lists changed
	ThresholdChanged bool
	NewThreshold     string
}

// Changed reports whether anything hot-reloadable differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.KeywordsChanged || d.ThresholdChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Judge.HighSeverityKeywords, new.Judge.HighSeverityKeywords) ||
		!slices.Equal(old.Judge.MediumSeverityKeywords, new.Judge.MediumSeverityKeywords) {
		d.KeywordsChanged = true
	}

	if old.Notify.Threshold != new.Notify.Threshold {
		d.ThresholdChanged = true
		d.NewThreshold = new.Notify.Threshold
	}

	return d
}
