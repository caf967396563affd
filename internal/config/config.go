// Package config loads the multi-calendar manifest. One sync process can
// serve several feeds, each bound to its own destination category and
// tag set; the manifest is plain YAML so it can live next to the ICS
// exports it describes.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/eventloom/icsync/pkg/errors"
)

// Calendar is one feed-to-category binding.
type Calendar struct {
	// Name identifies the calendar in logs. Defaults to the source ref.
	Name string `yaml:"name"`

	// Source is the feed location, a URL or a local file path.
	Source string `yaml:"source"`

	// CategoryID is the destination category for newly created records.
	CategoryID int `yaml:"category_id"`

	// Tags are applied to every record from this calendar, on top of
	// the process-wide defaults.
	Tags []string `yaml:"tags"`

	// ExpandRecurring generates one record per occurrence of recurring
	// events instead of one record per series.
	ExpandRecurring bool `yaml:"expand_recurring"`

	// TimeOnly relaxes location matching during site-wide dedupe, for
	// feeds whose location wording drifts between exports.
	TimeOnly bool `yaml:"time_only"`

	// SiteTZ overrides the process-wide site timezone for this calendar.
	SiteTZ string `yaml:"site_tz"`
}

// Manifest is the parsed calendars file.
type Manifest struct {
	Calendars []Calendar `yaml:"calendars"`
}

// Load reads and validates a calendar manifest.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	for i := range m.Calendars {
		if m.Calendars[i].Name == "" {
			m.Calendars[i].Name = m.Calendars[i].Source
		}
	}
	return &m, nil
}

// Validate checks the manifest for empty or duplicate sources.
func (m *Manifest) Validate() error {
	if len(m.Calendars) == 0 {
		return errors.NewConfigError("config", "manifest lists no calendars", errors.ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(m.Calendars))
	for i, cal := range m.Calendars {
		if strings.TrimSpace(cal.Source) == "" {
			return errors.NewConfigError("config",
				fmt.Sprintf("calendar %d has no source", i), errors.ErrInvalidInput)
		}
		if _, dup := seen[cal.Source]; dup {
			return errors.NewConfigError("config",
				fmt.Sprintf("duplicate calendar source %q", cal.Source), errors.ErrInvalidInput)
		}
		seen[cal.Source] = struct{}{}
	}
	return nil
}
