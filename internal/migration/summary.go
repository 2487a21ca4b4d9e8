package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/estimote/attachments-migration/internal/cloud"
	"github.com/estimote/attachments-migration/internal/constants"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned when a summary format is not supported.
var ErrUnknownFormat = errors.New("unknown summary format")

// Summary reports what a migration run did.
type Summary struct {
	RunID           string `json:"run_id" yaml:"run_id" toml:"run_id"`
	DryRun          bool   `json:"dry_run" yaml:"dry_run" toml:"dry_run"`
	IBeaconIncluded bool   `json:"ibeacon_included" yaml:"ibeacon_included" toml:"ibeacon_included"`
	Devices         int    `json:"devices" yaml:"devices" toml:"devices"`
	SkippedDevices  int    `json:"skipped_devices" yaml:"skipped_devices" toml:"skipped_devices"`
	Created         int    `json:"created" yaml:"created" toml:"created"`
	Updated         int    `json:"updated" yaml:"updated" toml:"updated"`
	Tags            int    `json:"tags" yaml:"tags" toml:"tags"`
	IBeacon         int    `json:"ibeacon" yaml:"ibeacon" toml:"ibeacon"`
	SkippedTags     int    `json:"skipped_tags" yaml:"skipped_tags" toml:"skipped_tags"`
}

// deviceResult is what the migration of a single device did.
type deviceResult struct {
	created, updated int
	tags, ibeacon    int
	skippedTags      int
	skippedDevice    bool
}

func (r *deviceResult) record(o cloud.Outcome) {
	switch o {
	case cloud.Created:
		r.created++
	case cloud.Updated:
		r.updated++
	}
}

func (s *Summary) add(r deviceResult) {
	s.Created += r.created
	s.Updated += r.updated
	s.Tags += r.tags
	s.IBeacon += r.ibeacon
	s.SkippedTags += r.skippedTags
	if r.skippedDevice {
		s.SkippedDevices++
	}
}

// Render writes the summary to w in the given format.
func (s Summary) Render(w io.Writer, format string) (err error) {
	if !slices.Contains(constants.SummaryFormats, format) {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	switch format {
	case "none":
		return nil
	case "json":
		d, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", d)
		return err
	case "yaml":
		d, err := yaml.Marshal(s)
		if err != nil {
			return err
		}
		_, err = w.Write(d)
		return err
	case "toml":
		return toml.NewEncoder(w).Encode(s)
	}

	return s.renderText(w)
}

func (s Summary) renderText(w io.Writer) error {
	p := message.NewPrinter(language.English)

	verb := "Migrated"
	if s.DryRun {
		verb = "Would migrate"
	}
	if _, err := p.Fprintf(w, "%s %d devices (run %s)\n", verb, s.Devices, s.RunID); err != nil {
		return err
	}

	lines := []struct {
		label string
		n     int
	}{
		{"attachments created", s.Created},
		{"attachments updated", s.Updated},
		{"tag attachments", s.Tags},
		{"iBeacon attachments", s.IBeacon},
		{"skipped tags", s.SkippedTags},
		{"skipped devices", s.SkippedDevices},
	}
	for _, l := range lines {
		if _, err := p.Fprintf(w, "  %-20s %d\n", l.label+":", l.n); err != nil {
			return err
		}
	}

	if !s.IBeaconIncluded {
		if _, err := p.Fprintln(w, "  iBeacon import disabled"); err != nil {
			return err
		}
	}
	return nil
}
