package migration_test

import (
	"bytes"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/estimote/attachments-migration/internal/migration"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	summary := migration.Summary{
		RunID:           "run",
		IBeaconIncluded: true,
		Devices:         3,
		Created:         2,
		Updated:         1,
		Tags:            2,
		IBeacon:         1,
		SkippedTags:     1,
	}
	dryRun := summary
	dryRun.DryRun = true
	noIBeacon := summary
	noIBeacon.IBeaconIncluded = false
	large := migration.Summary{RunID: "run", IBeaconIncluded: true, Devices: 12345, Created: 12000, Updated: 345, Tags: 12345}

	tests := map[string]struct {
		summary migration.Summary
		format  string

		want    string
		wantErr bool
	}{
		"Text": {
			summary: summary, format: "text",
			want: `Migrated 3 devices (run run)
  attachments created: 2
  attachments updated: 1
  tag attachments:     2
  iBeacon attachments: 1
  skipped tags:        1
  skipped devices:     0
`,
		},
		"Text in dry run": {
			summary: dryRun, format: "text",
			want: `Would migrate 3 devices (run run)
  attachments created: 2
  attachments updated: 1
  tag attachments:     2
  iBeacon attachments: 1
  skipped tags:        1
  skipped devices:     0
`,
		},
		"Text without iBeacon": {
			summary: noIBeacon, format: "text",
			want: `Migrated 3 devices (run run)
  attachments created: 2
  attachments updated: 1
  tag attachments:     2
  iBeacon attachments: 1
  skipped tags:        1
  skipped devices:     0
  iBeacon import disabled
`,
		},
		"Text groups digits": {
			summary: large, format: "text",
			want: `Migrated 12,345 devices (run run)
  attachments created: 12,000
  attachments updated: 345
  tag attachments:     12,345
  iBeacon attachments: 0
  skipped tags:        0
  skipped devices:     0
`,
		},
		"JSON": {
			summary: summary, format: "json",
			want: `{"run_id":"run","dry_run":false,"ibeacon_included":true,"devices":3,"skipped_devices":0,
				"created":2,"updated":1,"tags":2,"ibeacon":1,"skipped_tags":1}`,
		},
		"YAML": {
			summary: summary, format: "yaml",
			want: `run_id: run
dry_run: false
ibeacon_included: true
devices: 3
skipped_devices: 0
created: 2
updated: 1
tags: 2
ibeacon: 1
skipped_tags: 1
`,
		},
		"TOML": {
			summary: summary, format: "toml",
			want: `run_id = "run"
dry_run = false
ibeacon_included = true
devices = 3
skipped_devices = 0
created = 2
updated = 1
tags = 2
ibeacon = 1
skipped_tags = 1
`,
		},
		"None": {summary: summary, format: "none"},

		"Error on unknown format": {summary: summary, format: "xml", wantErr: true},
		"Error on empty format":   {summary: summary, format: "", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			err := tc.summary.Render(&out, tc.format)
			if tc.wantErr {
				require.ErrorIs(t, err, migration.ErrUnknownFormat)
				require.Empty(t, out.String(), "Nothing should be written on error")
				return
			}
			require.NoError(t, err)

			switch tc.format {
			case "json":
				require.JSONEq(t, tc.want, out.String(), "Unexpected JSON summary")
			case "yaml":
				require.YAMLEq(t, tc.want, out.String(), "Unexpected YAML summary")
			case "toml":
				var got, want map[string]any
				_, err := toml.Decode(out.String(), &got)
				require.NoError(t, err, "Summary should be valid TOML")
				_, err = toml.Decode(tc.want, &want)
				require.NoError(t, err, "Setup: expected TOML should be valid")
				require.Equal(t, want, got, "Unexpected TOML summary")
			default:
				require.Equal(t, tc.want, out.String(), "Unexpected summary")
			}
		})
	}
}
