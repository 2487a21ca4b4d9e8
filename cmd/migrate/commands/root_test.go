package commands_test

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/estimote/attachments-migration/cmd/migrate/commands"
	cloudtestutils "github.com/estimote/attachments-migration/internal/cloud/testutils"
	"github.com/estimote/attachments-migration/internal/constants"
	"github.com/estimote/attachments-migration/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tagDevices     = `[{"identifier":"d1","shadow":{"tags":["{\"attachment\":{\"k\":\"v\"}}"]},"settings":{"advertisers":{"ibeacon":[{"enabled":false}]}}}]`
	ibeaconDevices = `[{"identifier":"d1","settings":{"advertisers":{"ibeacon":[{"enabled":true,"uuid":"U","major":1,"minor":2}]}}}]`
	manyDevices    = `[
		{"identifier":"d1","shadow":{"tags":["{\"attachment\":{\"k\":\"1\"}}"]}},
		{"identifier":"d2","shadow":{"tags":["{\"attachment\":{\"k\":\"2\"}}"]}},
		{"identifier":"d3","shadow":{"tags":["{\"attachment\":{\"k\":\"3\"}}"]}},
		{"identifier":"d4","shadow":{"tags":["{\"attachment\":{\"k\":\"4\"}}"]}}
	]`
)

func TestUsageError(t *testing.T) {
	t.Parallel()

	app, err := commands.New()
	require.NoError(t, err)

	// Test when SilenceUsage is true
	app.SetSilenceUsage(true)
	assert.False(t, app.UsageError())

	// Test when SilenceUsage is false
	app.SetSilenceUsage(false)
	assert.True(t, app.UsageError())
}

func TestFlags(t *testing.T) {
	t.Parallel()

	app, err := commands.New()
	require.NoError(t, err, "Setup: New should not fail")
	cmd := app.RootCmd()

	tests := []testutils.FlagCase{
		{Name: "server_url", Default: constants.DefaultServerURL},
		{Name: "no-ibeacon", Default: "false"},
		{Name: "timeout", Default: "30s"},
		{Name: "dry-run", Short: "d", Default: "false"},
		{Name: "parallel", Short: "p", Default: "1"},
		{Name: "summary", Short: "s", Default: "text"},
		{Name: "verbose", Short: "v", Default: "0", Persistent: true},
		{Name: "json-logs", Default: "false", Persistent: true},
		{Name: "config", Default: "", Persistent: true},
	}
	for _, tc := range tests {
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()

			testutils.AssertFlag(t, &cmd, tc)
		})
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		devices     string
		args        []string
		flags       []string
		conf        *commands.AppConfig
		noServerURL bool
		failPost    int

		wantOutput   []string
		wantNoOutput []string
		wantWrites   int
		wantErr      bool
		wantUsageErr bool
	}{
		"Tag attachments are migrated": {
			devices:    tagDevices,
			wantOutput: []string{`Successfully assigned attachment {"k":"v"} to device d1`, "Migrated 1 devices"},
			wantWrites: 1,
		},
		"iBeacon settings are migrated": {
			devices:    ibeaconDevices,
			wantOutput: []string{`Successfully assigned attachment {"uuid":"U","uuid:major":"U:1","uuid:major:minor":"U:1:2"} to device d1`},
			wantWrites: 1,
		},
		"iBeacon settings are ignored with no-ibeacon": {
			devices:      ibeaconDevices,
			flags:        []string{"--no-ibeacon"},
			wantOutput:   []string{"iBeacon import disabled"},
			wantNoOutput: []string{"Successfully assigned"},
		},
		"iBeacon settings are ignored when disabled in configuration": {
			devices:      ibeaconDevices,
			conf:         &commands.AppConfig{NoIBeacon: true},
			wantNoOutput: []string{"Successfully assigned"},
		},
		"Server URL from configuration": {
			devices:     tagDevices,
			noServerURL: true,
			wantOutput:  []string{"Successfully assigned attachment"},
			wantWrites:  1,
		},
		"Dry run writes nothing": {
			devices:      tagDevices,
			flags:        []string{"-d"},
			wantOutput:   []string{`Would assign attachment {"k":"v"} to device d1`, "Would migrate 1 devices"},
			wantNoOutput: []string{"Successfully assigned"},
		},
		"Devices are migrated concurrently": {
			devices:    manyDevices,
			flags:      []string{"-p", "3"},
			wantOutput: []string{"to device d1", "to device d2", "to device d3", "to device d4", "Migrated 4 devices"},
			wantWrites: 4,
		},
		"JSON summary": {
			devices:    tagDevices,
			flags:      []string{"--summary", "json"},
			wantOutput: []string{`"created": 1`, `"tags": 1`},
			wantWrites: 1,
		},
		"No summary": {
			devices:      tagDevices,
			flags:        []string{"-s", "none"},
			wantNoOutput: []string{"Migrated"},
			wantWrites:   1,
		},
		"Custom timeout": {
			devices:    tagDevices,
			flags:      []string{"--timeout", "5s"},
			wantWrites: 1,
		},

		// Usage errors
		"Error on missing token":          {args: []string{"app"}, wantErr: true, wantUsageErr: true},
		"Error on extra argument":         {args: []string{"app", "token", "extra"}, wantErr: true, wantUsageErr: true},
		"Error on no arguments":           {args: []string{}, wantErr: true, wantUsageErr: true},
		"Error on unknown flag":           {flags: []string{"--unknown"}, wantErr: true, wantUsageErr: true},
		"Error on empty app id":           {args: []string{"", "token"}, wantErr: true, wantUsageErr: true},
		"Error on invalid summary format": {flags: []string{"-s", "xml"}, wantErr: true, wantUsageErr: true},
		"Error on zero parallelism":       {flags: []string{"-p", "0"}, wantErr: true, wantUsageErr: true},
		"Error on too much parallelism":   {flags: []string{"-p", "33"}, wantErr: true, wantUsageErr: true},
		"Error on invalid timeout":        {flags: []string{"--timeout", "soon"}, wantErr: true, wantUsageErr: true},
		"Error on invalid server URL": {
			noServerURL: true, flags: []string{"--server_url", "cloud.example.com"},
			wantErr: true, wantUsageErr: true,
		},

		// Runtime errors
		"Error on wrong credentials": {
			devices: tagDevices, args: []string{"app", "wrong"},
			wantErr: true,
		},
		"Error when the cloud rejects a write": {
			devices: tagDevices, failPost: 500,
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fake := cloudtestutils.New(t, "app", "token")
			if tc.devices != "" {
				fake.SetDevices(tc.devices)
			}
			if tc.failPost != 0 {
				fake.FailWith("POST", "/v3/attachments", tc.failPost, `{"error":"boom"}`)
			}

			conf := tc.conf
			if tc.noServerURL {
				if conf == nil {
					conf = &commands.AppConfig{}
				}
				conf.ServerURL = fake.URL()
			}

			args := tc.args
			if args == nil {
				args = []string{"app", "token"}
			}
			args = append(args, tc.flags...)
			if !tc.noServerURL {
				args = append(args, "--server_url", fake.URL())
			}

			var out bytes.Buffer
			a := commands.NewForTests(t, conf, args...)
			a.SetOutput(&out, io.Discard)

			err := a.Run()
			require.Equal(t, tc.wantUsageErr, a.UsageError(), "Run should return a usage error if expected")
			if tc.wantErr {
				require.Error(t, err, "Run should return an error")
				return
			}
			require.NoError(t, err, "Run should not return an error")

			for _, want := range tc.wantOutput {
				assert.Contains(t, out.String(), want, "Output should contain expected text")
			}
			for _, notWant := range tc.wantNoOutput {
				assert.NotContains(t, out.String(), notWant, "Output should not contain unexpected text")
			}
			assert.Len(t, fake.Writes(), tc.wantWrites, "Unexpected number of writes to the cloud")
		})
	}
}

func TestRunReportsCloudError(t *testing.T) {
	t.Parallel()

	fake := cloudtestutils.New(t, "app", "token")
	fake.SetDevices(tagDevices)
	fake.FailWith("POST", "/v3/attachments", 422, `{"error":"invalid payload"}`)

	var out bytes.Buffer
	a := commands.NewForTests(t, nil, "app", "token", "--server_url", fake.URL())
	a.SetOutput(&out, io.Discard)

	err := a.Run()
	require.Error(t, err, "Run should fail when the cloud rejects a write")
	require.False(t, a.UsageError(), "A cloud error is not a usage error")
	require.ErrorContains(t, err, "422", "Error should name the status code")
	require.ErrorContains(t, err, `{"error":"invalid payload"}`, "Error should carry the response body")
	require.Contains(t, out.String(), "Migrated 1 devices", "Summary of the partial run should be printed")
}

func TestConfigPrecedence(t *testing.T) {
	tests := map[string]struct {
		conf  *commands.AppConfig
		env   map[string]string
		flags []string

		want commands.AppConfig
	}{
		"Defaults": {
			want: commands.AppConfig{Timeout: constants.DefaultRequestTimeout, Parallel: 1, Summary: "text"},
		},
		"Configuration file overrides defaults": {
			conf: &commands.AppConfig{Timeout: 10 * time.Second, Parallel: 4, Summary: "yaml", DryRun: true},
			want: commands.AppConfig{Timeout: 10 * time.Second, Parallel: 4, Summary: "yaml", DryRun: true},
		},
		"Environment overrides configuration file": {
			conf: &commands.AppConfig{Parallel: 4, Summary: "yaml"},
			env:  map[string]string{"MIGRATE_PARALLEL": "8", "MIGRATE_NO_IBEACON": "true", "MIGRATE_TIMEOUT": "1m", "MIGRATE_SUMMARY": "json"},
			want: commands.AppConfig{Timeout: time.Minute, Parallel: 8, Summary: "json", NoIBeacon: true},
		},
		"Environment does not override unset keys of the configuration file": {
			conf: &commands.AppConfig{Summary: "yaml"},
			env:  map[string]string{"MIGRATE_PARALLEL": "8"},
			want: commands.AppConfig{Timeout: constants.DefaultRequestTimeout, Parallel: 8, Summary: "yaml"},
		},
		"Flags override everything": {
			conf:  &commands.AppConfig{Parallel: 4, Summary: "yaml"},
			env:   map[string]string{"MIGRATE_PARALLEL": "8", "MIGRATE_SUMMARY": "json"},
			flags: []string{"-p", "2", "--summary", "toml", "--timeout", "3s"},
			want:  commands.AppConfig{Timeout: 3 * time.Second, Parallel: 2, Summary: "toml"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			fake := cloudtestutils.New(t, "app", "token")

			args := append([]string{"app", "token", "--server_url", fake.URL()}, tc.flags...)
			a := commands.NewForTests(t, tc.conf, args...)
			a.SetOutput(io.Discard, io.Discard)
			require.NoError(t, a.Run(), "Run should not return an error")

			got := a.Config()
			assert.Equal(t, tc.want.Timeout, got.Timeout, "Unexpected timeout")
			assert.Equal(t, tc.want.Parallel, got.Parallel, "Unexpected parallelism")
			assert.Equal(t, tc.want.NoIBeacon, got.NoIBeacon, "Unexpected iBeacon setting")
			assert.Equal(t, tc.want.DryRun, got.DryRun, "Unexpected dry run setting")
			assert.Equal(t, tc.want.Summary, got.Summary, "Unexpected summary format")
		})
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not fail")

	var out bytes.Buffer
	a.SetArgs("version")
	a.SetOutput(&out, io.Discard)

	require.NoError(t, a.Run(), "Version should not fail")
	require.Equal(t, constants.CmdName+"\t"+constants.Version+"\n", out.String(), "Unexpected version output")
}
