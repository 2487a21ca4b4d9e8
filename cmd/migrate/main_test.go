package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type myApp struct {
	runError         bool
	usageErrorReturn bool
}

func (a myApp) Run() error {
	if a.runError {
		return errors.New("Error requested")
	}
	return nil
}

func (a myApp) UsageError() bool {
	return a.usageErrorReturn
}

func TestRun(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		runError         bool
		usageErrorReturn bool

		wantReturnCode int
	}{
		"Run_and_exit_successfully":              {},
		"Run_and_return_error":                   {runError: true, wantReturnCode: 1},
		"Run_and_return_usage_error":             {usageErrorReturn: true, runError: true, wantReturnCode: 2},
		"Run_and_usage_error_only_does_not_fail": {usageErrorReturn: true, runError: false, wantReturnCode: 0},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a := myApp{
				runError:         tc.runError,
				usageErrorReturn: tc.usageErrorReturn,
			}

			require.Equal(t, tc.wantReturnCode, run(a), "Return expected code")
		})
	}
}
