// Package constants is responsible for defining the constants used in the application.
package constants

import (
	"log/slog"
	"time"
)

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "migrate"

	// TracerName is the instrumentation name used for spans emitted by the tool.
	TracerName = "attachments-migration"

	// DefaultServerURL is the default base URL of the device management cloud.
	DefaultServerURL = "https://cloud.estimote.com"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// DefaultRequestTimeout is the default timeout applied to every request sent to the cloud.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultParallel is the default number of devices migrated concurrently.
	DefaultParallel = 1

	// MaxParallel is the maximum number of devices that can be migrated concurrently.
	MaxParallel = 32

	// DefaultSummaryFormat is the default format of the summary printed after a run.
	DefaultSummaryFormat = "text"
)

// SummaryFormats lists the formats the run summary can be rendered in.
var SummaryFormats = []string{"text", "json", "yaml", "toml", "none"}
