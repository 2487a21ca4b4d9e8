// Package cli provides utility functions for command line interface applications.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// InitViperConfig loads the configuration of cmdName into vip.
//
// The file given with --config is read when set, and failing to read it is an error.
// Otherwise a file named cmdName with any extension viper supports is looked up in the
// directories returned by ConfigDirs, the first match winning; having none is fine.
// Environment variables named after the upper-cased cmdName and the key override the file,
// with dashes and dots in keys read as underscores: --no-ibeacon maps to MIGRATE_NO_IBEACON.
func InitViperConfig(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	explicit, _ := cmd.Flags().GetString("config")
	if explicit != "" {
		vip.SetConfigFile(explicit)
	} else {
		vip.SetConfigName(cmdName)
		for _, dir := range ConfigDirs(cmdName) {
			vip.AddConfigPath(dir)
		}
	}

	err := vip.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		slog.Info("Using configuration file", "file", vip.ConfigFileUsed())
	case errors.As(err, &notFound):
		slog.Info("No configuration file, using defaults, environment and flags only", "name", cmdName)
	default:
		return fmt.Errorf("invalid configuration file: %w", err)
	}

	vip.SetEnvPrefix(cmdName)
	vip.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	// Only keys viper knows of, such as bound flags, are resolved from the environment on Unmarshal.
	vip.AutomaticEnv()

	return nil
}

// ConfigDirs returns the directories searched, in order, for the configuration file of cmdName:
// the working directory, the system configuration directories and the directory of the
// running executable.
func ConfigDirs(cmdName string) []string {
	dirs := []string{"."}

	switch runtime.GOOS {
	case "windows":
		dirs = append(dirs, filepath.Join(`C:\ProgramData`, cmdName))
	default:
		dirs = append(dirs, filepath.Join("/etc", cmdName), filepath.Join("/usr/local/etc", cmdName))
	}

	bin, err := os.Executable()
	if err != nil {
		slog.Warn("Could not locate the executable, not searching its directory for configuration", "error", err)
		return dirs
	}
	return append(dirs, filepath.Dir(bin))
}

// InstallConfigFlag adds a config flag to the command.
func InstallConfigFlag(cmd *cobra.Command) *string {
	return cmd.PersistentFlags().String("config", "", "use a specific configuration file")
}

// DecodeHooks returns the viper decoder option used to unmarshal configuration into structs.
//
// Durations are accepted as Go duration strings ("30s") and slices as comma separated values.
func DecodeHooks() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}
