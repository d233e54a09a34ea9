// Command escrowd runs the agent job escrow: the HTTP API, the oracle
// callback endpoint and the settlement worker, plus local admin commands.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	home    string
	cfgFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "escrowd",
		Short:         "Escrow for oracle-computed agent jobs",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&flags.home, "home", defaultHome(), "daemon home directory")
	rootCmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file (default is <home>/escrowd.toml)")

	rootCmd.AddCommand(
		serveCmd(flags),
		configCmd(flags),
		keysCmd(),
		adminCmd(flags),
		providerCmd(flags),
		bankCmd(flags),
		settleCmd(flags),
	)
	return rootCmd
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".escrowd"
	}
	return filepath.Join(home, ".escrowd")
}

func (f *globalFlags) configPath() string {
	if f.cfgFile != "" {
		return f.cfgFile
	}
	return filepath.Join(f.home, "escrowd.toml")
}

// load reads the config and builds a logger writing to w.
func (f *globalFlags) load(w io.Writer) (Config, *slog.Logger, error) {
	cfg, err := loadConfig(f.home, f.configPath())
	if err != nil {
		return Config{}, nil, err
	}
	log, err := newLogger(w, cfg.Log)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, log, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
