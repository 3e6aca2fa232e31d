package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"authmsg/internal/app"
)

var (
	cfg app.Config

	configPath   string
	home         string
	authorityURL string
	logLevel     string
	logFormat    string
	keyCache     string
)

// Execute runs the CLI.
func Execute() error {
	return newRoot().Execute()
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "authmsg",
		Short:         "Authority-verified end-to-end encrypted messaging",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("home") {
				loaded.Home = home
			}
			if flags.Changed("authority") {
				loaded.Authority.URL = authorityURL
			}
			if flags.Changed("log-level") {
				loaded.Log.Level = logLevel
			}
			if flags.Changed("log-format") {
				loaded.Log.Format = logFormat
			}
			if flags.Changed("key-cache") {
				loaded.KeyCache.Backend = keyCache
			}
			cfg = loaded
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&home, "home", "", "state dir for file-backed stores (default ~/.authmsg)")
	pf.StringVar(&authorityURL, "authority", "", "authority base URL; empty runs the development authority in process")
	pf.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "text", "text or json")
	pf.StringVar(&keyCache, "key-cache", app.KeyCacheMemory, fmt.Sprintf("%s, %s or %s", app.KeyCacheMemory, app.KeyCacheFile, app.KeyCacheRedis))

	root.AddCommand(demoCmd(), bindCmd(), verifyCmd(), versionCmd())
	return root
}
