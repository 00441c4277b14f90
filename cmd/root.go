package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/cockroachdb/errors"
	"github.com/crmvault/crmvault/internal/config"
	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/crmvault/crmvault/internal/reconcile"
	"github.com/crmvault/crmvault/internal/remote"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/spf13/cobra"
)

func mustFlagBool(cmd *cobra.Command, name string, required bool) bool {
	val, err := cmd.Flags().GetBool(name)
	if required && err != nil {
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
	return val
}

func mustFlagInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
	return val
}

func mustFlagString(cmd *cobra.Command, name string, required bool) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
	if required && val == "" {
		fmt.Printf("error: required flag --%s missing\n", name)
		os.Exit(1)
	}
	return val
}

func newLogger(cmd *cobra.Command) logger.Logger {
	if mustFlagBool(cmd, "verbose", false) {
		return logger.NewConsoleLogger(logger.LevelTrace)
	}
	if mustFlagBool(cmd, "silent", false) {
		return logger.NewConsoleLogger(logger.LevelError)
	}
	return logger.NewConsoleLogger(logger.LevelInfo)
}

func fatal(log logger.Logger, err error) {
	log.Error("error: %s", err)
	os.Exit(1)
}

// loadPackage opens the backup package named by --dir.
func loadPackage(cmd *cobra.Command, log logger.Logger) *datapkg.Package {
	dir := mustFlagString(cmd, "dir", true)
	pkg, err := datapkg.Load(dir)
	if err != nil {
		fatal(log, err)
	}
	return pkg
}

// newRemote builds the API client from flags and environment.
func newRemote(cmd *cobra.Command, log logger.Logger) *remote.Client {
	cfg, err := config.Load(mustFlagString(cmd, "api-token", false))
	if err != nil {
		fatal(log, err)
	}
	return remote.New(remote.Config{
		BaseURL:    cfg.BaseURL,
		APIToken:   cfg.APIToken,
		Logger:     log,
		RateBudget: cfg.RateBudget,
		RateWindow: cfg.RateWindow,
		Timeout:    cfg.Timeout,
	})
}

// selectEntities resolves positional entity prefixes, defaulting to all
// writable entities in store order when none are given.
func selectEntities(args []string) ([]entity.Config, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return entity.MatchAll(args)
}

// confirmPrompt asks a yes/no/abort question through a huh form.
func confirmPrompt(prompt string) (reconcile.Decision, error) {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Yes").
				Negative("Skip").
				Value(&confirmed),
		),
	)
	form.WithTheme(huh.ThemeBase())
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return reconcile.Abort, nil
		}
		return reconcile.No, err
	}
	if confirmed {
		return reconcile.Yes, nil
	}
	return reconcile.No, nil
}

// openActionLog returns a JSONL writer for --log, or a no-op when unset.
func openActionLog(cmd *cobra.Command, log logger.Logger) (func(v any), func()) {
	path := mustFlagString(cmd, "log", false)
	if path == "" {
		return func(any) {}, func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fatal(log, err)
	}
	enc := json.NewEncoder(f)
	write := func(v any) {
		if err := enc.Encode(v); err != nil {
			log.Warn("writing action log: %s", err)
		}
	}
	return write, func() { f.Close() }
}

// Version is set by main from the build environment.
var Version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "crmvault",
	Short: "Back up, edit offline and reconcile CRM records",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "turn on verbose logging")
	rootCmd.PersistentFlags().Bool("silent", false, "turn off all logging except errors")
	rootCmd.PersistentFlags().String("api-token", "", "the API token (or set CRMVAULT_API_TOKEN)")
}
