// Command roomlookup is the standalone room-code lookup service: a
// small HTTP+websocket process that serves internal/lobby's directory
// independently of any particular game server process, for deployments
// that run the directory centrally rather than per-server (mirroring
// the teacher's separate room-lookup binary).
package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sdthompson1/knights-go/internal/knlog"
	"github.com/sdthompson1/knights-go/internal/lobby"
)

const releaseVersion = "0.1.0"

type cliConfig struct {
	addr string
}

func newCmd(cfg *cliConfig) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ROOMLOOKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "roomlookup",
		Short:         "Standalone Knights room-code lookup service.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVarP(&cfg.addr, "addr", "a", ":16400", "address to listen on (env: ROOMLOOKUP_ADDR)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("roomlookup v{{.Version}}\n")
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func run(cfg *cliConfig) error {
	log := knlog.Default()
	dir := lobby.NewDirectory(log)
	log.Info("roomlookup listening", "addr", cfg.addr)
	return http.ListenAndServe(cfg.addr, lobby.Handler(dir))
}

func main() {
	cfg := &cliConfig{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
