package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand(viper.New()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "goguard",
		Short:         "Session, rate limit and account-security service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindSettings(v, configFile); err != nil {
				return err
			}
			setupLogging(v.GetString("log.level"), v.GetBool("log.pretty"))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Optional config file (yaml, toml, json or .env)")
	flags.String("redis-addr", "", "Redis address; empty with --dev starts an in-process miniredis")
	flags.Bool("dev", false, "Development mode: in-process Redis, revealed OTP codes, insecure cookies allowed")
	flags.String("log-level", "info", "Log level")
	flags.Bool("log-pretty", false, "Human-readable console logs")
	_ = v.BindPFlag("redis.addr", flags.Lookup("redis-addr"))
	_ = v.BindPFlag("dev", flags.Lookup("dev"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.pretty", flags.Lookup("log-pretty"))

	cmd.AddCommand(newServeCommand(v))
	cmd.AddCommand(newSweepCommand(v))
	cmd.AddCommand(newPolicyCommand())
	return cmd
}

func setupLogging(level string, pretty bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
