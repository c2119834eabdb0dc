package main

import (
	"os"

	"github.com/mpy-hil/planrunner/internal/env"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "planrunner",
	Short:         "MicroPython HIL test plan runner",
	Long:          `planrunner drives MicroPython test plans against physical boards over serial, resolving plan device requirements to connected hardware and power-cycling boards behind uhubctl-controlled hubs between tests.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.AddCommand(
		newRunCmd(),
		newDevsCmd(),
		newPowerCmd(),
	)
	_ = env.Ensure()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("planrunner command failed")
	}
}
