package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	planrunner "github.com/mpy-hil/planrunner"
	"github.com/mpy-hil/planrunner/internal/config"
	"github.com/mpy-hil/planrunner/internal/history"
	"github.com/mpy-hil/planrunner/pkg/devs"
	"github.com/mpy-hil/planrunner/pkg/testplan"
	"github.com/mpy-hil/planrunner/providers/uhubctl"
)

func newRunCmd() *cobra.Command {
	var (
		flagTestPlan   string
		flagHILDevs    string
		flagBoard      string
		flagDUTPort    string
		flagStubPort   string
		flagMaxRetries int
		flagMpyRootDir string
		flagHistoryDB  string
	)

	cmd := &cobra.Command{
		Use:   "run [test_suite...]",
		Short: "Run a test plan, or only the named test suites",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The two resolution modes are mutually exclusive: either the
			// HIL registry picks the ports, or the operator passes them.
			if flagHILDevs != "" {
				if flagBoard == "" {
					return errors.New("--board is required when --hil-devs is provided")
				}
				if flagDUTPort != "" || flagStubPort != "" {
					return errors.New("--dut-port and --stub-port are not supported when --hil-devs is provided")
				}
			} else {
				if flagBoard != "" {
					return errors.New("--hil-devs is required when --board is provided")
				}
				if flagDUTPort == "" {
					flagDUTPort = config.String("HIL_DUT_PORT", "/dev/ttyACM0")
				}
				if flagStubPort == "" {
					flagStubPort = config.String("HIL_STUB_PORT", "/dev/ttyACM1")
				}
			}

			testPlan, err := filepath.Abs(flagTestPlan)
			if err != nil {
				return err
			}
			cases, err := testplan.Load(testPlan)
			if err != nil {
				return err
			}
			cases = testplan.FilterByNames(cases, args)

			mpyRoot := flagMpyRootDir
			if mpyRoot == "" {
				mpyRoot = defaultMpyRoot()
			}

			report := planrunner.NewReport(os.Stdout)
			cfg := planrunner.Config{
				Invoker:    planrunner.NewInvoker(mpyRoot),
				MaxRetries: flagMaxRetries,
				Report:     report,
			}

			if flagHILDevs != "" {
				hilDevs, err := filepath.Abs(flagHILDevs)
				if err != nil {
					return err
				}
				cfg.Resolver = &planrunner.HILResolver{
					Registry: devs.NewRegistry(uhubctl.NewController()),
					DevsFile: hilDevs,
					Board:    flagBoard,
				}
				report.PlanInfo(testPlan, hilDevs, flagBoard)
			} else {
				cfg.Resolver = &planrunner.StaticResolver{
					DUTPort:  flagDUTPort,
					StubPort: flagStubPort,
				}
				report.PlanInfo(testPlan, "", "")
			}

			if dbPath := firstNonEmpty(flagHistoryDB, config.String("HIL_HISTORY_DB", "")); dbPath != "" {
				store, err := history.Open(dbPath)
				if err != nil {
					// History is best-effort; the run proceeds unrecorded.
					log.Error().Err(err).Str("path", dbPath).Msg("open history db failed")
				} else {
					defer store.Close()
					cfg.Recorder = store
				}
			}

			results, err := planrunner.NewEngine(cfg).RunPlan(cmd.Context(), cases)
			if err != nil {
				return err
			}
			if !results.AllPassed() {
				return fmt.Errorf("%d test(s) failed after retries", len(results.Failed()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagTestPlan, "test-plan", "test-plan.yml", "Path to the test plan file")
	cmd.Flags().StringVar(&flagHILDevs, "hil-devs", "", "Path to the HIL devices file")
	cmd.Flags().StringVarP(&flagBoard, "board", "b", "", "Test board name (only used with --hil-devs)")
	cmd.Flags().StringVarP(&flagDUTPort, "dut-port", "d", "", "Device under test port. Default is /dev/ttyACM0")
	cmd.Flags().StringVarP(&flagStubPort, "stub-port", "s", "", "Stub device port. Default is /dev/ttyACM1")
	cmd.Flags().IntVar(&flagMaxRetries, "max-retries", 0, "Maximum number of retries for failed tests")
	cmd.Flags().StringVar(&flagMpyRootDir, "mpy-root-dir", "", "Path to the root of the MicroPython repository")
	cmd.Flags().StringVar(&flagHistoryDB, "history-db", "", "Record test outcomes to this sqlite file")
	return cmd
}

// defaultMpyRoot mirrors the historical layout where the runner lives two
// levels below the MicroPython root.
func defaultMpyRoot() string {
	if root := config.String("MPY_ROOT_DIR", ""); root != "" {
		return root
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Clean(filepath.Join(filepath.Dir(exe), "..", ".."))
	}
	return "."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
