// Command metserver is the MET signalling server: it forks the bounded
// controller set described on its command line, mediates their signal
// exchange for the lifetime of the experiment, and exits with the
// accumulated protocol error kind as its status code (§6, §7).
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/jsdpag/metcore/pkg"
	"github.com/jsdpag/metcore/pkg/prof"
	"github.com/jsdpag/metcore/server"
)

var flags struct {
	SlotCapacity   string
	TrialIndexPath string
	LogFormat      string
	RuntimeExec    string
	CPUProfile     string
}

var rootCmd = &cobra.Command{
	Use:   "metserver R_S R_E R_N (OPTS_RUNTIME OPTS_CONTROLLER)...",
	Short: "MET signal-routing server for a fixed group of experiment controllers",
	Args:  cobra.MinimumNArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("log-format") {
			flags.LogFormat = defaultLogFormat()
		}
		return run(args)
	},
	SilenceUsage: true,
}

// defaultLogFormat picks a log format when the operator didn't set
// --log-format explicitly: text on an interactive controlling terminal,
// JSON when stderr is redirected to a file, pipe, or supervisor (the
// usual case for a server process launched under systemd/docker).
func defaultLogFormat() string {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return "text"
	}
	return "json"
}

func init() {
	rootCmd.Flags().StringVar(&flags.SlotCapacity, "slot-capacity", "", "shared-memory slot byte capacity (e.g. 8MB); default 4MB")
	rootCmd.Flags().StringVar(&flags.TrialIndexPath, "trial-index", "trial.idx", "path to the persisted trial-index file")
	rootCmd.Flags().StringVar(&flags.LogFormat, "log-format", "text", "log output format: text or json")
	rootCmd.Flags().StringVar(&flags.RuntimeExec, "runtime-exec", "metctrl", "embedding-runtime executable each controller is fork/exec'd as")
	rootCmd.Flags().StringVar(&flags.CPUProfile, "cpu-profile", "", "write a CPU profile to this path for the run's lifetime (requires a 'profile'-tagged build; a no-op otherwise)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		kind := pkg.KindOf(err)
		if kind == pkg.NONE {
			kind = pkg.INTRN
		}
		fmt.Fprintf(os.Stderr, "metserver: %v\n", err)
		os.Exit(int(kind))
	}
}

func run(args []string) error {
	log := newLogger(flags.LogFormat)
	defer log.Sync()

	if flags.CPUProfile != "" {
		if err := prof.StartCPU(flags.CPUProfile); err != nil {
			return fmt.Errorf("metserver: start CPU profile: %w", err)
		}
		defer prof.StopCPU()
	}

	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	mgr, err := server.New(cfg, server.WithLog(log))
	if err != nil {
		return err
	}

	rtr, err := mgr.Launch()
	if err != nil {
		return err
	}

	runErr := rtr.Run()
	rtr.Close()
	mgr.Shutdown(runErr)
	return runErr
}

// parseConfig builds a server.Config from the positional command line:
// three reader counts followed by one (OPTS_RUNTIME, OPTS_CONTROLLER) pair
// per controller (§6).
func parseConfig(args []string) (*server.Config, error) {
	readerCounts, rest, err := parseReaderCounts(args)
	if err != nil {
		return nil, err
	}
	if len(rest)%2 != 0 {
		return nil, fmt.Errorf("metserver: expected an (OPTS_RUNTIME OPTS_CONTROLLER) pair per controller, got %d trailing tokens", len(rest))
	}

	n := len(rest) / 2
	children := make([]server.ChildConfig, n)
	for i := 0; i < n; i++ {
		runtimeOpts := rest[2*i]
		controllerOpts := rest[2*i+1]

		function, cargs, roles, err := server.ParseChildOptions(controllerOpts)
		if err != nil {
			return nil, err
		}

		children[i] = server.ChildConfig{
			ID:          uint8(i + 1),
			RuntimeArgs: strings.Fields(runtimeOpts),
			Function:    function,
			Args:        cargs,
			Roles:       roles,
		}
	}

	cfg := &server.Config{
		ReaderCounts:   readerCounts,
		Children:       children,
		TrialIndexPath: flags.TrialIndexPath,
		RuntimeExec:    flags.RuntimeExec,
	}

	if flags.SlotCapacity != "" {
		var cap datasize.ByteSize
		if err := cap.UnmarshalText([]byte(flags.SlotCapacity)); err != nil {
			return nil, fmt.Errorf("metserver: parse --slot-capacity %q: %w", flags.SlotCapacity, err)
		}
		cfg.SlotCapacity = cap
	}

	return cfg, nil
}

func parseReaderCounts(args []string) (counts [3]int, rest []string, err error) {
	if len(args) < 3 {
		return counts, nil, fmt.Errorf("metserver: expected R_S R_E R_N reader counts")
	}
	for i := 0; i < 3; i++ {
		n, perr := strconv.Atoi(args[i])
		if perr != nil {
			return counts, nil, fmt.Errorf("metserver: reader count %q is not an integer: %w", args[i], perr)
		}
		counts[i] = n
	}
	return counts, args[3:], nil
}

func newLogger(format string) *zap.SugaredLogger {
	if format == "json" {
		return pkg.NewJSONLogger(os.Stderr, zapcore.InfoLevel)
	}
	return pkg.NewLogger(os.Stderr, zapcore.InfoLevel)
}
