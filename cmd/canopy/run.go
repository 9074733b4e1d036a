package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gookit/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/canopy-dev/canopy/local"
	"github.com/canopy-dev/canopy/mode"
	"github.com/canopy-dev/canopy/queens"
	"github.com/canopy-dev/canopy/script"
	"github.com/canopy-dev/canopy/supervisor"
	"github.com/canopy-dev/canopy/tree"
)

var (
	workersFlag    int
	checkpointFlag string
	debugFlag      bool
)

var runCmd = &cobra.Command{
	Use:   "run RUNFILE",
	Short: "Run an exploration described by a TOML run file",
	Args:  cobra.MinimumNArgs(1),
	Run:   runCommand,
}

func init() {
	runCmd.Flags().IntVar(&workersFlag, "workers", 0, "Worker count (overrides the run file; 0 means one per CPU)")
	runCmd.Flags().StringVar(&checkpointFlag, "checkpoint", "", "Checkpoint file path (overrides the run file)")
	runCmd.Flags().BoolVar(&debugFlag, "debug", false, "Enable supervisor bookkeeping validation")
}

// duration lets TOML carry values like "30s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// runSpec is the TOML shape of a run file. Exactly one of Script and
// Problem selects the tree.
type runSpec struct {
	Script  string `toml:"script"`
	Problem string `toml:"problem"`
	Size    int    `toml:"size"`

	Mode      string `toml:"mode"`
	Monoid    string `toml:"monoid"`
	Threshold int64  `toml:"threshold"`

	Workers        int      `toml:"workers"`
	Buffer         int      `toml:"buffer"`
	Checkpoint     string   `toml:"checkpoint"`
	UpdateInterval duration `toml:"update-interval"`
	Debug          bool     `toml:"debug"`
}

func runCommand(cmd *cobra.Command, args []string) {
	var spec runSpec
	if _, err := toml.DecodeFile(args[0], &spec); err != nil {
		log.Fatal().Err(err).Msg("Couldn't load run file")
	}
	if workersFlag > 0 {
		spec.Workers = workersFlag
	}
	if checkpointFlag != "" {
		spec.Checkpoint = checkpointFlag
	}
	if debugFlag {
		spec.Debug = true
	}

	build, err := buildTree(&spec)
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't build the search tree")
	}
	m, err := buildMode(&spec)
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't configure the run mode")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintln(os.Stderr, color.Cyan.Sprintf("Exploring in %s mode...", m.Name()))

	out, err := local.Run(ctx, build, m, local.Options{
		Workers:        spec.Workers,
		BufferSize:     spec.Buffer,
		Debug:          spec.Debug,
		CheckpointPath: spec.Checkpoint,
		UpdateInterval: time.Duration(spec.UpdateInterval),
		Logger:         log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Run failed to start")
	}

	printOutcome(out)
	if out.Reason == supervisor.Failure {
		os.Exit(1)
	}
}

func buildTree(spec *runSpec) (func() tree.Tree, error) {
	switch {
	case spec.Script != "" && spec.Problem != "":
		return nil, fmt.Errorf("run file sets both script and problem")
	case spec.Script != "":
		prog, err := script.Load(spec.Script)
		if err != nil {
			return nil, err
		}
		return prog.Tree, nil
	case spec.Problem == "nqueens":
		n := spec.Size
		if n <= 0 {
			return nil, fmt.Errorf("nqueens needs a positive size")
		}
		if spec.Monoid == "list" {
			return func() tree.Tree { return queens.Tree(n) }, nil
		}
		return func() tree.Tree { return queens.CountTree(n) }, nil
	case spec.Problem != "":
		return nil, fmt.Errorf("unknown problem %q", spec.Problem)
	default:
		return nil, fmt.Errorf("run file names neither a script nor a problem")
	}
}

func buildMode(spec *runSpec) (mode.Mode, error) {
	var monoid mode.Monoid
	switch spec.Monoid {
	case "", "count":
		monoid = mode.IntSum{}
	case "list":
		monoid = mode.ListAppend{}
	default:
		return nil, fmt.Errorf("unknown monoid %q", spec.Monoid)
	}

	pred := func(r any) bool {
		if spec.Threshold <= 0 {
			return false
		}
		if list, ok := r.([]any); ok {
			return int64(len(list)) >= spec.Threshold
		}
		return mode.AsInt64(r) >= spec.Threshold
	}

	switch spec.Mode {
	case "", "all":
		return mode.All(monoid), nil
	case "first":
		return mode.First(), nil
	case "found-pull":
		return mode.FoundPull(monoid, pred), nil
	case "found-push":
		return mode.FoundPush(monoid, pred), nil
	default:
		return nil, fmt.Errorf("unknown mode %q", spec.Mode)
	}
}

func printOutcome(out *supervisor.Outcome) {
	switch out.Reason {
	case supervisor.Completed:
		fmt.Fprintln(os.Stderr, color.Green.Sprint("✓ Exploration completed"))
		printResult(out.Progress.Result)
	case supervisor.Aborted:
		fmt.Fprintln(os.Stderr, color.Yellow.Sprintf("Exploration aborted: %s", out.Message))
		fmt.Fprintln(os.Stderr, "Partial progress was checkpointed; rerun to resume.")
	case supervisor.Failure:
		if out.FailedWorker != "" {
			fmt.Fprintln(os.Stderr, color.Red.Sprintf("✗ Worker %s failed: %s", out.FailedWorker, out.Message))
		} else {
			fmt.Fprintln(os.Stderr, color.Red.Sprintf("✗ Exploration failed: %s", out.Message))
		}
	}
	printStatistics(out)
}

func printResult(r any) {
	switch r := r.(type) {
	case *mode.Located:
		if r == nil {
			fmt.Println("No result found.")
			return
		}
		fmt.Printf("Found %v at %s\n", r.Value, r.Where)
	case []any:
		fmt.Printf("Found %d results:\n", len(r))
		for _, v := range r {
			fmt.Printf("  %v\n", v)
		}
	default:
		fmt.Printf("Result: %v\n", r)
	}
}

func printStatistics(out *supervisor.Outcome) {
	st := out.Statistics
	elapsed := st.End.Sub(st.Start)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Run statistics:")
	fmt.Fprintf(os.Stderr, "  Wall time:             %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  Workers (average):     %.2f\n", st.AverageWorkerCount)
	fmt.Fprintf(os.Stderr, "  Worker occupation:     %.1f%%\n", st.AverageWorkerOccupation*100)
	fmt.Fprintf(os.Stderr, "  Supervisor occupation: %.1f%%\n", st.SupervisorOccupation*100)
	fmt.Fprintf(os.Stderr, "  Average wait time:     %.3fs\n", st.AverageWorkerWaitTime)
	fmt.Fprintf(os.Stderr, "  Steals:                %d completed, %d failed\n",
		st.StealTimes.Count, st.FailedStealCount)
	if st.StealTimes.Count > 0 {
		fmt.Fprintf(os.Stderr, "  Steal time:            %.3fs mean (±%.3fs)\n",
			st.StealTimes.Mean, st.StealTimes.StdDev)
	}
}
