package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fernglen/townsim/simulation_server/llm/openai"
	"github.com/fernglen/townsim/simulation_server/logging"
	"github.com/fernglen/townsim/simulation_server/server"
	simulationloader "github.com/fernglen/townsim/simulation_server/simulation_loader"
)

type runOpts struct {
	Name       string
	MazeDir    string
	SimDir     string
	ResultsDir string
	LogDir     string

	Start     string
	Steps     int
	StrideMin int
	Resume    bool
	Verbose   bool
}

func newRunCommand() *cobra.Command {
	var o runOpts

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Advance a simulation by a number of ticks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(o)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.Name, "name", os.Getenv("SIMULATION_NAME"), "simulation identifier")
	flags.StringVar(&o.MazeDir, "maze-dir", os.Getenv("MAZE_DIR"), "maze asset directory")
	flags.StringVar(&o.SimDir, "sim-dir", os.Getenv("SIMULATION_DIR"), "seed simulation directory a fresh run forks from")
	flags.StringVar(&o.ResultsDir, "results-dir", envOr("GA_RESULTS_DIR", "results"), "checkpoint/compression output root")
	flags.StringVar(&o.LogDir, "log", os.Getenv("LOG_DIR"), "run log directory")
	flags.StringVar(&o.Start, "start", "", `start time as "January 02, 2006, 15:04:05"; ignored on --resume, where the checkpoint's own time is advanced instead`)
	flags.IntVar(&o.Steps, "step", 720, "number of ticks to advance")
	flags.IntVar(&o.StrideMin, "stride", 10, "simulated minutes per tick")
	flags.BoolVar(&o.Resume, "resume", false, "resume from the most recent checkpoint instead of forking a fresh simulation")
	flags.BoolVar(&o.Verbose, "verbose", false, "also emit debug-level logs to stderr")

	return cmd
}

func runSimulation(o runOpts) error {
	rl, err := logging.NewRunLogs(logging.Config{
		BaseDir:        path.Join(o.LogDir, o.Name),
		AlsoToStderr:   true,
		EnableDebugLog: true,
		Verbose:        o.Verbose,
	})
	if err != nil {
		return fmt.Errorf("could not create logger: %w", err)
	}
	defer func() { _ = rl.Close() }()
	defer logging.RecoverAndLog(rl.Log, rl.Sync)

	client := newOpenAIClient(os.Getenv("TEXT_MODEL_KEY"), os.Getenv("TEXT_MODEL_URL"), os.Getenv("TEXT_MODEL_LLM"), rl.Log)
	embedder := newOpenAIClient(os.Getenv("EMBEDDING_KEY"), os.Getenv("EMBEDDING_URL"), os.Getenv("EMBEDDING_MODEL"), rl.Log)

	storage := &simulationloader.FileStorage{
		SimulationsFolder: o.SimDir,
		ResultsDir:        o.ResultsDir,
		Simulation:        o.Name,
		Maze:              o.MazeDir,
	}

	var sim *server.Server
	if o.Resume {
		sim, err = simulationloader.ResumeSimulation(storage.CheckpointsDir(), o.MazeDir, embedder, client, rl.Log)
	} else {
		sim, err = simulationloader.LoadSimulation(path.Join(o.SimDir, o.Name), o.MazeDir, embedder, client, rl.Log)
		if err == nil && o.Start != "" {
			t, perr := time.Parse(simulationloader.CurrentTimeFormat, o.Start)
			if perr != nil {
				return fmt.Errorf("could not parse --start: %w", perr)
			}
			sim.StartTime = t
			sim.CurrentTime = t
		}
	}
	if err != nil {
		return fmt.Errorf("could not load simulation %q: %w", o.Name, err)
	}

	sim.Storage = storage
	sim.TimeStep = time.Duration(o.StrideMin) * time.Minute
	sim.BackupInterval = backupInterval()

	if err := sim.Run(o.Steps); err != nil {
		return fmt.Errorf("could not run simulation: %w", err)
	}

	return nil
}

// newOpenAIClient builds an openai.Client that doubles as both llm.Embedder
// and llm.Cognition, configured from the same env vars main.go previously
// read directly.
func newOpenAIClient(apiKey, url, model string, log *slog.Logger) *openai.Client {
	opts := []openai.ClientOpt{openai.WithAPIKey(apiKey), openai.WithLogger(log)}
	if url != "" {
		opts = append(opts, openai.WithURL(url))
	}
	if model != "" {
		opts = append(opts, openai.WithTextModel(model))
	}
	return openai.New(opts...)
}

func backupInterval() int {
	str := os.Getenv("BACKUP_INTERVAL")
	if str == "" {
		return 20
	}

	n, err := strconv.Atoi(str)
	if err != nil || n <= 0 {
		return 20
	}
	return n
}
