package cmd

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/fernglen/townsim/simulation_server/compress"
	simulationloader "github.com/fernglen/townsim/simulation_server/simulation_loader"
)

func newCompressCommand() *cobra.Command {
	var (
		name       string
		mazeDir    string
		resultsDir string
	)

	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Fuse a simulation's checkpoints into a single playback artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			storage := simulationloader.FileStorage{ResultsDir: resultsDir, Simulation: name}
			outDir := path.Join(resultsDir, "compressed", name)

			if err := compress.Run(storage.CheckpointsDir(), mazeDir, outDir); err != nil {
				return fmt.Errorf("could not compress simulation %q: %w", name, err)
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "name", os.Getenv("SIMULATION_NAME"), "simulation identifier")
	flags.StringVar(&mazeDir, "maze-dir", os.Getenv("MAZE_DIR"), "maze asset directory")
	flags.StringVar(&resultsDir, "results-dir", envOr("GA_RESULTS_DIR", "results"), "checkpoint/compression output root")

	return cmd
}
