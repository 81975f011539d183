package simulationloader

// NOTE(Friso): This entire package is a mess, but sunken cost fallacy I guess
// Also no matter how you rewrite it you will need to deal with Park's python-ness

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/fernglen/townsim/simulation_server/agent"
	"github.com/fernglen/townsim/simulation_server/llm"
	"github.com/fernglen/townsim/simulation_server/maze"
	"github.com/fernglen/townsim/simulation_server/server"
)

func LoadSimulation(simulationPath string, mazeFolder string, embedder llm.Embedder, cognition llm.Cognition, logger *slog.Logger) (*server.Server, error) {
	content, err := os.ReadFile(path.Join(simulationPath, "reverie", "meta.json"))
	if err != nil {
		return nil, fmt.Errorf("could not read simulation meta file: %w", err)
	}

	var meta SimulationMeta
	if err = json.Unmarshal(content, &meta); err != nil {
		return nil, fmt.Errorf("could not unmarshal meta file json: %w", err)
	}

	m, err := LoadMaze(path.Join(mazeFolder, meta.MazeName), meta.MazeName)
	if err != nil {
		return nil, fmt.Errorf("could not load maze: %w", err)
	}

	content, err = os.ReadFile(path.Join(simulationPath, "environment", fmt.Sprintf("%d.json", meta.Step)))
	if err != nil {
		return nil, fmt.Errorf("could not read simulation environment file: %w", err)
	}

	var env Environment
	if err = json.Unmarshal(content, &env); err != nil {
		return nil, fmt.Errorf("could not unmarshal environment file: %w", err)
	}

	personas := map[string]*agent.Persona{}
	personaTiles := map[string]maze.TilePos{}
	for _, name := range meta.PersonaNames {
		envPersona, ok := env.Personas[name]
		if !ok {
			return nil, fmt.Errorf("persona missing from environment file: %s", name)
		}

		pos := maze.TilePos{X: envPersona.X, Y: envPersona.Y}
		p, err := LoadPersona(path.Join(simulationPath, "personas", name), pos, embedder, cognition, logger)
		if err != nil {
			return nil, fmt.Errorf("could not load persona %s: %w", name, err)
		}

		personas[name] = p
		personaTiles[name] = pos
		p.SetPosition(pos)
		m.AddEventToTile(pos, p.GetCurrentEvent())
	}

	s := server.New()

	s.CurrentTime = time.Time(meta.CurrTime)
	s.StartTime = time.Time(meta.StartDate)
	s.TimeStep = time.Duration(meta.SecondsPerStep) * time.Second
	s.Maze = m
	s.Step = meta.Step
	s.Personas = personas
	s.PersonaPositions = personaTiles
	s.ForkedSim = meta.ForkSimCode
	s.BackupInterval = meta.BackupInterval
	s.Log = logger

	s.Log.Debug("simulation loaded successfully")

	return s, nil
}

// latestCheckpointName finds the lexically-greatest simulate-*.json file in
// checkpointsDir; the YYYYMMDD-HHMM naming scheme means lexical order is
// chronological order.
func latestCheckpointName(checkpointsDir string) (string, error) {
	entries, err := os.ReadDir(checkpointsDir)
	if err != nil {
		return "", fmt.Errorf("could not list checkpoints directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "simulate-") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no checkpoints found in %s", checkpointsDir)
	}

	sort.Strings(names)
	return names[len(names)-1], nil
}

// ResumeSimulation continues a simulation from its most recent checkpoint:
// per-tick state is restored verbatim except the current time, which advances
// by one stride, and the step counter, which advances by one, so the resumed
// run picks up where the checkpointed tick left off. StartTime is kept.
func ResumeSimulation(checkpointsDir string, mazeFolder string, embedder llm.Embedder, cognition llm.Cognition, logger *slog.Logger) (*server.Server, error) {
	name, err := latestCheckpointName(checkpointsDir)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path.Join(checkpointsDir, name))
	if err != nil {
		return nil, fmt.Errorf("could not read checkpoint %s: %w", name, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(content, &cp); err != nil {
		return nil, fmt.Errorf("could not unmarshal checkpoint %s: %w", name, err)
	}

	m, err := LoadMaze(path.Join(mazeFolder, cp.MazeName), cp.MazeName)
	if err != nil {
		return nil, fmt.Errorf("could not load maze: %w", err)
	}

	personas := map[string]*agent.Persona{}
	personaTiles := map[string]maze.TilePos{}
	for personaName, state := range cp.Personas {
		if len(state.CurrTile) != 2 {
			return nil, fmt.Errorf("checkpoint persona %s has malformed curr_tile", personaName)
		}
		pos := maze.TilePos{X: state.CurrTile[0], Y: state.CurrTile[1]}

		associateDir := path.Join(checkpointsDir, "storage", personaName, "associate")
		p, err := LoadPersonaFromCheckpoint(associateDir, state, pos, embedder, cognition)
		if err != nil {
			return nil, fmt.Errorf("could not load persona %s from checkpoint: %w", personaName, err)
		}

		personas[personaName] = p
		personaTiles[personaName] = pos
		p.SetPosition(pos)
		m.AddEventToTile(pos, p.GetCurrentEvent())
	}

	s := server.New()

	stride := time.Duration(cp.SecPerStep) * time.Second

	s.CurrentTime = time.Time(cp.CurrTime).Add(stride)
	s.StartTime = time.Time(cp.StartDate)
	s.TimeStep = stride
	s.Maze = m
	s.Step = cp.Step + 1
	s.Personas = personas
	s.PersonaPositions = personaTiles
	s.ForkedSim = cp.ForkSimCode
	s.Log = logger

	s.Log.Info("simulation resumed from checkpoint",
		slog.String("checkpoint", name),
		slog.Time("resume_time", s.CurrentTime),
	)

	return s, nil
}
