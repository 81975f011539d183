// Package compress fuses a run's per-tick checkpoints into the single
// movement.json playback artifact and a human-readable simulation.md report
// a replay client consumes, the compression pass named in the simulation's
// CLI surface.
package compress

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fernglen/townsim/simulation_server/maze"
	simulationloader "github.com/fernglen/townsim/simulation_server/simulation_loader"
)

// framesPerCheckpoint is how many playback frames one simulated tick inflates
// into; a 60fps assumption independent of the tick's actual sec_per_step.
const framesPerCheckpoint = 60

// Run reads every checkpoints/<sim>/simulate-*.json file in checkpointsDir,
// in order, plus its conversation.json, and writes movement.json and
// simulation.md under outDir.
//
// Frame "0" seeds every agent's starting location and action straight from
// the first checkpoint. Each checkpoint thereafter - including the first,
// whose walk we can't recover since no pre-tick-1 snapshot exists - then
// contributes exactly framesPerCheckpoint frames, so N checkpoints always
// produce N*framesPerCheckpoint+1 total frame keys.
func Run(checkpointsDir, mazeFolder, outDir string) error {
	names, err := checkpointFiles(checkpointsDir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no checkpoints found in %s", checkpointsDir)
	}

	raws := make([][]byte, len(names))
	for i, name := range names {
		b, err := os.ReadFile(path.Join(checkpointsDir, name))
		if err != nil {
			return fmt.Errorf("could not read checkpoint %s: %w", name, err)
		}
		raws[i] = b
	}

	conversation, err := os.ReadFile(path.Join(checkpointsDir, "conversation.json"))
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("could not read conversation log: %w", err)
		}
		conversation = []byte("{}")
	}

	first := raws[0]
	mazeName := gjson.GetBytes(first, "maze_name").String()
	secPerStep := gjson.GetBytes(first, "sec_per_step").Int()
	startDatetime := gjson.GetBytes(first, "curr_time").String()

	m, err := simulationloader.LoadMaze(path.Join(mazeFolder, mazeName), mazeName)
	if err != nil {
		return fmt.Errorf("could not load maze: %w", err)
	}

	var personaNames []string
	for name := range gjson.GetBytes(first, "personas").Map() {
		personaNames = append(personaNames, name)
	}
	sort.Strings(personaNames)

	doc := []byte("{}")
	if doc, err = sjson.SetBytes(doc, "start_datetime", startDatetime); err != nil {
		return fmt.Errorf("could not set start_datetime: %w", err)
	}
	if doc, err = sjson.SetBytes(doc, "stride", secPerStep); err != nil {
		return fmt.Errorf("could not set stride: %w", err)
	}
	if doc, err = sjson.SetBytes(doc, "sec_per_step", secPerStep); err != nil {
		return fmt.Errorf("could not set sec_per_step: %w", err)
	}

	description := map[string]string{}
	prevTile := map[string]maze.TilePos{}

	for _, name := range personaNames {
		p := gjson.GetBytes(first, "personas."+escapePath(name))
		tile := tileFromResult(p.Get("curr_tile"))
		prevTile[name] = tile
		description[name] = p.Get("currently").String()

		if doc, err = sjson.SetBytes(doc, "persona_init_pos."+escapePath(name), [2]int{tile.X, tile.Y}); err != nil {
			return fmt.Errorf("could not set persona_init_pos for %s: %w", name, err)
		}
		if doc, err = setFrame(doc, "0", name, frameEntry(m, tile, p)); err != nil {
			return fmt.Errorf("could not set seed frame for %s: %w", name, err)
		}
	}
	if doc, err = sjson.SetBytes(doc, "description", description); err != nil {
		return fmt.Errorf("could not set description: %w", err)
	}

	for ci, raw := range raws {
		personas := gjson.GetBytes(raw, "personas")
		for _, name := range personaNames {
			p := personas.Get(escapePath(name))
			if !p.Exists() {
				continue
			}

			tile := tileFromResult(p.Get("curr_tile"))
			route := m.Pathfind(prevTile[name], tile)

			for i, f := range inflate(m, tile, route, p) {
				key := strconv.Itoa(ci*framesPerCheckpoint + i + 1)
				if doc, err = setFrame(doc, key, name, f); err != nil {
					return fmt.Errorf("could not set frame %s for %s: %w", key, name, err)
				}
			}

			prevTile[name] = tile
		}
	}

	if doc, err = sjson.SetRawBytes(doc, "conversation", conversation); err != nil {
		return fmt.Errorf("could not embed conversation log: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}
	if err := os.WriteFile(path.Join(outDir, "movement.json"), doc, 0o644); err != nil {
		return fmt.Errorf("could not write movement.json: %w", err)
	}

	report := buildReport(raws, personaNames, conversation)
	if err := os.WriteFile(path.Join(outDir, "simulation.md"), []byte(report), 0o644); err != nil {
		return fmt.Errorf("could not write simulation.md: %w", err)
	}

	return nil
}

func checkpointFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not list checkpoints directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "simulate-") {
			continue
		}
		names = append(names, e.Name())
	}

	sort.Strings(names)
	return names, nil
}

// escapePath guards persona names against gjson/sjson's path syntax; town
// personas are plain names ("Isabella Rodriguez") but the dot separator is
// escaped defensively since a name containing one would otherwise split a
// path segment.
func escapePath(name string) string {
	return strings.ReplaceAll(name, ".", "\\.")
}

func tileFromResult(r gjson.Result) maze.TilePos {
	arr := r.Array()
	if len(arr) != 2 {
		return maze.TilePos{}
	}
	return maze.TilePos{X: int(arr[0].Int()), Y: int(arr[1].Int())}
}

// frame is one agent's entry for one playback frame.
type frame struct {
	Location []string
	Movement [2]int
	Action   string
}

func setFrame(doc []byte, key, persona string, f frame) ([]byte, error) {
	base := "all_movement." + escapePath(key) + "." + escapePath(persona)

	var err error
	if doc, err = sjson.SetBytes(doc, base+".location", f.Location); err != nil {
		return doc, err
	}
	if doc, err = sjson.SetBytes(doc, base+".movement", f.Movement); err != nil {
		return doc, err
	}
	return sjson.SetBytes(doc, base+".action", f.Action)
}

// arrivedAction renders the action text shown once an agent reaches its
// destination tile, prefixed the way the original playback marks sleep and
// conversation frames.
func arrivedAction(p gjson.Result) string {
	desc := p.Get("act_description").String()
	if desc == "" {
		desc = p.Get("currently").String()
	}

	if p.Get("chatting_with").String() != "" {
		return "💬 " + desc
	}
	if strings.Contains(desc, "sleep") {
		return "😴 " + desc
	}

	return desc
}

func frameEntry(m *maze.Maze, tile maze.TilePos, p gjson.Result) frame {
	return frame{
		Location: m.GetTile(tile).Path.LocationTriplet(),
		Movement: [2]int{tile.X, tile.Y},
		Action:   arrivedAction(p),
	}
}

// inflate spreads one tick's walk across framesPerCheckpoint frames: while
// more than one route tile remains ahead, frames show the agent walking
// toward its destination address; the trailing frames show its arrived
// action.
func inflate(m *maze.Maze, to maze.TilePos, route []maze.TilePos, p gjson.Result) []frame {
	frames := make([]frame, framesPerCheckpoint)
	target := p.Get("act_address").String()

	for i := 0; i < framesPerCheckpoint; i++ {
		idx := 0
		if len(route) > 1 {
			idx = (i + 1) * (len(route) - 1) / framesPerCheckpoint
			if idx >= len(route) {
				idx = len(route) - 1
			}
		}

		tile := to
		if len(route) > 0 {
			tile = route[idx]
		}

		if len(route) > 1 && idx < len(route)-1 {
			frames[i] = frame{
				Location: m.GetTile(tile).Path.LocationTriplet(),
				Movement: [2]int{tile.X, tile.Y},
				Action:   "前往 " + target,
			}
			continue
		}

		frames[i] = frameEntry(m, tile, p)
	}

	return frames
}

// buildReport renders a per-timestamp, per-agent markdown narrative of the
// run, quoting any dialogue recorded in conversation.json for that tick.
func buildReport(raws [][]byte, personaNames []string, conversation []byte) string {
	var b strings.Builder
	b.WriteString("# Simulation playback\n")

	convo := gjson.ParseBytes(conversation)

	for _, raw := range raws {
		ts := gjson.GetBytes(raw, "curr_time").String()
		b.WriteString(fmt.Sprintf("\n## %s\n\n", ts))

		tick := ts
		if t, err := time.Parse(simulationloader.CurrentTimeFormat, ts); err == nil {
			tick = t.Format(time.RFC3339)
		}

		for _, name := range personaNames {
			p := gjson.GetBytes(raw, "personas."+escapePath(name))
			if !p.Exists() {
				continue
			}

			b.WriteString(fmt.Sprintf("- **%s**: %s\n", name, arrivedAction(p)))

			dialogue := convo.Get(escapePath(tick) + "." + escapePath(name))
			if !dialogue.Exists() {
				continue
			}
			for _, utt := range dialogue.Array() {
				pair := utt.Array()
				if len(pair) != 2 {
					continue
				}
				b.WriteString(fmt.Sprintf("  - %s: \"%s\"\n", pair[0].String(), pair[1].String()))
			}
		}
	}

	return b.String()
}
