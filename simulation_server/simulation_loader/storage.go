package simulationloader

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fernglen/townsim/simulation_server/agent"
	"github.com/fernglen/townsim/simulation_server/memory"
	"github.com/fernglen/townsim/simulation_server/server"
)

// FileStorage persists a running simulation the way spec's filesystem layout
// expects: a self-contained checkpoint snapshot per tick plus a cumulative
// conversation log, anchored under ResultsDir (GA_RESULTS_DIR), separate from
// SimulationsFolder, which holds the read-only persona/maze seed a fresh
// simulation is forked from.
type FileStorage struct {
	SimulationsFolder string
	ResultsDir        string

	Simulation string
	Maze       string
}

// CheckpointsDir is where this simulation's per-tick snapshots and
// conversation log live; ResumeSimulation and the compression pass both read
// from it directly.
func (fs FileStorage) CheckpointsDir() string {
	return path.Join(fs.ResultsDir, "checkpoints", fs.Simulation)
}

func (fs FileStorage) storageDir(persona string) string {
	return path.Join(fs.CheckpointsDir(), "storage", persona, "associate")
}

func (fs FileStorage) conversationFile() string {
	return path.Join(fs.CheckpointsDir(), "conversation.json")
}

func (fs FileStorage) creativeRecordFile(kind string) string {
	name := map[string]string{
		"painting":         "paint-records",
		"music":            "music-records",
		"game_life_rule":   "quantum-computing-records",
	}[kind]

	return path.Join(fs.ResultsDir, name, fs.Simulation+".json")
}

func (fs FileStorage) reflectionRecordFile() string {
	return path.Join(fs.ResultsDir, "reflection-records", fs.Simulation+".json")
}

func checkpointFileName(t time.Time) string {
	return fmt.Sprintf("simulate-%s.json", t.Format("20060102-1504"))
}

func (fs *FileStorage) backupFolder(step int) string {
	return path.Join(fs.ResultsDir, "backups", fs.Simulation, strconv.Itoa(step))
}

// SaveSimulation writes one monolithic checkpoint capturing every persona's
// scratch state, appends any conversation that happened this tick, and
// refreshes each persona's standing vector store, creative-work ledgers and
// reflection record.
func (fs *FileStorage) SaveSimulation(srv *server.Server) error {
	snapshot := map[string]PersonaState{}
	var reflections []ReflectionRecord
	painting := []PaintRecord{}
	music := []MusicRecord{}
	lifeSim := []QuantumComputingRecord{}

	for name, p := range srv.Personas {
		snapshot[name] = buildPersonaState(p)

		assoc, spatial := p.Memory()
		if err := fs.saveSpatialMemory(name, spatial); err != nil {
			return err
		}
		if err := fs.saveAssociativeMemory(name, assoc); err != nil {
			return err
		}

		state := p.State()
		for _, w := range state.CreativeWorks {
			rec := CreativeRecord{Time: CurrentTime(w.CreatedAt), Persona: name, Content: w.Body}
			switch w.Kind {
			case "painting":
				painting = append(painting, PaintRecord(rec))
			case "music":
				music = append(music, MusicRecord(rec))
			case "game_life_rule":
				lifeSim = append(lifeSim, QuantumComputingRecord(rec))
			}
		}

		for _, r := range state.ReflectionLog {
			reflections = append(reflections, ReflectionRecord{
				Time:    CurrentTime(r.CreatedAt),
				Persona: name,
				Kind:    r.Kind,
				Thought: r.Thought,
			})
		}
	}

	if err := writeJson(fs.creativeRecordFile("painting"), painting); err != nil {
		return fmt.Errorf("could not save painting records: %w", err)
	}
	if err := writeJson(fs.creativeRecordFile("music"), music); err != nil {
		return fmt.Errorf("could not save music records: %w", err)
	}
	if err := writeJson(fs.creativeRecordFile("game_life_rule"), lifeSim); err != nil {
		return fmt.Errorf("could not save quantum-computing records: %w", err)
	}
	if len(reflections) != 0 {
		if err := writeJson(fs.reflectionRecordFile(), reflections); err != nil {
			return fmt.Errorf("could not save reflection records: %w", err)
		}
	}

	if err := fs.appendConversation(srv.Conversations); err != nil {
		return fmt.Errorf("could not save conversation log: %w", err)
	}

	cp := Checkpoint{
		ForkSimCode: srv.ForkedSim,
		StartDate:   StartDate(srv.StartTime),
		CurrTime:    CurrentTime(srv.CurrentTime),
		SecPerStep:  int(srv.TimeStep / time.Second),
		MazeName:    srv.Maze.Folder(),
		Step:        srv.Step,
		Personas:    snapshot,
	}

	p := path.Join(fs.CheckpointsDir(), checkpointFileName(srv.CurrentTime))
	if err := writeJson(p, cp); err != nil {
		return fmt.Errorf("could not save checkpoint: %w", err)
	}

	return nil
}

// appendConversation folds this tick's conversations into the cumulative
// conversation.json log, keyed by the tick timestamp they occurred at.
func (fs *FileStorage) appendConversation(tickConversations map[string]map[string][]memory.Utterance) error {
	if len(tickConversations) == 0 {
		return nil
	}

	log := map[string]map[string][]Utterance{}
	if content, err := os.ReadFile(fs.conversationFile()); err == nil {
		if err := json.Unmarshal(content, &log); err != nil {
			return fmt.Errorf("could not unmarshal existing conversation log: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("could not read existing conversation log: %w", err)
	}

	for tick, personas := range tickConversations {
		entry, ok := log[tick]
		if !ok {
			entry = map[string][]Utterance{}
		}
		for name, chat := range personas {
			utterances := make([]Utterance, 0, len(chat))
			for _, u := range chat {
				utterances = append(utterances, Utterance{u.Speaker, u.Sentence})
			}
			entry[name] = utterances
		}
		log[tick] = entry
	}

	return writeJson(fs.conversationFile(), log)
}

// buildPersonaState converts a persona's live agent.State into the wire
// format embedded per-agent in a checkpoint snapshot.
func buildPersonaState(p *agent.Persona) PersonaState {
	state := p.State()

	sched := make([]Plan, 0, len(state.DailySchedule))
	origSched := make([]Plan, 0, len(state.OriginalDailySchedule))

	for _, plan := range state.DailySchedule {
		sched = append(sched, Plan{
			Activity: plan.Activity,
			Duration: plan.Duration,
		})
	}
	for _, plan := range state.OriginalDailySchedule {
		origSched = append(origSched, Plan{
			Activity: plan.Activity,
			Duration: plan.Duration,
		})
	}

	var chattingWith *string
	if state.ChattingWith != "" {
		chattingWith = &state.ChattingWith
	}

	var chat []Utterance
	for _, utt := range state.Chat {
		chat = append(chat, Utterance{
			Speaker:   utt.Speaker,
			Utterance: utt.Sentence,
		})
	}

	var chatEndTime *time.Time
	if !state.ChatEndTime.IsZero() {
		chatEndTime = &state.ChatEndTime
	}

	var plannedPath []Position
	for _, pos := range state.PlannedPath {
		plannedPath = append(plannedPath, Position{
			X: pos.X,
			Y: pos.Y,
		})
	}

	scratch := PersonaState{
		VisionR:                 state.VisionRadius,
		AttBandwidth:            state.AttentionBandwidth,
		Retention:               state.Retention,
		CurrTime:                CurrentTime(state.CurrentTime),
		CurrTile:                []int{state.Position.X, state.Position.Y},
		DailyPlanReq:            state.DailyPlanRequirements,
		Name:                    p.Name(),
		FirstName:               state.FirstName,
		LastName:                state.LastName,
		Age:                     state.Age,
		Innate:                  state.InnateTraits,
		Learned:                 state.LearnedTraits,
		Currently:               state.CurrentPlans,
		Lifestyle:               state.Lifestyle,
		LivingArea:              state.LivingArea.ToString(),
		RecencyW:                state.RecencyWeight,
		RelevanceW:              state.RelevanceWeight,
		ImportanceW:             state.ImportanceWeight,
		ValenceW:                state.ValenceWeight,
		RecencyDecay:            state.RecencyDecay,
		ImportanceTriggerMax:    state.ReflectionTrigger,
		ImportanceTriggerCurr:   state.CurrentReflectionTrigger,
		ImportanceEleN:          state.ReflectionElements,
		DailyReq:                state.DailyPlan,
		FDailySchedule:          sched,
		FDailyScheduleHourlyOrg: origSched,
		ActAddress:              state.ActivityAddress.ToString(),
		ActStartTime:            CurrentTime(state.ActivityStartTime),
		ActDuration:             int(state.ActivityDuration.Minutes()),
		ActDescription:          state.ActivityDescription,
		ActPronunciatio:         state.ActivityPronunciato,
		ActEvent: SPO{
			Subject:   state.ActivitySPO.Subject,
			Predicate: state.ActivitySPO.Predicate,
			Object:    state.ActivitySPO.Object,
		},
		ActObjDescription:  state.ActivityObjectDescription,
		ActObjPronunciatio: state.ActivityObjectPronunciato,
		ActObjEvent: SPO{
			Subject:   state.ActivityObjectSPO.Subject,
			Predicate: state.ActivityObjectSPO.Predicate,
			Object:    state.ActivityObjectSPO.Object,
		},
		ChattingWith:       chattingWith,
		Chat:               chat,
		ChattingWithBuffer: state.ChattingWithBuffer,
		ChattingEndTime:    (*CurrentTime)(chatEndTime),
		ActPathSet:         state.ActivityPathSet,
		PlannedPath:        plannedPath,
	}

	return scratch
}

func (fs *FileStorage) saveSpatialMemory(name string, store *memory.Spatial) error {
	mem := map[string]map[string]map[string][]string{}

	for world, sectors := range store.Worlds() {
		mem[world] = make(map[string]map[string][]string)
		for sector, arenas := range sectors {
			mem[world][sector] = make(map[string][]string)
			for arena, objects := range arenas {
				mem[world][sector][arena] = make([]string, 0, len(objects))
				for obj := range objects {
					mem[world][sector][arena] = append(mem[world][sector][arena], obj)
				}
			}
		}
	}

	if err := writeJson(path.Join(fs.storageDir(name), "spatial_memory.json"), mem); err != nil {
		return fmt.Errorf("could not save persona %s spatial memory: %w", name, err)
	}

	return nil
}

func (fs *FileStorage) saveAssociativeMemory(name string, store *memory.Associative) error {
	if err := writeJson(path.Join(fs.storageDir(name), "embeddings.json"), store.Embeddings()); err != nil {
		return fmt.Errorf("could not save persona %s associative embeddings: %w", name, err)
	}

	if err := writeJson(path.Join(fs.storageDir(name), "kw_strength.json"), KwStength{
		Thoughts: store.ThoughtKeywordStrength(),
		Events:   store.EventKeywordStrength(),
	}); err != nil {
		return fmt.Errorf("could not save persona %s associative keyword strength: %w", name, err)
	}

	nodes := map[string]MemoryNode{}
	for _, node := range store.Nodes() {
		var filling []any
		switch node.Type {
		case memory.NodeTypeChat:
			for _, utt := range node.Chat {
				filling = append(filling, Utterance{
					Speaker:   utt.Speaker,
					Utterance: utt.Sentence,
				})
			}
		case memory.NodeTypeEvent, memory.NodeTypeThought:
			for _, id := range node.Evidence {
				filling = append(filling, fmt.Sprintf("node_%d", id))
			}
		default:
			panic(fmt.Sprintf("unexpected memory.NodeType: %#v", node.Type))
		}

		nodes[fmt.Sprintf("node_%d", node.Id)] = MemoryNode{
			NodeCount:    node.NodeCount,
			TypeCount:    node.TypeCount,
			Type:         node.Type.ToString(),
			Depth:        node.Depth,
			Created:      MemoryTime(node.Created),
			Expiration:   (*MemoryTime)(node.Expiration),
			Subject:      node.Subject,
			Predicate:    node.Predicate,
			Object:       node.Object,
			Description:  node.Description,
			EmbeddingKey: node.EmbeddingKey,
			Poignancy:    node.Importance,
			Valence:      node.Valence,
			Keywords:     node.Keywords,
			Filling:      filling,
		}
	}

	if err := writeJson(path.Join(fs.storageDir(name), "nodes.json"), nodes); err != nil {
		return fmt.Errorf("could not save persona %s associative nodes: %w", name, err)
	}

	return nil
}

func writeJson(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal JSON: %w", err)
	}

	if err := writeFileWithDirs(path, data, 0o644); err != nil {
		return fmt.Errorf("could not write file to %s: %w", path, err)
	}

	return nil
}

func writeFileWithDirs(path string, data []byte, perm os.FileMode) error {
	// Ensure parent directories exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Write the file
	return os.WriteFile(path, data, perm)
}

func (fs *FileStorage) Backup(step int) error {
	return copyDirFilesOnly(fs.CheckpointsDir(), fs.backupFolder(step))
}

func copyDirFilesOnly(src, dst string) error {
	src = filepath.Clean(src)
	dst = filepath.Clean(dst)

	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("source is not a directory: %s", src)
	}

	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return err
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		target := filepath.Join(dst, rel)

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode())
		}

		// Regular file
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("non-regular file encountered (expected only files/dirs): %s", path)
		}

		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	// Ensure parent dir exists (useful if dst root existed but some subdirs didn't)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
