package converter

import (
	"fmt"
	"path/filepath"

	tpl "github.com/stackvity/corpus-converter/pkg/converter/template"
)

// Chunk is one unit of conversion work: one source file, one identifier range, one artifact.
type Chunk struct {
	RunOrdinal uint64 `json:"runOrdinal"`
	Ordinal    int    `json:"ordinal"`
	InputFile  string `json:"inputFile"` // Absolute path
	FileName   string `json:"fileName"`  // Name as recorded in the ledger
	MinID      uint64 `json:"minId"`
	// LimitID is exclusive.
	LimitID      uint64   `json:"limitId"`
	StagingPath  string   `json:"stagingPath"`
	ArtifactName string   `json:"artifactName"`
	Command      []string `json:"command,omitempty"`
}

// Range returns the identifier range reserved for the chunk.
func (c Chunk) Range() IDRange { return IDRange{First: c.MinID, Limit: c.LimitID} }

// Plan is the full set of chunks of one run.
type Plan struct {
	RunOrdinal uint64  `json:"runOrdinal"`
	FirstID    uint64  `json:"firstId"`
	NextFreeID uint64  `json:"nextFreeId"`
	StagingDir string  `json:"stagingDir"`
	Chunks     []Chunk `json:"chunks"`
}

// Files returns the planned file names in chunk order.
func (p Plan) Files() []string {
	out := make([]string, len(p.Chunks))
	for i, c := range p.Chunks {
		out[i] = c.FileName
	}
	return out
}

// Artifacts returns the planned artifact names in chunk order.
func (p Plan) Artifacts() []string {
	out := make([]string, len(p.Chunks))
	for i, c := range p.Chunks {
		out[i] = c.ArtifactName
	}
	return out
}

// PlanInput carries what the planner needs.
type PlanInput struct {
	RunOrdinal uint64
	NextFreeID uint64
	Namespace  Namespace
	Step       uint64
	InputDir   string
	Files      []string
	StagingDir string
	// Command renders each chunk's dispatch command. Nil leaves Chunk.Command empty.
	Command tpl.CommandBuilder
	// CommandBase supplies the run-wide command fields; per-chunk fields are filled by the planner.
	CommandBase tpl.CommandData
}

// ArtifactName names the committed artifact of a chunk. Names sort in commit order.
func ArtifactName(run uint64, chunk int) string {
	return fmt.Sprintf("r%05d-c%05d%s", run, chunk, ArtifactSuffix)
}

// BuildPlan assigns one chunk per file, in the given order, with
// minId = nextFree + ordinal*step. The run reserves step*len(files) identifiers.
func BuildPlan(in PlanInput) (Plan, error) {
	if in.RunOrdinal == 0 {
		return Plan{}, fmt.Errorf("%w: run ordinal must be positive", ErrConfigValidation)
	}
	if len(in.Files) == 0 {
		return Plan{}, fmt.Errorf("%w: nothing to plan", ErrNoSourceFiles)
	}
	if in.StagingDir == "" {
		return Plan{}, fmt.Errorf("%w: staging directory is empty", ErrConfigValidation)
	}
	reserved, err := ReserveRun(in.Namespace, in.Step, in.NextFreeID, len(in.Files))
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{
		RunOrdinal: in.RunOrdinal,
		FirstID:    reserved.First,
		NextFreeID: reserved.Limit,
		StagingDir: in.StagingDir,
		Chunks:     make([]Chunk, 0, len(in.Files)),
	}
	for i, name := range in.Files {
		r, err := ChunkRange(in.Namespace, in.Step, reserved.First, i)
		if err != nil {
			return Plan{}, err
		}
		artifact := ArtifactName(in.RunOrdinal, i)
		c := Chunk{
			RunOrdinal:   in.RunOrdinal,
			Ordinal:      i,
			InputFile:    filepath.Join(in.InputDir, name),
			FileName:     name,
			MinID:        r.First,
			LimitID:      r.Limit,
			StagingPath:  filepath.Join(in.StagingDir, artifact),
			ArtifactName: artifact,
		}
		if in.Command != nil {
			data := in.CommandBase
			data.InputFile = c.InputFile
			data.FileName = c.FileName
			data.OutputPath = c.StagingPath
			data.MinID = c.MinID
			data.LimitID = c.LimitID
			data.RunOrdinal = c.RunOrdinal
			data.ChunkOrdinal = c.Ordinal
			c.Command, err = in.Command.Build(data)
			if err != nil {
				return Plan{}, fmt.Errorf("%w: chunk %d: %w", ErrConfigValidation, i, err)
			}
		}
		plan.Chunks = append(plan.Chunks, c)
	}
	return plan, nil
}
