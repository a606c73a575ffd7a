package model

// Stage is the canonical name for a training pipeline phase, after alias
// resolution. The server publishes several spellings for the same phase
// across its two schema generations; downstream code only ever sees these.
type Stage string

const (
	StageIdle               Stage = "idle"
	StageStarting           Stage = "starting"
	StageDataFetching       Stage = "data_fetching"
	StageDataFetched        Stage = "data_fetched"
	StagePreprocessing      Stage = "preprocessing"
	StageFeatureEngineering Stage = "feature_engineering"
	StageModelBuilding      Stage = "model_building"
	StageModelInfo          Stage = "model_info"
	StageTrainingStarted    Stage = "training_started"
	StageTrainingProgress   Stage = "training_progress"
	StageEvaluating         Stage = "evaluating_update"
	StageVisualizing        Stage = "visualizing_update"
	StageTrainingCompleted  Stage = "training_completed"
	StageError              Stage = "error"

	// StageFailed is a synthetic terminal state used by the session state
	// machine after an error update. It never appears on the wire.
	StageFailed Stage = "failed"

	// StageUnknown marks updates whose stage could not be resolved. They are
	// still delivered so the UI can show the raw payload for debugging.
	StageUnknown Stage = "unknown"
)

// stageAliases collapses the spellings observed across server versions into
// one canonical name. Kept client-side until the server contract pins the
// event vocabulary down.
//
// Legacy "status" frames (join acks, heartbeats) have no entry on purpose:
// they resolve to StageUnknown so their zero progress never moves the
// machine.
var stageAliases = map[string]Stage{
	"training_update":   StageTrainingProgress,
	"metric_sample":     StageTrainingProgress,
	"series":            StageTrainingProgress,
	"training_complete": StageTrainingCompleted,
	"error_update":      StageError,
}

// stageRank orders the pipeline. Not strictly linear on the wire (the server
// may skip stages) but sufficient to detect genuine stage regressions.
var stageRank = map[Stage]int{
	StageIdle:               0,
	StageStarting:           1,
	StageDataFetching:       2,
	StageDataFetched:        3,
	StagePreprocessing:      4,
	StageFeatureEngineering: 5,
	StageModelBuilding:      6,
	StageModelInfo:          7,
	StageTrainingStarted:    8,
	StageTrainingProgress:   9,
	StageEvaluating:         10,
	StageVisualizing:        11,
	StageTrainingCompleted:  12,
	StageError:              13,
	StageFailed:             13,
}

// CanonicalStage resolves a raw wire stage name to its canonical form.
// Unrecognized names resolve to StageUnknown.
func CanonicalStage(raw string) Stage {
	if raw == "" {
		return StageUnknown
	}
	if alias, ok := stageAliases[raw]; ok {
		return alias
	}
	s := Stage(raw)
	if _, ok := stageRank[s]; ok {
		return s
	}
	return StageUnknown
}

// Terminal reports whether the stage ends a training run.
func (s Stage) Terminal() bool {
	return s == StageTrainingCompleted || s == StageError || s == StageFailed
}

// Rank returns the stage's position in the pipeline ordering. The second
// return is false for StageUnknown, which has no position.
func (s Stage) Rank() (int, bool) {
	r, ok := stageRank[s]
	return r, ok
}
