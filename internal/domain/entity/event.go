package entity

type Stage string

const (
	StageRequest   Stage = "request"
	StageGenerate  Stage = "generate"
	StageValidate  Stage = "validate"
	StageExecute   Stage = "execute"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
)

// RunEvent is a progress notification emitted while a run moves through the pipeline.
type RunEvent struct {
	RunID   string `json:"run_id"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Payload string `json:"payload,omitempty"`
}
