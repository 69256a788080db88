package temporal

const ProgressQueryName = "progress"

type GenerationStage string

const (
	StageExtractingSchema GenerationStage = "EXTRACTING_SCHEMA"
	StageMappingRecord    GenerationStage = "MAPPING_RECORD"
	StageRendering        GenerationStage = "RENDERING"
	StageCompleted        GenerationStage = "COMPLETED"
	StageFailed           GenerationStage = "FAILED"
)

// GenerationProgress is answered by GenerateFromRecordWorkflow for ProgressQueryName.
type GenerationProgress struct {
	Stage      GenerationStage `json:"stage"`
	SchemaName string          `json:"schema_name,omitempty"`
	OutputKey  string          `json:"output_key,omitempty"`
	Unreplaced []string        `json:"unreplaced,omitempty"`
	Error      string          `json:"error,omitempty"`
}
