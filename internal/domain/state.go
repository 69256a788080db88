package domain

type IntakeStatus string

const (
	IntakeReceived    IntakeStatus = "RECEIVED"
	IntakeParsed      IntakeStatus = "PARSED"
	IntakeUnparseable IntakeStatus = "UNPARSEABLE"
	IntakeFailed      IntakeStatus = "FAILED"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageExtraction Stage = "extraction"
	StageMapping    Stage = "mapping"
	StageGeneration Stage = "generation"
)

type PlaceholderPolicy string

const (
	PolicyStrip PlaceholderPolicy = "strip"
	PolicyFail  PlaceholderPolicy = "fail"
)

func ParsePlaceholderPolicy(raw string) (PlaceholderPolicy, bool) {
	switch PlaceholderPolicy(raw) {
	case PolicyStrip, PolicyFail:
		return PlaceholderPolicy(raw), true
	case "":
		return PolicyStrip, true
	default:
		return "", false
	}
}
