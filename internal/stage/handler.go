package stage

import (
	"context"
	"encoding/json"

	"lectern/internal/records"
)

// Artifact is the payload handed from one stage to its successors. It rides
// in the task row as JSON; stages fill in what they produced and ignore the
// rest.
type Artifact struct {
	AssetPath       string  `json:"asset_path,omitempty"`
	AudioPath       string  `json:"audio_path,omitempty"`
	ThumbnailPath   string  `json:"thumbnail_path,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// EncodeArtifact serializes an artifact for the task payload column. A nil
// artifact encodes as the empty string.
func EncodeArtifact(artifact *Artifact) (string, error) {
	if artifact == nil {
		return "", nil
	}
	data, err := json.Marshal(artifact)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeArtifact deserializes a task payload. Empty payloads decode to an
// empty artifact.
func DecodeArtifact(payload string) (*Artifact, error) {
	artifact := &Artifact{}
	if payload == "" {
		return artifact, nil
	}
	if err := json.Unmarshal([]byte(payload), artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

// Handler describes the contract the orchestrator needs from each stage.
type Handler interface {
	// Prepare validates preconditions before Execute runs.
	Prepare(ctx context.Context, video *records.Video) error
	// Execute performs the stage work and returns the artifact for
	// successor stages.
	Execute(ctx context.Context, video *records.Video, artifact *Artifact) (*Artifact, error)
	HealthCheck(ctx context.Context) Health
}
