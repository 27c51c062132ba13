package records

import (
	"strings"
	"time"
)

// State represents the lifecycle of a video record.
type State string

const (
	StatePending      State = "pending"
	StateDownloading  State = "downloading"
	StateProcessing   State = "processing"
	StateTranscribing State = "transcribing"
	StateAnalyzing    State = "analyzing"
	StateSegmenting   State = "segmenting"
	StateCompleted    State = "completed"
	StateError        State = "error"
)

var allStates = []State{
	StatePending,
	StateDownloading,
	StateProcessing,
	StateTranscribing,
	StateAnalyzing,
	StateSegmenting,
	StateCompleted,
	StateError,
}

// stateRank orders the forward progression. StateError sits outside the
// ordering and is reachable from anywhere.
var stateRank = map[State]int{
	StatePending:      0,
	StateDownloading:  1,
	StateProcessing:   2,
	StateTranscribing: 3,
	StateAnalyzing:    4,
	StateSegmenting:   5,
	StateCompleted:    6,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a state ends the pipeline for a video.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateError
}

// CanTransition reports whether moving from one state to another is legal.
// Forward moves follow the rank order, any state may fail into error, and
// terminal states only leave via an explicit reset to pending.
func CanTransition(from, to State) bool {
	if from == to {
		return false
	}
	if to == StateError {
		return from != StateError
	}
	if from.IsTerminal() {
		return to == StatePending
	}
	fromRank, okFrom := stateRank[from]
	toRank, okTo := stateRank[to]
	if !okFrom || !okTo {
		return false
	}
	return toRank > fromRank
}

// ThumbnailState tracks the thumbnail branch independently of the main chain.
type ThumbnailState string

const (
	ThumbnailPending   ThumbnailState = "pending"
	ThumbnailSucceeded ThumbnailState = "succeeded"
	ThumbnailFailed    ThumbnailState = "failed"
)

// Settled reports whether the thumbnail branch has reached a final outcome.
func (t ThumbnailState) Settled() bool {
	return t == ThumbnailSucceeded || t == ThumbnailFailed
}

// Outcome labels a stage log entry.
type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomeCompleted Outcome = "completed"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// SourceKind distinguishes remote URLs from local file submissions.
type SourceKind string

const (
	SourceRemote SourceKind = "remote"
	SourceLocal  SourceKind = "local"
)

// Video is a video record persisted in SQLite.
type Video struct {
	ID              int64
	Title           string
	SourceURL       string
	SourceKind      SourceKind
	State           State
	AssetPath       string
	ThumbnailPath   string
	ThumbnailState  ThumbnailState
	DurationSeconds float64
	Format          string
	SizeMB          float64
	ErrorMessage    string
	MetadataJSON    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProcessedAt     *time.Time
}

// StageLogEntry is one append-only audit row for a video.
type StageLogEntry struct {
	ID          int64
	VideoID     int64
	Stage       string
	Outcome     Outcome
	Message     string
	ErrorDetail string
	DurationMS  int64
	CreatedAt   time.Time
}

// Transcript is the speech recognition artifact for a video. One per video.
type Transcript struct {
	VideoID      int64
	Content      string
	Language     string
	Confidence   float64
	SegmentsJSON string
	Model        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary is the LLM analysis artifact for a video. One per video.
type Summary struct {
	VideoID         int64
	Body            string
	ThemesJSON      string
	ConclusionsJSON string
	KeyPointsJSON   string
	WordCount       int
	Model           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Segment is one identified clip-worthy span of a video.
type Segment struct {
	ID            int64
	VideoID       int64
	Title         string
	Description   string
	StartSeconds  float64
	EndSeconds    float64
	Position      int
	Relevance     int
	Category      string
	ClipPath      string
	ThumbnailPath string
	CreatedAt     time.Time
}

// RunStatus is the lifecycle of a pipeline run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Active reports whether the run still occupies the single-flight slot.
func (r RunStatus) Active() bool {
	return r == RunQueued || r == RunRunning
}

// Run is one end-to-end pipeline execution for a video.
type Run struct {
	ID           string
	VideoID      int64
	Status       RunStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}
