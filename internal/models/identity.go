package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Stage is one phase of the reconstruction pipeline
type Stage string

const (
	StageUpload         Stage = "upload"
	StageReconstruction Stage = "reconstruction"
	StageTraining       Stage = "training"
	StageRendering      Stage = "rendering"
)

// stagePrefixes maps each derived stage to its job id prefix. The upload
// stage has no prefix: its id is the root id itself.
var stagePrefixes = map[Stage]string{
	StageReconstruction: "reconstruction_",
	StageTraining:       "train_",
	StageRendering:      "render_",
}

// parse order matters: reconstruction_ must be tried before shorter prefixes
var derivedStages = []Stage{StageReconstruction, StageTraining, StageRendering}

var attemptSuffixRe = regexp.MustCompile(`_a([0-9]+)$`)

// JobIdentity is the typed form of a pipeline job id. Any stage's id can be
// derived from, and reduced back to, the root id without a lookup table.
// Attempt counts the retry generation: attempt 1 renders without a suffix so
// first-run ids stay in the plain "<prefix><root>" form.
type JobIdentity struct {
	Root    string
	Stage   Stage
	Attempt int
}

// NewRootID generates a fresh root identity for an upload
func NewRootID() JobIdentity {
	return JobIdentity{Root: uuid.New().String(), Stage: StageUpload, Attempt: 1}
}

// NewJobIdentity builds an identity from an existing root id, validating
// that the root cannot be mistaken for a derived or retried id.
func NewJobIdentity(root string, stage Stage) (JobIdentity, error) {
	if root == "" {
		return JobIdentity{}, fmt.Errorf("root id must not be empty")
	}
	for _, s := range derivedStages {
		if strings.HasPrefix(root, stagePrefixes[s]) {
			return JobIdentity{}, fmt.Errorf("root id %q collides with the %s prefix", root, s)
		}
	}
	if attemptSuffixRe.MatchString(root) {
		return JobIdentity{}, fmt.Errorf("root id %q collides with the attempt suffix", root)
	}
	return JobIdentity{Root: root, Stage: stage, Attempt: 1}, nil
}

// ParseJobID reduces a job id string back to its typed identity by stripping
// the stage prefix and attempt suffix. A string with no known prefix is an
// upload (root) id.
func ParseJobID(id string) (JobIdentity, error) {
	stage := StageUpload
	rest := id
	for _, s := range derivedStages {
		if strings.HasPrefix(id, stagePrefixes[s]) {
			stage = s
			rest = strings.TrimPrefix(id, stagePrefixes[s])
			break
		}
	}

	attempt := 1
	if m := attemptSuffixRe.FindStringSubmatch(rest); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 2 {
			return JobIdentity{}, fmt.Errorf("invalid attempt suffix in job id %q", id)
		}
		attempt = n
		rest = strings.TrimSuffix(rest, m[0])
	}

	ident, err := NewJobIdentity(rest, stage)
	if err != nil {
		return JobIdentity{}, fmt.Errorf("invalid job id %q: %w", id, err)
	}
	ident.Attempt = attempt
	return ident, nil
}

// String renders the canonical job id
func (j JobIdentity) String() string {
	id := stagePrefixes[j.Stage] + j.Root
	if j.Attempt > 1 {
		id += fmt.Sprintf("_a%d", j.Attempt)
	}
	return id
}

// Derive returns this identity's counterpart for another stage, attempt 1
func (j JobIdentity) Derive(stage Stage) JobIdentity {
	return JobIdentity{Root: j.Root, Stage: stage, Attempt: 1}
}

// NextAttempt returns the identity for a fresh retry of the same stage
func (j JobIdentity) NextAttempt() JobIdentity {
	return JobIdentity{Root: j.Root, Stage: j.Stage, Attempt: j.Attempt + 1}
}

// JobType returns the job record type for this identity's stage
func (j JobIdentity) JobType() JobType {
	switch j.Stage {
	case StageReconstruction:
		return JobTypeReconstruction
	case StageTraining:
		return JobTypeTraining
	case StageRendering:
		return JobTypeRendering
	default:
		return JobTypeUpload
	}
}

// Remote volume layout. All stage artifacts hang off the root id so any
// derived job can locate them without extra bookkeeping.

// ImagesPath is where the upload stage placed the source images
func (j JobIdentity) ImagesPath() string {
	return fmt.Sprintf("jobs/%s/images", j.Root)
}

// ReconstructionPath holds the recovered camera poses and sparse model
func (j JobIdentity) ReconstructionPath() string {
	return fmt.Sprintf("jobs/%s/reconstruction", j.Root)
}

// ModelPath holds the trained scene model
func (j JobIdentity) ModelPath() string {
	return fmt.Sprintf("jobs/%s/model", j.Root)
}

// FramesPath holds rendered frame batches
func (j JobIdentity) FramesPath() string {
	return fmt.Sprintf("jobs/%s/frames", j.Root)
}

// ProgressPath is the job-scoped progress document written by the remote worker
func (j JobIdentity) ProgressPath() string {
	return fmt.Sprintf("jobs/%s/progress/%s.json", j.Root, j.String())
}

// DataPrefix is the volume prefix covering everything this root owns
func (j JobIdentity) DataPrefix() string {
	return fmt.Sprintf("jobs/%s", j.Root)
}
