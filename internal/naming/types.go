package naming

import (
	"encoding/json"
	"fmt"

	"github.com/orsinium-labs/enum"

	"github.com/tailor-media/tailor/internal/bins"
	"github.com/tailor-media/tailor/internal/crops"
	"github.com/tailor-media/tailor/internal/issues"
	"github.com/tailor-media/tailor/internal/media"
)

// Mode selects which transforms a batch applies.
type Mode enum.Member[string]

var (
	ModeCrop     = Mode{Value: "crop"}
	ModeTrim     = Mode{Value: "trim"}
	ModeCropTrim = Mode{Value: "crop+trim"}
	Modes        = enum.New(ModeCrop, ModeTrim, ModeCropTrim)
)

//goland:noinspection GoMixedReceiverTypes
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Value)
}

//goland:noinspection GoMixedReceiverTypes
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.Value), nil
}

//goland:noinspection GoMixedReceiverTypes
func (m *Mode) UnmarshalText(text []byte) error {
	mode := Modes.Parse(string(text))
	if mode == nil {
		return fmt.Errorf("unknown mode %q (want one of crop, trim, crop+trim)", string(text))
	}
	*m = *mode
	return nil
}

//goland:noinspection GoMixedReceiverTypes
func (m Mode) Crops() bool {
	return m == ModeCrop || m == ModeCropTrim
}

//goland:noinspection GoMixedReceiverTypes
func (m Mode) Trims() bool {
	return m == ModeTrim || m == ModeCropTrim
}

// CollisionPolicy decides how bin numbers are assigned in filenames.
type CollisionPolicy enum.Member[string]

var (
	PolicyNumberedSuffix = CollisionPolicy{Value: "numbered-suffix"}
	PolicyGlobalCounter  = CollisionPolicy{Value: "global-counter"}
	Policies             = enum.New(PolicyNumberedSuffix, PolicyGlobalCounter)
)

//goland:noinspection GoMixedReceiverTypes
func (p CollisionPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Value)
}

//goland:noinspection GoMixedReceiverTypes
func (p CollisionPolicy) MarshalText() ([]byte, error) {
	return []byte(p.Value), nil
}

//goland:noinspection GoMixedReceiverTypes
func (p *CollisionPolicy) UnmarshalText(text []byte) error {
	policy := Policies.Parse(string(text))
	if policy == nil {
		return fmt.Errorf("unknown collision policy %q (want numbered-suffix or global-counter)", string(text))
	}
	*p = *policy
	return nil
}

// Request carries everything the planner needs. Bins is keyed by video ID
// and ignored when SharedBins is set. Prefixes default to the sanitized file
// stem.
type Request struct {
	Videos        []media.Video
	Registry      *crops.Registry
	Bins          map[string]bins.Config
	SharedBins    *bins.Config
	Prefixes      map[string]string
	Policy        CollisionPolicy
	Mode          Mode
	ActiveVideoID string
	OutputRoot    string
	Extension     string
}

// OutputTask is one segment to produce.
type OutputTask struct {
	Seq        int             `json:"seq"`
	VideoID    string          `json:"video_id"`
	VideoPath  string          `json:"video_path"`
	SubjectID  crops.SubjectID `json:"subject_id,omitempty"`
	BinIndex   int             `json:"bin_index"`
	Range      bins.TimeRange  `json:"range"`
	Crop       *crops.Rect     `json:"crop,omitempty"`
	Candidate  string          `json:"candidate"`
	Filename   string          `json:"filename"`
	RelPath    string          `json:"rel_path"`
	OutputPath string          `json:"output_path"`
}

// Renamed reports whether collision resolution changed the filename.
func (t OutputTask) Renamed() bool {
	return t.Candidate != t.Filename
}

// Plan is the planner's output.
type Plan struct {
	Tasks      []OutputTask     `json:"tasks"`
	Collisions CollisionReport  `json:"collisions"`
	Warnings   []issues.Warning `json:"warnings"`
}
