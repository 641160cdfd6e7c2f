// Package manifest reads batch descriptions from TOML files or JSON bodies
// and turns them into planner requests.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ansel1/merry/v2"
	"github.com/orsinium-labs/enum"

	"github.com/tailor-media/tailor/internal/crops"
	"github.com/tailor-media/tailor/internal/executor"
	"github.com/tailor-media/tailor/internal/media"
	"github.com/tailor-media/tailor/internal/naming"
)

var ErrInvalidManifest = merry.Sentinel("invalid manifest")

// CollisionAction decides whether a batch with filename conflicts may run.
type CollisionAction enum.Member[string]

var (
	ActionProceed    = CollisionAction{Value: "proceed"}
	ActionBlock      = CollisionAction{Value: "block"}
	CollisionActions = enum.New(ActionProceed, ActionBlock)
)

const DefaultExtension = "mp4"

//goland:noinspection GoMixedReceiverTypes
func (a CollisionAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Value)
}

//goland:noinspection GoMixedReceiverTypes
func (a CollisionAction) MarshalText() ([]byte, error) {
	return []byte(a.Value), nil
}

//goland:noinspection GoMixedReceiverTypes
func (a *CollisionAction) UnmarshalText(text []byte) error {
	action := CollisionActions.Parse(string(text))
	if action == nil {
		return fmt.Errorf("unknown collision action %q (want proceed or block)", string(text))
	}
	*a = *action
	return nil
}

// Manifest is one batch: the videos, their crops and how to bin and name
// the outputs.
type Manifest struct {
	Mode            naming.Mode            `toml:"mode" json:"mode"`
	OutputDir       string                 `toml:"output_dir" json:"output_dir"`
	CollisionPolicy naming.CollisionPolicy `toml:"collision_policy" json:"collision_policy"`
	OnCollision     CollisionAction        `toml:"on_collision" json:"on_collision"`
	OutputDirPolicy executor.DirPolicy     `toml:"output_dir_policy" json:"output_dir_policy"`
	ActiveVideo     string                 `toml:"active_video" json:"active_video,omitempty"`
	SameSettings    bool                   `toml:"same_settings" json:"same_settings"`
	Extension       string                 `toml:"extension" json:"extension"`
	Bins            *BinSpec               `toml:"bins" json:"bins,omitempty"`
	Codec           media.CodecOptions     `toml:"codec" json:"codec"`
	Videos          []VideoSpec            `toml:"videos" json:"videos"`
}

// BinSpec holds clock strings: HH:MM:SS, MM:SS or plain seconds.
type BinSpec struct {
	Start  string `toml:"start" json:"start"`
	Length string `toml:"length" json:"length"`
}

type VideoSpec struct {
	Path     string                `toml:"path" json:"path"`
	Prefix   string                `toml:"prefix" json:"prefix,omitempty"`
	Subjects string                `toml:"subjects" json:"subjects,omitempty"`
	Frame    *Frame                `toml:"frame" json:"frame,omitempty"`
	Bins     *BinSpec              `toml:"bins" json:"bins,omitempty"`
	Crops    map[string]crops.Rect `toml:"crops" json:"crops,omitempty"`
}

// Frame is the source resolution, used to bounds-check crops.
type Frame struct {
	Width  int `toml:"width" json:"width"`
	Height int `toml:"height" json:"height"`
}

// Load reads and validates a TOML manifest file.
func Load(path string) (*Manifest, error) {
	var m Manifest
	md, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := rejectUndecoded(md); err != nil {
		return nil, err
	}
	return finish(&m)
}

// Decode reads and validates a TOML manifest.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := rejectUndecoded(md); err != nil {
		return nil, err
	}
	return finish(&m)
}

// DecodeJSON reads and validates a JSON manifest, as posted to the API.
func DecodeJSON(data []byte) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return finish(&m)
}

// Encode renders m as TOML.
func Encode(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rejectUndecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	return fmt.Errorf("%w: unknown keys: %s", ErrInvalidManifest, strings.Join(keys, ", "))
}

func finish(m *Manifest) (*Manifest, error) {
	m.Normalize()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Normalize fills omitted settings with their defaults.
func (m *Manifest) Normalize() {
	if m.Mode.Value == "" {
		m.Mode = naming.ModeCropTrim
	}
	if m.CollisionPolicy.Value == "" {
		m.CollisionPolicy = naming.PolicyNumberedSuffix
	}
	if m.OnCollision.Value == "" {
		m.OnCollision = ActionProceed
	}
	if m.OutputDirPolicy.Value == "" {
		m.OutputDirPolicy = executor.DirOverwrite
	}
	m.Extension = strings.TrimPrefix(strings.TrimSpace(m.Extension), ".")
	if m.Extension == "" {
		m.Extension = DefaultExtension
	}
	m.Codec = m.Codec.WithDefaults()
}

// Paths returns the video paths in manifest order.
func (m *Manifest) Paths() []string {
	paths := make([]string, len(m.Videos))
	for i, v := range m.Videos {
		paths[i] = v.Path
	}
	return paths
}
