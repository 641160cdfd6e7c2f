// Package issues holds the error taxonomy shared by the planning and
// execution packages: sentinel errors for conditions that stop a step, and
// Warning values for conditions that only skip part of a batch.
package issues

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ansel1/merry/v2"
	"github.com/orsinium-labs/enum"
	"github.com/samber/lo"
)

var (
	ErrInvalidBinConfig   = merry.Sentinel("invalid bin config")
	ErrTooManyBins        = merry.Sentinel("too many bins")
	ErrUndefinedCrop      = merry.Sentinel("crop rectangle not set")
	ErrNoSubjectsDeclared = merry.Sentinel("no subjects declared")
	ErrFilenameCollision  = merry.Sentinel("filename collision")
	ErrTranscode          = merry.Sentinel("transcode failed")
	ErrProbe              = merry.Sentinel("probe failed")
	ErrPackaging          = merry.Sentinel("packaging failed")
	ErrCancelled          = merry.Sentinel("cancelled")
)

type Kind enum.Member[string]

var (
	KindInvalidBinConfig   = Kind{Value: "invalid_bin_config"}
	KindTooManyBins        = Kind{Value: "too_many_bins"}
	KindUndefinedCrop      = Kind{Value: "undefined_crop"}
	KindNoSubjectsDeclared = Kind{Value: "no_subjects_declared"}
	KindFilenameCollision  = Kind{Value: "filename_collision"}
	KindPrefixCollision    = Kind{Value: "prefix_collision"}
	KindProbeError         = Kind{Value: "probe_error"}
	KindTranscodeError     = Kind{Value: "transcode_error"}
	KindPackagingError     = Kind{Value: "packaging_error"}
	KindSubjectsRemoved    = Kind{Value: "subjects_removed"}
	KindBinExceedsFootage  = Kind{Value: "bin_exceeds_footage"}
	Kinds                  = enum.New(
		KindInvalidBinConfig, KindTooManyBins, KindUndefinedCrop, KindNoSubjectsDeclared,
		KindFilenameCollision, KindPrefixCollision, KindProbeError, KindTranscodeError,
		KindPackagingError, KindSubjectsRemoved, KindBinExceedsFootage,
	)
)

//goland:noinspection GoMixedReceiverTypes
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Value)
}

//goland:noinspection GoMixedReceiverTypes
func (k *Kind) UnmarshalJSON(value []byte) error {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return err
	}
	kind := Kinds.Parse(s)
	if kind == nil {
		return fmt.Errorf("unknown warning kind %q", s)
	}
	*k = *kind
	return nil
}

//goland:noinspection GoMixedReceiverTypes
func (k Kind) String() string {
	return k.Value
}

// Warning is a non-fatal condition tied to a specific video, and where it
// applies, a subject and a 1-based bin index.
type Warning struct {
	Kind      Kind   `json:"kind"`
	VideoID   string `json:"video_id,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
	BinIndex  int    `json:"bin_index,omitempty"`
	Message   string `json:"message"`
}

func (w Warning) String() string {
	var scope []string
	if w.VideoID != "" {
		scope = append(scope, "video="+w.VideoID)
	}
	if w.SubjectID != "" {
		scope = append(scope, "subject="+w.SubjectID)
	}
	if w.BinIndex > 0 {
		scope = append(scope, fmt.Sprintf("bin=%d", w.BinIndex))
	}
	if len(scope) == 0 {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", w.Kind, strings.Join(scope, " "), w.Message)
}

// Log writes each warning at warn level.
func Log(logger *slog.Logger, warnings []Warning) {
	if logger == nil {
		return
	}
	for _, w := range warnings {
		logger.Warn(w.Message,
			"kind", w.Kind.Value,
			"video", w.VideoID,
			"subject", w.SubjectID,
			"bin", w.BinIndex,
		)
	}
}

// OfKind filters warnings by kind.
func OfKind(warnings []Warning, kind Kind) []Warning {
	return lo.Filter(warnings, func(w Warning, _ int) bool {
		return w.Kind == kind
	})
}
