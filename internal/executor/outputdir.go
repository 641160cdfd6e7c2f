package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/orsinium-labs/enum"
)

// DirPolicy decides what happens when the output root already has files.
type DirPolicy enum.Member[string]

var (
	DirOverwrite   = DirPolicy{Value: "overwrite"}
	DirTimestamped = DirPolicy{Value: "timestamped"}
	DirPolicies    = enum.New(DirOverwrite, DirTimestamped)
)

//goland:noinspection GoMixedReceiverTypes
func (p DirPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Value)
}

//goland:noinspection GoMixedReceiverTypes
func (p DirPolicy) MarshalText() ([]byte, error) {
	return []byte(p.Value), nil
}

//goland:noinspection GoMixedReceiverTypes
func (p *DirPolicy) UnmarshalText(text []byte) error {
	policy := DirPolicies.Parse(string(text))
	if policy == nil {
		return fmt.Errorf("unknown output dir policy %q (want overwrite or timestamped)", string(text))
	}
	*p = *policy
	return nil
}

const timestampLayout = "20060102_150405"

// PrepareOutputRoot decides, once per batch, which directory receives the
// outputs. A missing or empty root is used as is. A root that already holds
// files is reused under DirOverwrite, or replaced by a sibling named
// <root>_<timestamp> under DirTimestamped. The returned directory exists.
func PrepareOutputRoot(root string, policy DirPolicy, now time.Time) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", fmt.Errorf("output directory is required")
	}
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(root, 0755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return root, nil
	case err != nil:
		return "", fmt.Errorf("invalid output directory: %w", err)
	case !info.IsDir():
		return "", fmt.Errorf("output directory %s is not a directory", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) == 0 || policy != DirTimestamped {
		return root, nil
	}

	base := root + "_" + now.Format(timestampLayout)
	candidate := base
	for n := 2; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			break
		}
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
	if err := os.MkdirAll(candidate, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	return candidate, nil
}
