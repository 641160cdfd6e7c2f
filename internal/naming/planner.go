// Package naming expands videos, crop subjects and time bins into the ordered
// list of output tasks of a batch and assigns each a unique file name.
package naming

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"

	"github.com/tailor-media/tailor/internal/bins"
	"github.com/tailor-media/tailor/internal/crops"
	"github.com/tailor-media/tailor/internal/issues"
	"github.com/tailor-media/tailor/internal/media"
)

const DefaultExtension = "mp4"

type Planner struct {
	logger *slog.Logger
}

func NewPlanner(logger *slog.Logger) *Planner {
	return &Planner{logger: logger}
}

// subjectPlan is one subject of one video that will produce outputs. A zero
// subject with a nil crop is the implicit whole-frame subject.
type subjectPlan struct {
	id   crops.SubjectID
	crop *crops.Rect
}

// Plan expands the request into tasks in (video, subject, bin) order. A
// video whose configuration is unusable is skipped with a warning; the
// rest of the batch is still planned.
func (p *Planner) Plan(req Request) Plan {
	if req.Registry == nil {
		req.Registry = crops.NewRegistry()
	}
	if req.Mode == (Mode{}) {
		req.Mode = ModeCropTrim
	}
	if req.Policy == (CollisionPolicy{}) {
		req.Policy = PolicyNumberedSuffix
	}
	ext := strings.TrimPrefix(req.Extension, ".")
	if ext == "" {
		ext = DefaultExtension
	}

	var (
		tasks    []OutputTask
		warnings []issues.Warning
		counter  int
		prefixOf = make(map[string]string)
	)

	for _, v := range req.Videos {
		prefix := p.prefixFor(req, v)
		if owner, ok := prefixOf[pathKey(prefix)]; ok {
			warnings = append(warnings, issues.Warning{
				Kind:    issues.KindPrefixCollision,
				VideoID: v.ID,
				Message: fmt.Sprintf("prefix %q is also used by %s", prefix, owner),
			})
		} else {
			prefixOf[pathKey(prefix)] = v.ID
		}

		cfg := p.binConfigFor(req, v)
		ranges, err := cfg.Plan(v.Duration)
		if err != nil {
			kind := issues.KindInvalidBinConfig
			if errors.Is(err, issues.ErrTooManyBins) {
				kind = issues.KindTooManyBins
			}
			warnings = append(warnings, issues.Warning{
				Kind:    kind,
				VideoID: v.ID,
				Message: fmt.Sprintf("video skipped: %v", err),
			})
			continue
		}

		subjects, subjectWarnings := p.subjectsFor(req, v)
		warnings = append(warnings, subjectWarnings...)

		dir := ""
		if req.Mode == ModeTrim {
			dir = prefix
		}

		for _, s := range subjects {
			for i, r := range ranges {
				label := ""
				switch {
				case req.Mode == ModeCrop:
				case cfg.IsHourly():
					label = "H" + strconv.Itoa(int(math.Floor(r.Start/bins.HourSeconds))+1)
				case req.Policy == PolicyGlobalCounter:
					counter++
					label = "bin_" + strconv.Itoa(counter)
				default:
					label = "bin_" + strconv.Itoa(i+1)
				}

				candidate := BuildFilename(prefix, s.id, label, ext)
				tasks = append(tasks, OutputTask{
					VideoID:   v.ID,
					VideoPath: v.Path,
					SubjectID: s.id,
					BinIndex:  i + 1,
					Range:     r,
					Crop:      s.crop,
					Candidate: candidate,
					Filename:  candidate,
					RelPath:   joinRel(dir, candidate),
				})
			}
		}
	}

	report := BuildCollisionReport(tasks)
	warnings = append(warnings, resolveCollisions(tasks)...)

	for i := range tasks {
		tasks[i].Seq = i + 1
		if req.OutputRoot != "" {
			tasks[i].OutputPath = filepath.Join(req.OutputRoot, filepath.FromSlash(tasks[i].RelPath))
		}
	}

	if p.logger != nil {
		p.logger.Info("planned outputs",
			"videos", len(req.Videos),
			"tasks", len(tasks),
			"conflicts", len(report.Conflicts),
			"warnings", len(warnings),
			"mode", req.Mode.Value,
			"policy", req.Policy.Value,
		)
	}

	return Plan{Tasks: tasks, Collisions: report, Warnings: warnings}
}

func (p *Planner) prefixFor(req Request, v media.Video) string {
	if prefix, ok := req.Prefixes[v.ID]; ok && strings.TrimSpace(prefix) != "" {
		return SanitizePrefix(prefix)
	}
	return DefaultPrefix(v.Path)
}

// binConfigFor returns the effective bins. Crop-only batches produce one bin
// spanning the whole video.
func (p *Planner) binConfigFor(req Request, v media.Video) bins.Config {
	if req.Mode == ModeCrop {
		return bins.Config{StartOffset: 0, BinLength: v.Duration}
	}
	if req.SharedBins != nil {
		return *req.SharedBins
	}
	if cfg, ok := req.Bins[v.ID]; ok {
		return cfg
	}
	return bins.DefaultConfig()
}

// subjectsFor applies the active-video rule: the video being edited uses its
// full declared list, every other video only subjects that already have a
// rectangle.
func (p *Planner) subjectsFor(req Request, v media.Video) ([]subjectPlan, []issues.Warning) {
	if req.Mode == ModeTrim {
		return []subjectPlan{{}}, nil
	}

	declared := req.Registry.Subjects(v.ID)
	active := req.Registry.SetSubjects(v.ID)
	if v.ID == req.ActiveVideoID {
		active = declared
	}

	if len(active) == 0 {
		if req.Mode == ModeCrop && len(declared) == 0 {
			return []subjectPlan{{}}, nil
		}
		msg := "video skipped: no subjects declared"
		if len(declared) > 0 {
			msg = "video skipped: no declared subject has a crop rectangle"
		}
		return nil, []issues.Warning{{
			Kind:    issues.KindNoSubjectsDeclared,
			VideoID: v.ID,
			Message: msg,
		}}
	}

	var warnings []issues.Warning
	plans := lo.FilterMap(active, func(id crops.SubjectID, _ int) (subjectPlan, bool) {
		rect, ok := req.Registry.GetRect(v.ID, id)
		if !ok {
			warnings = append(warnings, issues.Warning{
				Kind:      issues.KindUndefinedCrop,
				VideoID:   v.ID,
				SubjectID: string(id),
				Message:   "subject skipped: crop rectangle not set",
			})
			return subjectPlan{}, false
		}
		return subjectPlan{id: id, crop: &rect}, true
	})
	return plans, warnings
}

// resolveCollisions makes every RelPath unique by appending _1, _2, ... to
// the stem of a repeated path. It runs under every policy so that names that
// cannot be separated by numbering, such as hour labels, still stay unique.
func resolveCollisions(tasks []OutputTask) []issues.Warning {
	used := mapset.NewSet[string]()
	var warnings []issues.Warning

	for i := range tasks {
		t := &tasks[i]
		if used.Add(pathKey(t.RelPath)) {
			continue
		}

		dir := dirOf(t.RelPath)
		ext := filepath.Ext(t.Candidate)
		stem := strings.TrimSuffix(t.Candidate, ext)
		for n := 1; ; n++ {
			name := stem + "_" + strconv.Itoa(n) + ext
			rel := joinRel(dir, name)
			if used.Add(pathKey(rel)) {
				t.Filename = name
				t.RelPath = rel
				break
			}
		}

		warnings = append(warnings, issues.Warning{
			Kind:      issues.KindFilenameCollision,
			VideoID:   t.VideoID,
			SubjectID: string(t.SubjectID),
			BinIndex:  t.BinIndex,
			Message:   fmt.Sprintf("%s already planned, writing %s", t.Candidate, t.Filename),
		})
	}
	return warnings
}

// BuildFilename assembles {prefix}[_subject{id}][_{label}].{ext}.
func BuildFilename(prefix string, subject crops.SubjectID, label, ext string) string {
	var b strings.Builder
	b.WriteString(prefix)
	if subject != "" {
		b.WriteString("_subject")
		b.WriteString(string(subject))
	}
	if label != "" {
		b.WriteString("_")
		b.WriteString(label)
	}
	b.WriteString(".")
	b.WriteString(ext)
	return b.String()
}

// Rebase points every task at a new output root.
func Rebase(tasks []OutputTask, root string) []OutputTask {
	return lo.Map(tasks, func(t OutputTask, _ int) OutputTask {
		t.OutputPath = filepath.Join(root, filepath.FromSlash(t.RelPath))
		return t
	})
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
