package manifest

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/tailor-media/tailor/internal/bins"
	"github.com/tailor-media/tailor/internal/crops"
	"github.com/tailor-media/tailor/internal/executor"
	"github.com/tailor-media/tailor/internal/issues"
	"github.com/tailor-media/tailor/internal/media"
	"github.com/tailor-media/tailor/internal/naming"
)

// Job is a validated manifest in the form the pipeline consumes. Video
// durations are not yet known.
type Job struct {
	Request     naming.Request
	Codec       media.CodecOptions
	OnCollision CollisionAction
	DirPolicy   executor.DirPolicy
	Warnings    []issues.Warning
}

// Build turns m into a planner request and a populated crop registry.
func Build(m *Manifest) (*Job, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	videos := media.NewVideos(m.Paths())
	registry := crops.NewRegistry()
	req := naming.Request{
		Videos:     videos,
		Registry:   registry,
		Bins:       make(map[string]bins.Config),
		Prefixes:   make(map[string]string),
		Policy:     m.CollisionPolicy,
		Mode:       m.Mode,
		OutputRoot: m.OutputDir,
		Extension:  m.Extension,
	}

	job := &Job{
		Codec:       m.Codec,
		OnCollision: m.OnCollision,
		DirPolicy:   m.OutputDirPolicy,
	}
	if m.Mode.Trims() && m.SameSettings && m.Bins != nil {
		shared, err := m.Bins.Config()
		if err != nil {
			return nil, fmt.Errorf("%w: bins: %v", ErrInvalidManifest, err)
		}
		req.SharedBins = &shared
	}

	for i, spec := range m.Videos {
		v := videos[i]
		if spec.Path == m.ActiveVideo || v.ID == m.ActiveVideo {
			req.ActiveVideoID = v.ID
		}
		if spec.Prefix != "" {
			req.Prefixes[v.ID] = spec.Prefix
		}
		if spec.Bins != nil && req.SharedBins == nil {
			cfg, err := spec.Bins.Config()
			if err != nil {
				return nil, fmt.Errorf("%w: videos[%d] bins: %v", ErrInvalidManifest, i, err)
			}
			req.Bins[v.ID] = cfg
		}

		if !m.Mode.Crops() {
			continue
		}
		declared, err := spec.SubjectList()
		if err != nil {
			return nil, fmt.Errorf("%w: videos[%d]: %v", ErrInvalidManifest, i, err)
		}
		keys := sortedKeys(spec.Crops)
		extra := lo.Without(lo.Map(keys, func(k string, _ int) crops.SubjectID {
			return crops.SubjectID(k)
		}), declared...)
		registry.DeclareSubjects(v.ID, append(append([]crops.SubjectID(nil), declared...), extra...))
		for _, key := range keys {
			registry.SetRect(v.ID, crops.SubjectID(key), spec.Crops[key])
		}
		// Crops for subjects missing from the list are dropped, as when a
		// user narrows the subject list after drawing.
		for _, r := range registry.DeclareSubjects(v.ID, declared) {
			job.Warnings = append(job.Warnings, issues.Warning{
				Kind:      issues.KindSubjectsRemoved,
				VideoID:   v.ID,
				SubjectID: string(r.SubjectID),
				Message:   fmt.Sprintf("subject %s is not declared; its crop %s was discarded", r.SubjectID, r.Rect),
			})
		}
	}

	job.Request = req
	return job, nil
}

// Starter builds an editable manifest for a list of discovered videos.
func Starter(paths []string, outputDir string) *Manifest {
	m := &Manifest{
		OutputDir:    outputDir,
		SameSettings: true,
		Bins:         &BinSpec{Start: "00:00:00", Length: "01:00:00"},
	}
	for _, p := range paths {
		m.Videos = append(m.Videos, VideoSpec{
			Path:     p,
			Prefix:   naming.DefaultPrefix(p),
			Subjects: "1,2,3",
		})
	}
	m.Normalize()
	return m
}

func sortedKeys(m map[string]crops.Rect) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
