// Package crops tracks, per video, which subjects are declared and which of
// them have a crop rectangle.
package crops

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// SubjectID is a user-assigned token, unique within one video.
type SubjectID string

// DefaultSubjects is the list offered for a newly added video.
var DefaultSubjects = []SubjectID{"1", "2", "3"}

var subjectPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,16}$`)

// ValidSubjectID reports whether s is usable as a subject id.
func ValidSubjectID(s string) bool {
	return subjectPattern.MatchString(s)
}

// ParseSubjectList parses a comma separated list such as "1, 2,3".
// Blank entries are ignored and duplicates keep their first position.
func ParseSubjectList(s string) ([]SubjectID, error) {
	var ids []SubjectID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !ValidSubjectID(part) {
			return nil, fmt.Errorf("invalid subject id %q", part)
		}
		ids = append(ids, SubjectID(part))
	}
	return lo.Uniq(ids), nil
}

// Removed describes a subject dropped by a redeclaration.
type Removed struct {
	SubjectID SubjectID
	Rect      *Rect
}

type videoEntry struct {
	order []SubjectID
	rects map[SubjectID]*Rect
}

func (e *videoEntry) declare(id SubjectID) {
	if _, ok := e.rects[id]; ok {
		return
	}
	e.order = append(e.order, id)
	e.rects[id] = nil
}

// Registry maps video id -> subject id -> rectangle. Declaration order is kept.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	videos map[string]*videoEntry
}

func NewRegistry() *Registry {
	return &Registry{videos: make(map[string]*videoEntry)}
}

func (r *Registry) entry(videoID string) *videoEntry {
	e, ok := r.videos[videoID]
	if !ok {
		e = &videoEntry{rects: make(map[SubjectID]*Rect)}
		r.videos[videoID] = e
	}
	return e
}

// DeclareSubjects makes ids the declared set for the video. Missing ids are
// added unset; ids no longer listed are deleted along with their rectangle.
// The removed subjects are returned so the caller can warn about lost rects.
func (r *Registry) DeclareSubjects(videoID string, ids []SubjectID) []Removed {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(videoID)
	keep := lo.Associate(ids, func(id SubjectID) (SubjectID, struct{}) {
		return id, struct{}{}
	})

	var removed []Removed
	for _, id := range e.order {
		if _, ok := keep[id]; ok {
			continue
		}
		removed = append(removed, Removed{SubjectID: id, Rect: e.rects[id]})
		delete(e.rects, id)
	}
	e.order = lo.Filter(e.order, func(id SubjectID, _ int) bool {
		_, ok := keep[id]
		return ok
	})

	for _, id := range ids {
		e.declare(id)
	}
	return removed
}

// SetRect stores a rectangle, declaring the subject if needed.
func (r *Registry) SetRect(videoID string, id SubjectID, rect Rect) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(videoID)
	e.declare(id)
	stored := rect
	e.rects[id] = &stored
}

// ClearRect unsets a subject's rectangle but keeps it declared.
func (r *Registry) ClearRect(videoID string, id SubjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.videos[videoID]; ok {
		if _, declared := e.rects[id]; declared {
			e.rects[id] = nil
		}
	}
}

// GetRect returns a copy of the rectangle, or false when unset or undeclared.
func (r *Registry) GetRect(videoID string, id SubjectID) (Rect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.videos[videoID]
	if !ok {
		return Rect{}, false
	}
	rect := e.rects[id]
	if rect == nil {
		return Rect{}, false
	}
	return *rect, true
}

// Completeness returns how many declared subjects have a rectangle.
func (r *Registry) Completeness(videoID string) (set, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.videos[videoID]
	if !ok {
		return 0, 0
	}
	set = lo.CountBy(e.order, func(id SubjectID) bool {
		return e.rects[id] != nil
	})
	return set, len(e.order)
}

// Subjects returns the declared subjects in declaration order.
func (r *Registry) Subjects(videoID string) []SubjectID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.videos[videoID]
	if !ok {
		return nil
	}
	return append([]SubjectID(nil), e.order...)
}

// SetSubjects returns only the subjects that have a rectangle.
func (r *Registry) SetSubjects(videoID string) []SubjectID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.videos[videoID]
	if !ok {
		return nil
	}
	return lo.Filter(e.order, func(id SubjectID, _ int) bool {
		return e.rects[id] != nil
	})
}

// RemoveVideo drops every entry for the video.
func (r *Registry) RemoveVideo(videoID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.videos, videoID)
}
