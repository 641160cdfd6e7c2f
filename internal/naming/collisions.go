package naming

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/tailor-media/tailor/internal/crops"
)

// Member identifies one planned output inside a conflict.
type Member struct {
	VideoID   string          `json:"video_id"`
	SubjectID crops.SubjectID `json:"subject_id,omitempty"`
	BinIndex  int             `json:"bin_index"`
}

// Conflict is a candidate path claimed by more than one output.
type Conflict struct {
	RelPath string   `json:"rel_path"`
	Members []Member `json:"members"`
}

// Videos lists the implicated videos once each, in plan order.
func (c Conflict) Videos() []string {
	return lo.Uniq(lo.Map(c.Members, func(m Member, _ int) string {
		return m.VideoID
	}))
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s claimed %d times by %s", c.RelPath, len(c.Members), strings.Join(c.Videos(), ", "))
}

// CollisionReport is the pre-flight view of naming conflicts, computed from
// candidate names before any suffix is applied.
type CollisionReport struct {
	Conflicts []Conflict `json:"conflicts"`
}

func (r CollisionReport) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// BuildCollisionReport groups tasks by candidate path. Groups are ordered by
// the first task that claimed them. Paths compare case-insensitively.
func BuildCollisionReport(tasks []OutputTask) CollisionReport {
	groups := lo.GroupBy(tasks, func(t OutputTask) string {
		return pathKey(candidateRel(t))
	})

	var report CollisionReport
	seen := make(map[string]bool)
	for _, t := range tasks {
		key := pathKey(candidateRel(t))
		if seen[key] {
			continue
		}
		seen[key] = true
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		report.Conflicts = append(report.Conflicts, Conflict{
			RelPath: candidateRel(group[0]),
			Members: lo.Map(group, func(t OutputTask, _ int) Member {
				return Member{VideoID: t.VideoID, SubjectID: t.SubjectID, BinIndex: t.BinIndex}
			}),
		})
	}
	return report
}

func candidateRel(t OutputTask) string {
	dir := dirOf(t.RelPath)
	if dir == "" {
		return t.Candidate
	}
	return dir + "/" + t.Candidate
}

func dirOf(rel string) string {
	i := strings.LastIndex(rel, "/")
	if i < 0 {
		return ""
	}
	return rel[:i]
}

func pathKey(rel string) string {
	return strings.ToLower(rel)
}
