package crops

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclareSubjects_RemovesRect(t *testing.T) {
	reg := NewRegistry()
	reg.DeclareSubjects("a.mp4", []SubjectID{"1", "2", "3"})
	reg.SetRect("a.mp4", "1", Rect{X: 1, Y: 2, W: 30, H: 40})
	reg.SetRect("a.mp4", "2", Rect{X: 5, Y: 5, W: 10, H: 10})

	removed := reg.DeclareSubjects("a.mp4", []SubjectID{"2", "3"})
	require.Len(t, removed, 1)
	assert.Equal(t, SubjectID("1"), removed[0].SubjectID)
	require.NotNil(t, removed[0].Rect)
	assert.Equal(t, Rect{X: 1, Y: 2, W: 30, H: 40}, *removed[0].Rect)

	_, ok := reg.GetRect("a.mp4", "1")
	assert.False(t, ok)
	assert.Equal(t, []SubjectID{"2", "3"}, reg.Subjects("a.mp4"))

	// Redeclaring the same set changes nothing.
	removed = reg.DeclareSubjects("a.mp4", []SubjectID{"2", "3"})
	assert.Empty(t, removed)
	rect, ok := reg.GetRect("a.mp4", "2")
	assert.True(t, ok)
	assert.Equal(t, Rect{X: 5, Y: 5, W: 10, H: 10}, rect)

	// Re-adding subject 1 brings it back unset.
	reg.DeclareSubjects("a.mp4", []SubjectID{"1", "2", "3"})
	_, ok = reg.GetRect("a.mp4", "1")
	assert.False(t, ok)
}

func TestSetRect_ImplicitlyDeclares(t *testing.T) {
	reg := NewRegistry()
	reg.SetRect("v", "7", Rect{W: 2, H: 2})

	assert.Equal(t, []SubjectID{"7"}, reg.Subjects("v"))
	set, total := reg.Completeness("v")
	assert.Equal(t, 1, set)
	assert.Equal(t, 1, total)
}

func TestCompleteness(t *testing.T) {
	reg := NewRegistry()
	set, total := reg.Completeness("missing")
	assert.Zero(t, set)
	assert.Zero(t, total)

	reg.DeclareSubjects("v", []SubjectID{"1", "2", "3"})
	reg.SetRect("v", "3", Rect{W: 1, H: 1})
	set, total = reg.Completeness("v")
	assert.Equal(t, 1, set)
	assert.Equal(t, 3, total)
	assert.Equal(t, []SubjectID{"3"}, reg.SetSubjects("v"))

	reg.ClearRect("v", "3")
	set, _ = reg.Completeness("v")
	assert.Zero(t, set)
	assert.Equal(t, []SubjectID{"1", "2", "3"}, reg.Subjects("v"))
}

func TestGetRect_ReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	reg.SetRect("v", "1", Rect{W: 10, H: 10})
	r, _ := reg.GetRect("v", "1")
	r.W = 99
	again, _ := reg.GetRect("v", "1")
	assert.Equal(t, 10, again.W)
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.SetRect("v", SubjectID(rune('a'+i)), Rect{W: i + 1, H: 1})
			reg.Completeness("v")
		}(i)
	}
	wg.Wait()

	set, total := reg.Completeness("v")
	assert.Equal(t, 16, set)
	assert.Equal(t, 16, total)
}

func TestParseSubjectList(t *testing.T) {
	ids, err := ParseSubjectList(" 1, 2,,3 ,2")
	require.NoError(t, err)
	assert.Equal(t, []SubjectID{"1", "2", "3"}, ids)

	ids, err = ParseSubjectList("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ParseSubjectList("1, two words")
	assert.Error(t, err)
}

func TestRect(t *testing.T) {
	r := RectFromFloat(10.4, 20.6, 100.5, 50.49)
	assert.Equal(t, Rect{X: 10, Y: 21, W: 101, H: 50}, r)
	assert.Equal(t, "crop=101:50:10:21", r.Filter())
	assert.True(t, r.Fits(111, 71))
	assert.False(t, r.Fits(110, 71))

	assert.NoError(t, r.Validate())
	assert.Error(t, Rect{X: -1, W: 1, H: 1}.Validate())
	assert.Error(t, Rect{W: 0, H: 1}.Validate())
}
