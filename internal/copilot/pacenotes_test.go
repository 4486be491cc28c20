package copilot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamSkjord/opentpt/internal/models"
)

func TestBuildPaceNotes_SingleCorner(t *testing.T) {
	path := models.RoadPath{
		Corners: []models.Corner{{ApexIdx: 2, Severity: 4, Direction: models.Right}},
	}
	stations := []float64{0, 50, 100, 150}

	notes := BuildPaceNotes(path, stations, 50)
	require.Len(t, notes, 1)
	assert.Equal(t, "right 4", notes[0].CalloutText)
	assert.Equal(t, 100.0, notes[0].PositionM)
}

func TestBuildPaceNotes_MergesCloseCorners(t *testing.T) {
	path := models.RoadPath{
		Corners: []models.Corner{
			{ApexIdx: 1, Severity: 4, Direction: models.Left},
			{ApexIdx: 2, Severity: 3, Direction: models.Right},
		},
	}
	stations := []float64{0, 100, 130}

	notes := BuildPaceNotes(path, stations, 50)
	require.Len(t, notes, 1)
	assert.Equal(t, "left 4 into right 3", notes[0].CalloutText)
	assert.Len(t, notes[0].MergedFrom, 1)
}

func TestBuildPaceNotes_KeepsDistantCornersSeparate(t *testing.T) {
	path := models.RoadPath{
		Corners: []models.Corner{
			{ApexIdx: 1, Severity: 4, Direction: models.Left},
			{ApexIdx: 2, Severity: 3, Direction: models.Right},
		},
	}
	stations := []float64{0, 100, 400}

	notes := BuildPaceNotes(path, stations, 50)
	assert.Len(t, notes, 2)
}

func TestDueNote_ReturnsNoteWithinBracket(t *testing.T) {
	notes := []models.PaceNote{{ID: "a", PositionM: 350}}
	note, ok := DueNote(notes, 50, map[string]bool{}, DefaultBrackets())
	assert.True(t, ok)
	assert.Equal(t, "a", note.ID)
}

func TestDueNote_SkipsAlreadyAnnounced(t *testing.T) {
	notes := []models.PaceNote{{ID: "a", PositionM: 350}}
	_, ok := DueNote(notes, 50, map[string]bool{"a": true}, DefaultBrackets())
	assert.False(t, ok)
}

func TestDueNote_SkipsPassedNotes(t *testing.T) {
	notes := []models.PaceNote{{ID: "a", PositionM: 40}}
	_, ok := DueNote(notes, 50, map[string]bool{}, DefaultBrackets())
	assert.False(t, ok)
}
