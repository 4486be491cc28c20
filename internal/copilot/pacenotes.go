package copilot

import (
	"fmt"

	uuid "github.com/satori/go.uuid"

	"github.com/SamSkjord/opentpt/internal/models"
)

// DistanceBracket is one rung of the configured callout-distance ladder
// (e.g. 400m, 200m, 100m). A note becomes due once it is within any
// rung's distance; it is called once, not once per rung.
type DistanceBracket struct {
	AtM float64
}

// DefaultBrackets is a typical rally pace-note cadence.
func DefaultBrackets() []DistanceBracket {
	return []DistanceBracket{{AtM: 400}, {AtM: 200}, {AtM: 100}}
}

// BuildPaceNotes converts detected corners on a RoadPath into pace-notes
// with station distances, merging corners within mergeDistanceM of each
// other into a single compound callout.
func BuildPaceNotes(path models.RoadPath, stations []float64, mergeDistanceM float64) []models.PaceNote {
	if len(path.Corners) == 0 {
		return nil
	}

	var notes []models.PaceNote
	i := 0
	for i < len(path.Corners) {
		c := path.Corners[i]
		group := []models.Corner{c}
		j := i + 1
		for j < len(path.Corners) && stations[path.Corners[j].ApexIdx]-stations[c.ApexIdx] <= mergeDistanceM {
			group = append(group, path.Corners[j])
			j++
		}

		notes = append(notes, buildNote(group, stations))
		i = j
	}
	return notes
}

func buildNote(group []models.Corner, stations []float64) models.PaceNote {
	first := group[0]
	sev := first.Severity
	noteID, err := uuid.NewV4()
	if err != nil {
		noteID = uuid.Nil
	}
	note := models.PaceNote{
		ID:          noteID.String(),
		Kind:        models.PaceNoteCorner,
		PositionM:   stations[first.ApexIdx],
		CalloutText: calloutFor(first),
		Severity:    &sev,
	}
	for _, c := range group[1:] {
		note.CalloutText += " into " + calloutFor(c)
		note.MergedFrom = append(note.MergedFrom, fmt.Sprintf("%d", c.ApexIdx))
	}
	return note
}

func calloutFor(c models.Corner) string {
	dir := "right"
	if c.Direction == models.Left {
		dir = "left"
	}
	return fmt.Sprintf("%s %d", dir, c.Severity)
}

// DueNote selects the first not-yet-announced pace-note ahead of the
// vehicle's current station s that lies within any bracket's distance
// (in practice, the largest bracket). Only the note is returned, not the
// bracket; announced is keyed by note ID, so a note that has been
// announced is not returned again at the smaller brackets.
func DueNote(notes []models.PaceNote, s float64, announced map[string]bool, brackets []DistanceBracket) (models.PaceNote, bool) {
	for _, n := range notes {
		if announced[n.ID] {
			continue
		}
		distanceAhead := n.PositionM - s
		if distanceAhead < 0 {
			continue
		}
		for _, b := range brackets {
			if distanceAhead <= b.AtM {
				return n, true
			}
		}
	}
	return models.PaceNote{}, false
}
