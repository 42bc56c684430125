package timeline

import (
	"github.com/forPelevin/mvsync/internal/types"
)

// Assemble merges artist and b-roll placements into one start-ordered EDL.
// Artist placements come first on equal start times. Overlapping or
// out-of-range placements are passed through as-is.
func Assemble(artist, broll []types.Placement, song types.SongMeta) (types.EditDecisionList, error) {
	if len(artist) == 0 && len(broll) == 0 {
		return types.EditDecisionList{}, types.ErrNoPlacements
	}

	all := make([]types.Placement, 0, len(artist)+len(broll))
	all = append(all, artist...)
	all = append(all, broll...)
	all = SortByStart(all)

	return types.EditDecisionList{
		SongRef:      song.Ref,
		SongDuration: song.Duration,
		Tempo:        song.Tempo,
		TotalClips:   len(all),
		Placements:   all,
		Features:     song.Features,
	}, nil
}
