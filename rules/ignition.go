package rules

import "github.com/sheikhrachel/go-firesim/model"

// IgnitionThreshold is the probability an ignition score must strictly exceed.
// A score of exactly 0.5 does not ignite.
const IgnitionThreshold = 0.5

// Ignites reports whether an ignition probability sets a cell burning
func Ignites(p float64) bool {
	return p > IgnitionThreshold
}

/*
ApplyFireRules returns the next state of one cell given its current state and
whether any neighbor was burning in the prior snapshot.

	Burning  -> Burned
	Burned   -> Burned
	Unburned -> Burning if a neighbor burns and score() > 0.5, else Unburned

score is only called for an Unburned cell with a burning neighbor. Its error
is returned unchanged together with the current state.
*/
func ApplyFireRules(
	state model.CellState,
	burningNeighbor bool,
	score func() (float64, error),
) (model.CellState, error) {
	switch state {
	case model.Burning, model.Burned:
		return model.Burned, nil
	}
	if !burningNeighbor {
		return model.Unburned, nil
	}
	p, err := score()
	if err != nil {
		return state, err
	}
	if Ignites(p) {
		return model.Burning, nil
	}
	return model.Unburned, nil
}
