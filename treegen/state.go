package treegen

import (
	"strconv"

	"github.com/BaSui01/convtree/types"
)

// DefaultRootLabel labels the root branch of every tree.
const DefaultRootLabel = "C-"

// BranchState is the conversation accumulated along one root-to-node path.
// Methods never modify the receiver; they return independent copies so a
// child branch can never observe a sibling's turns.
type BranchState struct {
	Turns        []types.ConversationTurn
	ModeratorLog []types.ModeratorEntry
	Label        string
}

// NewBranchState returns an empty root state. An empty label falls back to
// DefaultRootLabel.
func NewBranchState(rootLabel string) BranchState {
	if rootLabel == "" {
		rootLabel = DefaultRootLabel
	}
	return BranchState{
		Turns:        []types.ConversationTurn{},
		ModeratorLog: []types.ModeratorEntry{},
		Label:        rootLabel,
	}
}

// Clone deep-copies the state.
func (s BranchState) Clone() BranchState {
	return BranchState{
		Turns:        types.CloneTurns(s.Turns),
		ModeratorLog: types.CloneModeratorLog(s.ModeratorLog),
		Label:        s.Label,
	}
}

// Fork returns the state of the index-th child (1-based): a deep copy with
// "<index>-" appended to the label.
func (s BranchState) Fork(index int) BranchState {
	child := s.Clone()
	child.Label = ChildLabel(s.Label, index)
	return child
}

// WithTurn returns a copy with turn appended.
func (s BranchState) WithTurn(turn types.ConversationTurn) BranchState {
	next := s.Clone()
	next.Turns = append(next.Turns, turn)
	return next
}

// WithModeratorEntry returns a copy with entry appended to the moderator log.
func (s BranchState) WithModeratorEntry(entry types.ModeratorEntry) BranchState {
	next := s.Clone()
	next.ModeratorLog = append(next.ModeratorLog, types.CloneModeratorLog([]types.ModeratorEntry{entry})...)
	return next
}

// Depth is the number of turns on this path.
func (s BranchState) Depth() int {
	return len(s.Turns)
}

// ChildLabel derives the label of the index-th child of parent.
func ChildLabel(parent string, index int) string {
	return parent + strconv.Itoa(index) + "-"
}
