package scheduler

// PieceState is the download state of a single piece.
type PieceState int

// Piece states.
const (
	Missing PieceState = iota
	Requested
	Verifying
	Complete
)

var pieceStateStrings = map[PieceState]string{
	Missing:   "missing",
	Requested: "requested",
	Verifying: "verifying",
	Complete:  "complete",
}

func (s PieceState) String() string {
	return pieceStateStrings[s]
}
