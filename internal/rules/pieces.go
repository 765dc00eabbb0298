package rules

import nchess "github.com/corentings/chess/v2"

var pieceLetters = map[nchess.PieceType]string{
	nchess.Pawn:   "P",
	nchess.Knight: "N",
	nchess.Bishop: "B",
	nchess.Rook:   "R",
	nchess.Queen:  "Q",
	nchess.King:   "K",
}

// capturedPiece reports the piece removed by mv, read from the position before it.
func capturedPiece(before *nchess.Position, mv *nchess.Move) string {
	if before == nil || mv == nil {
		return ""
	}
	if !mv.HasTag(nchess.Capture) && !mv.HasTag(nchess.EnPassant) {
		return ""
	}
	sq := mv.S2()
	if mv.HasTag(nchess.EnPassant) {
		file, rank := mv.S2().File(), mv.S2().Rank()
		if before.Turn() == nchess.White {
			sq = nchess.NewSquare(file, rank-1)
		} else {
			sq = nchess.NewSquare(file, rank+1)
		}
	}
	p := before.Board().Piece(sq)
	if p == nchess.NoPiece {
		return ""
	}
	return PieceCode(p)
}

// PieceCode renders a piece as color letter plus uppercase type, e.g. "wQ".
func PieceCode(p nchess.Piece) string {
	letter, ok := pieceLetters[p.Type()]
	if !ok {
		return ""
	}
	if p.Color() == nchess.White {
		return "w" + letter
	}
	return "b" + letter
}
