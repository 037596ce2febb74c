package game

import "time"

type Cause string

const (
	CauseNone        Cause = ""
	CauseResignation Cause = "resignation"
	CauseDoublePass  Cause = "double_pass"
	CauseMoveCap     Cause = "move_cap"
	CauseScore       Cause = "score"
)

type Winner string

const (
	WinnerNone  Winner = "none"
	WinnerBlack Winner = "black"
	WinnerWhite Winner = "white"
)

// WinnerFromScore reads the leading "B"/"W" of a final_score payload.
func WinnerFromScore(score string) Winner {
	if score == "" {
		return WinnerNone
	}
	switch score[0] {
	case 'B', 'b':
		return WinnerBlack
	case 'W', 'w':
		return WinnerWhite
	}
	return WinnerNone
}

func WinnerOf(c Color) Winner {
	if c == White {
		return WinnerWhite
	}
	return WinnerBlack
}

type MatchResult struct {
	Winner Winner `json:"winner" bson:"winner"`
	Cause  Cause  `json:"cause" bson:"cause"`
	Score  string `json:"score" bson:"score"`
}

// ResignationResult is the result when color resigned.
func ResignationResult(resigned Color) MatchResult {
	winner := resigned.Opposite()
	return MatchResult{
		Winner: WinnerOf(winner),
		Cause:  CauseResignation,
		Score:  winner.SGF() + "+Resign",
	}
}

// Record is built move by move and frozen once the game is over.
type Record struct {
	ID        string      `json:"id" bson:"_id"`
	BoardSize int         `json:"board_size" bson:"board_size"`
	Komi      float64     `json:"komi" bson:"komi"`
	Date      time.Time   `json:"date" bson:"date"`
	Moves     []Move      `json:"moves" bson:"moves"`
	Result    MatchResult `json:"result" bson:"result"`
	finished  bool
}

func NewRecord(id string, boardSize int, komi float64, date time.Time) *Record {
	return &Record{
		ID:        id,
		BoardSize: boardSize,
		Komi:      komi,
		Date:      date,
	}
}

// Append adds a move; it is a no-op once the record is finished.
func (r *Record) Append(m Move) bool {
	if r.finished {
		return false
	}
	r.Moves = append(r.Moves, m)
	return true
}

func (r *Record) Finish(result MatchResult) {
	if r.finished {
		return
	}
	r.Result = result
	r.finished = true
}

func (r *Record) Finished() bool {
	return r.finished
}

func (r *Record) Plies() int {
	return len(r.Moves)
}
