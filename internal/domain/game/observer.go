package game

// BoardObserver is the capability a UI implements to mirror a game.
type BoardObserver interface {
	Reset(boardSize int)
	Update(m Move)
	Indicate(m Move)
	Output(line string)
}

// NopObserver is used when no UI is attached.
type NopObserver struct{}

func (NopObserver) Reset(int)     {}
func (NopObserver) Update(Move)   {}
func (NopObserver) Indicate(Move) {}
func (NopObserver) Output(string) {}
