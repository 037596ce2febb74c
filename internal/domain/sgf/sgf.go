package sgf

// GameTree is one SGF tree: the main line of nodes plus variations.
type GameTree struct {
	Nodes    []Node
	Children []*GameTree
}

// Node is one SGF node, e.g. the root properties or a single ";B[pd]".
type Node struct {
	Properties map[string][]string
}

// SGF is the root of an SGF document.
type SGF struct {
	Root *GameTree
}

// PropertyOrder fixes the order properties are written in.
var PropertyOrder = []string{"GM", "FF", "RU", "DT", "SZ", "KM", "RE", "PB", "PW", "C", "B", "W"}

// MoveWrap is how often (in moves) a line break is written into the move list.
const MoveWrap = 10
