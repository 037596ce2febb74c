package record

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/liverex/leela-zero-ui/internal/domain/game"
	"github.com/liverex/leela-zero-ui/internal/domain/sgf"
)

// MoveToSGFText encodes a position as two SGF letters. Rows are inverted:
// position 0 (engine row 1) is written on the last SGF row. Any negative
// position (pass/resign) is "tt".
func MoveToSGFText(pos, boardSize int) string {
	if pos < 0 {
		return "tt"
	}
	column := pos % boardSize
	row := boardSize - pos/boardSize - 1
	return string([]byte{byte('a' + column), byte('a' + row)})
}

// BuildTree converts a record into an SGF tree with one root node and one node per move.
func BuildTree(rec *game.Record) sgf.SGF {
	root := sgf.Node{
		Properties: map[string][]string{
			"GM": {"1"},
			"FF": {"4"},
			"RU": {"Chinese"},
			"DT": {rec.Date.Format("2006-01-02")},
			"SZ": {strconv.Itoa(rec.BoardSize)},
			"KM": {strconv.FormatFloat(rec.Komi, 'f', 1, 64)},
			"RE": {rec.Result.Score},
		},
	}
	tree := &sgf.GameTree{Nodes: []sgf.Node{root}}
	AddMovesToTree(tree, rec.Moves, rec.BoardSize)
	return sgf.SGF{Root: tree}
}

func AddMovesToTree(tree *sgf.GameTree, moves []game.Move, boardSize int) {
	for _, move := range moves {
		node := sgf.Node{
			Properties: map[string][]string{
				move.Color.SGF(): {MoveToSGFText(move.Pos, boardSize)},
			},
		}
		tree.Nodes = append(tree.Nodes, node)
	}
}

// Serialize writes the tree. The root node is followed by a line break and
// the move list is broken after the 1st, 11th, 21st... move.
func Serialize(s *sgf.SGF) string {
	var builder strings.Builder
	builder.WriteString("(")
	serializeGameTree(&builder, s.Root)
	builder.WriteString(")\n")
	return builder.String()
}

func serializeGameTree(builder *strings.Builder, tree *sgf.GameTree) {
	for i, node := range tree.Nodes {
		builder.WriteString(";")
		writeProperties(builder, node)

		switch {
		case i == 0:
			builder.WriteString("\n")
		case (i-1)%sgf.MoveWrap == 0:
			builder.WriteString("\n")
		}
	}

	for _, child := range tree.Children {
		builder.WriteString("(")
		serializeGameTree(builder, child)
		builder.WriteString(")")
	}
}

func writeProperties(builder *strings.Builder, node sgf.Node) {
	used := make(map[string]bool)
	for _, key := range sgf.PropertyOrder {
		if values, ok := node.Properties[key]; ok {
			used[key] = true
			for _, v := range values {
				builder.WriteString(fmt.Sprintf("%s[%s]", key, v))
			}
		}
	}

	rest := make([]string, 0)
	for key := range node.Properties {
		if !used[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		for _, v := range node.Properties[key] {
			builder.WriteString(fmt.Sprintf("%s[%s]", key, v))
		}
	}
}

// Encode renders a finished record in the game record format.
func Encode(rec *game.Record) string {
	tree := BuildTree(rec)
	return Serialize(&tree)
}
