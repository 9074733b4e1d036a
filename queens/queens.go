// Package queens builds the n-queens search as a choice tree: one row
// per level, branching over the columns still safe under the current
// placement. It doubles as the stock demonstration problem and as a
// fixture with well-known solution counts.
package queens

import "github.com/canopy-dev/canopy/tree"

// Tree is the n-queens search over an n by n board. Each leaf is a
// solution, the column index of the queen in every row.
func Tree(n int) tree.Tree {
	return place(n, 0, 0, 0, 0, nil, false)
}

// CountTree is Tree with every solution collapsed to int64(1), for
// counting under a sum monoid.
func CountTree(n int) tree.Tree {
	return place(n, 0, 0, 0, 0, nil, true)
}

func place(n, row int, cols, downDiag, upDiag uint64, acc []int64, count bool) tree.Tree {
	if row == n {
		if count {
			return tree.Leaf{Value: int64(1)}
		}
		board := make([]any, len(acc))
		for i, c := range acc {
			board[i] = c
		}
		return tree.Leaf{Value: board}
	}
	var free []int
	for c := 0; c < n; c++ {
		if cols&(1<<c) == 0 && downDiag&(1<<(row+c)) == 0 && upDiag&(1<<(n+row-c)) == 0 {
			free = append(free, c)
		}
	}
	if len(free) == 0 {
		return tree.Null{}
	}
	return fan(free, func(c int) tree.Tree {
		return &tree.Defer{Force: func() tree.Tree {
			return place(n, row+1,
				cols|1<<c,
				downDiag|1<<(row+c),
				upDiag|1<<(n+row-c),
				append(acc[:len(acc):len(acc)], int64(c)),
				count)
		}}
	})
}

// fan spreads options over a balanced binary Choice tree.
func fan(options []int, child func(int) tree.Tree) tree.Tree {
	if len(options) == 1 {
		return child(options[0])
	}
	mid := len(options) / 2
	return &tree.Choice{
		Left:  fan(options[:mid], child),
		Right: fan(options[mid:], child),
	}
}
