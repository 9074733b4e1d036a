// Package script builds choice trees from starlark programs. The script
// defines an explore() function that walks one path through the search,
// using choose/amb to branch, fail to prune, and cache to pin expensive
// values into the checkpoint.
//
// Trees are produced by replay: a probe run executes the script under a
// prefix of recorded decisions and suspends at the first nondeterministic
// point the prefix does not cover. Each suspension becomes a tree node
// whose children replay with a longer prefix. Laziness comes for free:
// children are Defer nodes and only run when the walker reaches them.
package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.starlark.net/starlark"

	"github.com/canopy-dev/canopy/codec"
	"github.com/canopy-dev/canopy/tree"
)

// EntryPoint is the function a script must define.
const EntryPoint = "explore"

// Program is a compiled script. It is immutable and safe to share;
// every Tree call replays it in a fresh starlark thread.
type Program struct {
	name string
	prog *starlark.Program
}

// Load compiles the script at path.
func Load(path string) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(filepath.Base(path), src)
}

// Parse compiles script source. name appears in script backtraces.
func Parse(name string, src []byte) (*Program, error) {
	predeclared := map[string]bool{"choose": true, "amb": true, "fail": true, "cache": true}
	_, prog, err := starlark.SourceProgram(name, src, func(s string) bool { return predeclared[s] })
	if err != nil {
		return nil, fmt.Errorf("compile script %s: %w", name, err)
	}
	return &Program{name: name, prog: prog}, nil
}

// Name is the script's file name.
func (p *Program) Name() string { return p.name }

// Tree is the script's choice tree. Probe runs happen lazily as the
// tree is walked; a script error mid-walk panics and is reported as a
// worker failure.
func (p *Program) Tree() tree.Tree {
	return p.node(nil)
}

func (p *Program) node(prefix []decision) tree.Tree {
	return &tree.Defer{Force: func() tree.Tree { return p.run(prefix) }}
}

// run executes one probe under prefix and translates how it stopped
// into a tree node.
func (p *Program) run(prefix []decision) tree.Tree {
	thread := &starlark.Thread{Name: p.name}
	rs := &runState{decisions: prefix}
	globals, err := p.prog.Init(thread, rs.builtins())
	if t, stopped := p.settle(prefix, err); stopped {
		return t
	}
	fn, ok := globals[EntryPoint].(starlark.Callable)
	if !ok {
		panic(fmt.Errorf("script %s does not define %s()", p.name, EntryPoint))
	}
	v, err := starlark.Call(thread, fn, nil, nil)
	if t, stopped := p.settle(prefix, err); stopped {
		return t
	}
	if v == starlark.None {
		return tree.Null{}
	}
	leaf, err := toGo(v)
	if err != nil {
		panic(fmt.Errorf("script %s: %w", p.name, err))
	}
	return tree.Leaf{Value: leaf}
}

// settle interprets a probe run's termination. It reports stopped=false
// only when the run ended normally.
func (p *Program) settle(prefix []decision, err error) (tree.Tree, bool) {
	if err == nil {
		return nil, false
	}
	if errors.Is(err, errPruned) {
		return tree.Null{}, true
	}
	var sb *suspendBranch
	if errors.As(err, &sb) {
		return p.choiceFan(prefix, 0, sb.n), true
	}
	var sc *suspendCache
	if errors.As(err, &sc) {
		v := sc.value
		return &tree.Cache{
			Effect: func() (any, bool) { return v, true },
			Codec:  codec.Values{},
			Next: func(decoded any) tree.Tree {
				return p.node(append(prefix[:len(prefix):len(prefix)], decision{isCache: true, value: decoded}))
			},
		}, true
	}
	panic(fmt.Errorf("script %s: %w", p.name, err))
}

// choiceFan spreads options [lo, hi) over a balanced binary Choice tree
// whose leaves replay with the chosen index appended.
func (p *Program) choiceFan(prefix []decision, lo, hi int) tree.Tree {
	if hi-lo == 1 {
		return p.node(append(prefix[:len(prefix):len(prefix)], decision{branch: lo}))
	}
	mid := lo + (hi-lo)/2
	return &tree.Choice{
		Left:  p.choiceFan(prefix, lo, mid),
		Right: p.choiceFan(prefix, mid, hi),
	}
}
