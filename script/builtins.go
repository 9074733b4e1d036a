package script

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
)

// A decision pins down one nondeterministic point of a probe run: which
// branch a choose took, or which value a cache produced.
type decision struct {
	isCache bool
	branch  int
	value   any
}

// errPruned aborts a probe run whose current decision prefix leads to a
// dead end.
var errPruned = errors.New("pruned")

// suspendBranch aborts a probe run at the first choose the prefix does
// not cover. The caller turns it into a Choice fan over n options.
type suspendBranch struct {
	n int
}

func (s *suspendBranch) Error() string {
	return fmt.Sprintf("suspended at a choice over %d options", s.n)
}

// suspendCache aborts a probe run at the first cache the prefix does not
// cover, carrying the freshly computed value.
type suspendCache struct {
	value any
}

func (s *suspendCache) Error() string { return "suspended at a cache point" }

// runState replays a decision prefix through one execution of the
// script.
type runState struct {
	decisions []decision
	next      int
}

func (r *runState) builtins() starlark.StringDict {
	return starlark.StringDict{
		"choose": starlark.NewBuiltin("choose", r.choose),
		"amb":    starlark.NewBuiltin("amb", r.amb),
		"fail":   starlark.NewBuiltin("fail", r.fail),
		"cache":  starlark.NewBuiltin("cache", r.cacheBuiltin),
	}
}

// take consumes the next replayed decision, or reports that the run has
// gone past its prefix.
func (r *runState) take() (decision, bool) {
	if r.next >= len(r.decisions) {
		return decision{}, false
	}
	d := r.decisions[r.next]
	r.next++
	return d, true
}

func (r *runState) pick(options []starlark.Value) (starlark.Value, error) {
	if d, ok := r.take(); ok {
		if d.isCache || d.branch >= len(options) {
			return nil, fmt.Errorf("script is not deterministic: replay diverged at option %d of %d", d.branch, len(options))
		}
		return options[d.branch], nil
	}
	if len(options) == 0 {
		return nil, errPruned
	}
	return nil, &suspendBranch{n: len(options)}
}

// choose(seq) nondeterministically returns one element of seq. An empty
// seq prunes the current path.
func (r *runState) choose(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &seq); err != nil {
		return nil, err
	}
	var options []starlark.Value
	it := seq.Iterate()
	defer it.Done()
	var v starlark.Value
	for it.Next(&v) {
		options = append(options, v)
	}
	return r.pick(options)
}

// amb(*args) is choose over its arguments.
func (r *runState) amb(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("amb: unexpected keyword arguments")
	}
	return r.pick(append([]starlark.Value(nil), args...))
}

// fail() prunes the current path.
func (r *runState) fail(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return nil, errPruned
}

// cache(name, fn) runs fn once and makes its value part of the durable
// checkpoint, so resumed and stolen runs reuse it instead of recomputing.
func (r *runState) cacheBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var fn starlark.Callable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &fn); err != nil {
		return nil, err
	}
	if d, ok := r.take(); ok {
		if !d.isCache {
			return nil, fmt.Errorf("script is not deterministic: replay expected cache %q, found a choice", name)
		}
		return toStarlark(d.value)
	}
	v, err := starlark.Call(thread, fn, nil, nil)
	if err != nil {
		return nil, err
	}
	g, err := toGo(v)
	if err != nil {
		return nil, fmt.Errorf("cache %q: %w", name, err)
	}
	return nil, &suspendCache{value: g}
}
