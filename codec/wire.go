package codec

import (
	"fmt"

	"github.com/shamaton/msgpack/v2"

	"github.com/canopy-dev/canopy/checkpoint"
	"github.com/canopy-dev/canopy/mode"
	"github.com/canopy-dev/canopy/tree"
)

const (
	kindExplored uint8 = iota
	kindUnexplored
	kindCachePoint
	kindChoicePoint
)

type checkpointWire struct {
	Kind  uint8
	Bytes []byte
	Inner *checkpointWire
	Left  *checkpointWire
	Right *checkpointWire
}

func checkpointToWire(c checkpoint.Checkpoint) *checkpointWire {
	switch c := c.(type) {
	case *checkpoint.CachePoint:
		return &checkpointWire{Kind: kindCachePoint, Bytes: c.Bytes, Inner: checkpointToWire(c.Inner)}
	case *checkpoint.ChoicePoint:
		return &checkpointWire{Kind: kindChoicePoint, Left: checkpointToWire(c.Left), Right: checkpointToWire(c.Right)}
	default:
		if c == checkpoint.Explored {
			return &checkpointWire{Kind: kindExplored}
		}
		return &checkpointWire{Kind: kindUnexplored}
	}
}

func checkpointFromWire(w *checkpointWire) (checkpoint.Checkpoint, error) {
	if w == nil {
		return nil, fmt.Errorf("missing checkpoint node")
	}
	switch w.Kind {
	case kindExplored:
		return checkpoint.Explored, nil
	case kindUnexplored:
		return checkpoint.Unexplored, nil
	case kindCachePoint:
		inner, err := checkpointFromWire(w.Inner)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewCachePoint(w.Bytes, inner), nil
	case kindChoicePoint:
		left, err := checkpointFromWire(w.Left)
		if err != nil {
			return nil, err
		}
		right, err := checkpointFromWire(w.Right)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewChoicePoint(left, right), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint kind %d", w.Kind)
	}
}

// EncodeCheckpoint serializes a checkpoint.
func EncodeCheckpoint(c checkpoint.Checkpoint) ([]byte, error) {
	return msgpack.Marshal(checkpointToWire(c))
}

// DecodeCheckpoint deserializes a checkpoint, re-applying the
// simplifying constructors.
func DecodeCheckpoint(data []byte) (checkpoint.Checkpoint, error) {
	var w checkpointWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return checkpointFromWire(&w)
}

const (
	stepChoice uint8 = iota
	stepCache
)

type pathStepWire struct {
	Kind   uint8
	Branch uint8
	Bytes  []byte
}

type workloadWire struct {
	Path       []pathStepWire
	Checkpoint *checkpointWire
}

func pathToWire(p tree.Path) []pathStepWire {
	out := make([]pathStepWire, 0, len(p))
	for _, s := range p {
		switch s := s.(type) {
		case tree.ChoiceStep:
			out = append(out, pathStepWire{Kind: stepChoice, Branch: uint8(s.Branch)})
		case tree.CacheStep:
			out = append(out, pathStepWire{Kind: stepCache, Bytes: s.Bytes})
		}
	}
	return out
}

func pathFromWire(ws []pathStepWire) (tree.Path, error) {
	out := make(tree.Path, 0, len(ws))
	for _, w := range ws {
		switch w.Kind {
		case stepChoice:
			out = append(out, tree.ChoiceStep{Branch: tree.Branch(w.Branch)})
		case stepCache:
			out = append(out, tree.CacheStep{Bytes: w.Bytes})
		default:
			return nil, fmt.Errorf("unknown path step kind %d", w.Kind)
		}
	}
	return out, nil
}

// EncodeWorkload serializes a workload.
func EncodeWorkload(w checkpoint.Workload) ([]byte, error) {
	return msgpack.Marshal(workloadWire{Path: pathToWire(w.Path), Checkpoint: checkpointToWire(w.Checkpoint)})
}

// DecodeWorkload deserializes a workload.
func DecodeWorkload(data []byte) (checkpoint.Workload, error) {
	var w workloadWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return checkpoint.Workload{}, err
	}
	p, err := pathFromWire(w.Path)
	if err != nil {
		return checkpoint.Workload{}, err
	}
	cp, err := checkpointFromWire(w.Checkpoint)
	if err != nil {
		return checkpoint.Workload{}, err
	}
	return checkpoint.Workload{Path: p, Checkpoint: cp}, nil
}

const (
	resultNil uint8 = iota
	resultValue
	resultLocated
)

type resultWire struct {
	Kind     uint8
	Value    []byte
	Location string
}

type progressWire struct {
	Checkpoint *checkpointWire
	Result     resultWire
}

func resultToWire(r any) (resultWire, error) {
	switch r := r.(type) {
	case nil:
		return resultWire{Kind: resultNil}, nil
	case *mode.Located:
		if r == nil {
			return resultWire{Kind: resultNil}, nil
		}
		data, err := Values{}.Encode(r.Value)
		if err != nil {
			return resultWire{}, err
		}
		return resultWire{Kind: resultLocated, Value: data, Location: r.Where.String()}, nil
	default:
		data, err := Values{}.Encode(r)
		if err != nil {
			return resultWire{}, err
		}
		return resultWire{Kind: resultValue, Value: data}, nil
	}
}

func resultFromWire(w resultWire) (any, error) {
	switch w.Kind {
	case resultNil:
		return (*mode.Located)(nil), nil
	case resultValue:
		return Values{}.Decode(w.Value)
	case resultLocated:
		v, err := Values{}.Decode(w.Value)
		if err != nil {
			return nil, err
		}
		var branches []tree.Branch
		if w.Location != "·" {
			for i := 0; i < len(w.Location); i++ {
				if w.Location[i] == 'L' {
					branches = append(branches, tree.LeftBranch)
				} else {
					branches = append(branches, tree.RightBranch)
				}
			}
		}
		return &mode.Located{Where: tree.LocationFromBranching(branches), Value: v}, nil
	default:
		return nil, fmt.Errorf("unknown result kind %d", w.Kind)
	}
}

// EncodeProgress serializes a progress value.
func EncodeProgress(p mode.Progress) ([]byte, error) {
	r, err := resultToWire(p.Result)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(progressWire{Checkpoint: checkpointToWire(p.Checkpoint), Result: r})
}

// DecodeProgress deserializes a progress value.
func DecodeProgress(data []byte) (mode.Progress, error) {
	var w progressWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return mode.Progress{}, err
	}
	cp, err := checkpointFromWire(w.Checkpoint)
	if err != nil {
		return mode.Progress{}, err
	}
	r, err := resultFromWire(w.Result)
	if err != nil {
		return mode.Progress{}, err
	}
	return mode.Progress{Checkpoint: cp, Result: r}, nil
}
