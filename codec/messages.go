package codec

import (
	"fmt"

	"github.com/shamaton/msgpack/v2"

	"github.com/canopy-dev/canopy/msg"
)

// envelope wraps a message body with a tag naming its type, so both
// directions of the protocol share one frame shape.
type envelope struct {
	Tag  string
	Body []byte
}

const (
	tagRequestProgressUpdate = "request-progress-update"
	tagRequestWorkloadSteal  = "request-workload-steal"
	tagStartWorkload         = "start-workload"
	tagQuitWorker            = "quit-worker"
	tagProgressUpdate        = "progress-update"
	tagStolenWorkload        = "stolen-workload"
	tagFinished              = "finished"
	tagFailed                = "failed"
	tagWorkerQuit            = "worker-quit"
)

type progressUpdateBody struct {
	Progress  []byte
	Remaining []byte
}

func progressUpdateToBody(u msg.ProgressUpdate) (progressUpdateBody, error) {
	p, err := EncodeProgress(u.Progress)
	if err != nil {
		return progressUpdateBody{}, err
	}
	w, err := EncodeWorkload(u.Remaining)
	if err != nil {
		return progressUpdateBody{}, err
	}
	return progressUpdateBody{Progress: p, Remaining: w}, nil
}

func progressUpdateFromBody(b progressUpdateBody) (msg.ProgressUpdate, error) {
	p, err := DecodeProgress(b.Progress)
	if err != nil {
		return msg.ProgressUpdate{}, err
	}
	w, err := DecodeWorkload(b.Remaining)
	if err != nil {
		return msg.ProgressUpdate{}, err
	}
	return msg.ProgressUpdate{Progress: p, Remaining: w}, nil
}

// EncodeToWorker serializes a supervisor-to-worker message.
func EncodeToWorker(m msg.ToWorker) ([]byte, error) {
	switch m := m.(type) {
	case msg.RequestProgressUpdate:
		return msgpack.Marshal(envelope{Tag: tagRequestProgressUpdate})
	case msg.RequestWorkloadSteal:
		return msgpack.Marshal(envelope{Tag: tagRequestWorkloadSteal})
	case msg.QuitWorker:
		return msgpack.Marshal(envelope{Tag: tagQuitWorker})
	case msg.StartWorkload:
		body, err := EncodeWorkload(m.Workload)
		if err != nil {
			return nil, err
		}
		return msgpack.Marshal(envelope{Tag: tagStartWorkload, Body: body})
	default:
		return nil, fmt.Errorf("unknown message %T", m)
	}
}

// DecodeToWorker deserializes a supervisor-to-worker message.
func DecodeToWorker(data []byte) (msg.ToWorker, error) {
	var e envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Tag {
	case tagRequestProgressUpdate:
		return msg.RequestProgressUpdate{}, nil
	case tagRequestWorkloadSteal:
		return msg.RequestWorkloadSteal{}, nil
	case tagQuitWorker:
		return msg.QuitWorker{}, nil
	case tagStartWorkload:
		w, err := DecodeWorkload(e.Body)
		if err != nil {
			return nil, err
		}
		return msg.StartWorkload{Workload: w}, nil
	default:
		return nil, fmt.Errorf("unknown message tag %q", e.Tag)
	}
}

type stolenWorkloadBody struct {
	Update   progressUpdateBody
	Workload []byte
}

// EncodeFromWorker serializes a worker-to-supervisor message.
func EncodeFromWorker(m msg.FromWorker) ([]byte, error) {
	switch m := m.(type) {
	case msg.WorkerQuitMessage:
		return msgpack.Marshal(envelope{Tag: tagWorkerQuit})
	case msg.FailedMessage:
		body, err := msgpack.Marshal(m.Message)
		if err != nil {
			return nil, err
		}
		return msgpack.Marshal(envelope{Tag: tagFailed, Body: body})
	case msg.FinishedMessage:
		body, err := EncodeProgress(m.Final)
		if err != nil {
			return nil, err
		}
		return msgpack.Marshal(envelope{Tag: tagFinished, Body: body})
	case msg.ProgressUpdateMessage:
		b, err := progressUpdateToBody(m.Update)
		if err != nil {
			return nil, err
		}
		body, err := msgpack.Marshal(b)
		if err != nil {
			return nil, err
		}
		return msgpack.Marshal(envelope{Tag: tagProgressUpdate, Body: body})
	case msg.StolenWorkloadMessage:
		if m.Stolen == nil {
			return msgpack.Marshal(envelope{Tag: tagStolenWorkload})
		}
		u, err := progressUpdateToBody(m.Stolen.Update)
		if err != nil {
			return nil, err
		}
		w, err := EncodeWorkload(m.Stolen.Workload)
		if err != nil {
			return nil, err
		}
		body, err := msgpack.Marshal(stolenWorkloadBody{Update: u, Workload: w})
		if err != nil {
			return nil, err
		}
		return msgpack.Marshal(envelope{Tag: tagStolenWorkload, Body: body})
	default:
		return nil, fmt.Errorf("unknown message %T", m)
	}
}

// DecodeFromWorker deserializes a worker-to-supervisor message.
func DecodeFromWorker(data []byte) (msg.FromWorker, error) {
	var e envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Tag {
	case tagWorkerQuit:
		return msg.WorkerQuitMessage{}, nil
	case tagFailed:
		var s string
		if err := msgpack.Unmarshal(e.Body, &s); err != nil {
			return nil, err
		}
		return msg.FailedMessage{Message: s}, nil
	case tagFinished:
		p, err := DecodeProgress(e.Body)
		if err != nil {
			return nil, err
		}
		return msg.FinishedMessage{Final: p}, nil
	case tagProgressUpdate:
		var b progressUpdateBody
		if err := msgpack.Unmarshal(e.Body, &b); err != nil {
			return nil, err
		}
		u, err := progressUpdateFromBody(b)
		if err != nil {
			return nil, err
		}
		return msg.ProgressUpdateMessage{Update: u}, nil
	case tagStolenWorkload:
		if len(e.Body) == 0 {
			return msg.StolenWorkloadMessage{}, nil
		}
		var b stolenWorkloadBody
		if err := msgpack.Unmarshal(e.Body, &b); err != nil {
			return nil, err
		}
		u, err := progressUpdateFromBody(b.Update)
		if err != nil {
			return nil, err
		}
		w, err := DecodeWorkload(b.Workload)
		if err != nil {
			return nil, err
		}
		return msg.StolenWorkloadMessage{Stolen: &msg.StolenWorkload{Update: u, Workload: w}}, nil
	default:
		return nil, fmt.Errorf("unknown message tag %q", e.Tag)
	}
}
