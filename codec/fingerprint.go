package codec

import (
	farm "github.com/dgryski/go-farm"

	"github.com/canopy-dev/canopy/checkpoint"
)

// Fingerprint is a 64-bit digest of an encoded workload. The supervisor
// uses fingerprints to detect the same workload being enqueued twice and
// to name workloads in debug logs.
type Fingerprint uint64

// WorkloadFingerprint hashes the canonical encoding of w.
func WorkloadFingerprint(w checkpoint.Workload) (Fingerprint, error) {
	data, err := EncodeWorkload(w)
	if err != nil {
		return 0, err
	}
	return Fingerprint(farm.Hash64(data)), nil
}
