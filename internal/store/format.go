// Package store persists solved couplings and their diagnostics so a
// graph can be reloaded without re-solving.
//
// Two layouts are provided: a single-file binary format (.otf) with a
// JSON header, raw little-endian float64 payload and SHA-256 checksum,
// and a SQLite store keyed by edge. Both round-trip couplings to
// bit-identical values.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/otflow-ml/otflow/internal/mat"
	"github.com/otflow-ml/otflow/internal/solver"
)

// Format constants for the .otf layout.
const (
	MagicBytes    = "OTFL"
	FormatVersion = 1
	checksumSize  = 32 // SHA-256
)

// Format errors.
var (
	// ErrBadMagic indicates the file is not an .otf file.
	ErrBadMagic = errors.New("store: bad magic bytes")

	// ErrVersion indicates an unsupported format version.
	ErrVersion = errors.New("store: unsupported format version")

	// ErrChecksum indicates payload corruption.
	ErrChecksum = errors.New("store: checksum mismatch")
)

// Header is the JSON header of an .otf file.
type Header struct {
	FormatVersion int          `json:"format_version"`
	CreatedAt     time.Time    `json:"created_at"`
	Edges         []EdgeRecord `json:"edges"`
}

// EdgeRecord describes one persisted coupling: its edge identity, the
// configuration that produced it, the solve diagnostics, and the
// payload location.
type EdgeRecord struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
	Rows   int    `json:"rows"`
	Cols   int    `json:"cols"`
	// Rank is -1 for dense payloads; for low-rank payloads the factors
	// Q, R, g are stored back to back.
	Rank   int            `json:"rank"`
	Offset int64          `json:"offset"`
	Size   int64          `json:"size"`
	Config solver.Config  `json:"config"`
	Output *solver.Output `json:"output,omitempty"`
}

// encodeCoupling flattens a coupling into little-endian float64 bytes.
func encodeCoupling(c *solver.Coupling) []byte {
	if !c.IsLowRank() {
		return encodeFloats(c.Materialize().Data())
	}
	q, r, g := c.Factors()
	buf := make([]byte, 0, 8*(len(q.Data())+len(r.Data())+len(g)))
	buf = append(buf, encodeFloats(q.Data())...)
	buf = append(buf, encodeFloats(r.Data())...)
	buf = append(buf, encodeFloats(g)...)
	return buf
}

// decodeCoupling rebuilds a coupling from its record and payload.
func decodeCoupling(rec EdgeRecord, payload []byte) (*solver.Coupling, error) {
	if rec.Rank > 0 {
		want := 8 * (rec.Rows*rec.Rank + rec.Cols*rec.Rank + rec.Rank)
		if len(payload) != want {
			return nil, fmt.Errorf("store: edge %s→%s payload %d bytes, want %d",
				rec.Source, rec.Target, len(payload), want)
		}
		qn := rec.Rows * rec.Rank
		rn := rec.Cols * rec.Rank
		q := mat.NewDenseData(rec.Rows, rec.Rank, decodeFloats(payload[:8*qn]))
		r := mat.NewDenseData(rec.Cols, rec.Rank, decodeFloats(payload[8*qn:8*(qn+rn)]))
		g := decodeFloats(payload[8*(qn+rn):])
		return solver.NewLowRankCoupling(q, r, g), nil
	}

	want := 8 * rec.Rows * rec.Cols
	if len(payload) != want {
		return nil, fmt.Errorf("store: edge %s→%s payload %d bytes, want %d",
			rec.Source, rec.Target, len(payload), want)
	}
	return solver.NewDenseCoupling(
		mat.NewDenseData(rec.Rows, rec.Cols, decodeFloats(payload)),
	), nil
}

func encodeFloats(x []float64) []byte {
	buf := make([]byte, 8*len(x))
	for i, v := range x {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeFloats(buf []byte) []float64 {
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return out
}
