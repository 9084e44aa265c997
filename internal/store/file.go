package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/otflow-ml/otflow/internal/graph"
)

// SaveFile writes every solved edge of the graph to an .otf file:
//
//	magic (4) | version uint32 | checksum (32) | header length uint64 |
//	header JSON | payload
//
// The checksum covers header and payload.
func SaveFile(path string, g *graph.Graph) error {
	header := Header{
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
	}
	var payload []byte
	for _, p := range g.Edges() {
		c, err := g.Coupling(p.Source, p.Target)
		if err != nil {
			continue // unsolved edges are simply not persisted
		}
		kind, cfg, err := g.EdgeDetail(p.Source, p.Target)
		if err != nil {
			return err
		}
		out, err := g.Output(p.Source, p.Target)
		if err != nil {
			return err
		}

		data := encodeCoupling(c)
		header.Edges = append(header.Edges, EdgeRecord{
			Source: p.Source,
			Target: p.Target,
			Kind:   kind.String(),
			Rows:   c.Rows(),
			Cols:   c.Cols(),
			Rank:   c.Rank(),
			Offset: int64(len(payload)),
			Size:   int64(len(data)),
			Config: cfg,
			Output: out,
		})
		payload = append(payload, data...)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("store: marshal header: %w", err)
	}

	h := sha256.New()
	h.Write(headerJSON)
	h.Write(payload)
	sum := h.Sum(nil)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(MagicBytes); err != nil {
		return fmt.Errorf("store: write magic: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return fmt.Errorf("store: write version: %w", err)
	}
	if _, err := f.Write(sum); err != nil {
		return fmt.Errorf("store: write checksum: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("store: write header length: %w", err)
	}
	if _, err := f.Write(headerJSON); err != nil {
		return fmt.Errorf("store: write header: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("store: write payload: %w", err)
	}
	return f.Sync()
}

// LoadFile reads an .otf file and installs every persisted coupling on
// the matching edges of the graph. The graph must already carry the
// same topology; records without a matching edge are an error.
func LoadFile(path string, g *graph.Graph) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("store: read %s: %w", path, err)
	}
	const prefix = 4 + 4 + checksumSize + 8
	if len(raw) < prefix {
		return fmt.Errorf("%w: file truncated", ErrBadMagic)
	}
	if string(raw[:4]) != MagicBytes {
		return fmt.Errorf("%w: got %q", ErrBadMagic, raw[:4])
	}
	version := binary.LittleEndian.Uint32(raw[4:8])
	if version != FormatVersion {
		return fmt.Errorf("%w: %d", ErrVersion, version)
	}
	sum := raw[8 : 8+checksumSize]
	headerLen := binary.LittleEndian.Uint64(raw[8+checksumSize : prefix])
	if uint64(len(raw)-prefix) < headerLen {
		return fmt.Errorf("%w: header truncated", ErrBadMagic)
	}

	rest := raw[prefix:]
	headerJSON := rest[:headerLen]
	payload := rest[headerLen:]

	h := sha256.New()
	h.Write(headerJSON)
	h.Write(payload)
	if got := h.Sum(nil); string(got) != string(sum) {
		return ErrChecksum
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return fmt.Errorf("store: decode header: %w", err)
	}

	for _, rec := range header.Edges {
		if rec.Offset < 0 || rec.Offset+rec.Size > int64(len(payload)) {
			return fmt.Errorf("store: edge %s→%s payload out of range", rec.Source, rec.Target)
		}
		c, err := decodeCoupling(rec, payload[rec.Offset:rec.Offset+rec.Size])
		if err != nil {
			return err
		}
		if err := g.SetCoupling(rec.Source, rec.Target, c, rec.Output); err != nil {
			return fmt.Errorf("store: restore edge %s→%s: %w", rec.Source, rec.Target, err)
		}
	}
	return nil
}
