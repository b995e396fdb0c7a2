package semantic

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"novabot/internal/domain"
)

// Persisted state is a pair of artifacts: a binary vector blob and a
// JSON item list. The two are only meaningful together, so a failure
// loading either discards both and starts fresh.

var indexMagic = [4]byte{'N', 'V', 'I', 'X'}

// persist writes both artifacts. Callers hold the index lock. Failures
// are logged, not returned: the in-memory state stays authoritative and
// the next successful write repairs the files.
func (x *Index) persist() {
	if x.indexPath == "" || x.itemsPath == "" {
		return
	}
	if err := x.writeVectors(); err != nil {
		x.logger.Warn("persist vector index failed", "path", x.indexPath, "error", err)
		return
	}
	if err := x.writeItems(); err != nil {
		x.logger.Warn("persist memory items failed", "path", x.itemsPath, "error", err)
	}
}

func (x *Index) writeVectors() error {
	if err := os.MkdirAll(filepath.Dir(x.indexPath), 0o755); err != nil {
		return err
	}
	buf := make([]byte, 0, 12+len(x.flat.vectors)*x.flat.dim*4)
	buf = append(buf, indexMagic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(x.flat.dim))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(x.flat.vectors)))
	for _, vec := range x.flat.vectors {
		for _, v := range vec {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return os.WriteFile(x.indexPath, buf, 0o644)
}

func (x *Index) writeItems() error {
	if err := os.MkdirAll(filepath.Dir(x.itemsPath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(x.items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(x.itemsPath, data, 0o644)
}

// load restores both artifacts. Any inconsistency between them, or any
// read failure, leaves the index empty.
func (x *Index) load() {
	if x.indexPath == "" || x.itemsPath == "" {
		return
	}
	if _, err := os.Stat(x.indexPath); err != nil {
		return
	}

	flat, err := readVectors(x.indexPath, x.flat.dim)
	if err != nil {
		x.logger.Warn("discarding persisted memory state", "error", err)
		return
	}
	items, err := readItems(x.itemsPath)
	if err != nil {
		x.logger.Warn("discarding persisted memory state", "error", err)
		return
	}
	if len(items) != flat.len() {
		x.logger.Warn("discarding persisted memory state",
			"error", fmt.Sprintf("index holds %d vectors but item list has %d entries", flat.len(), len(items)))
		return
	}

	x.flat = flat
	x.items = items
	x.logger.Info("memory index loaded", "memories", len(items), "dimension", flat.dim)
}

func readVectors(path string, wantDim int) (*flatIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 12 || [4]byte(data[:4]) != indexMagic {
		return nil, fmt.Errorf("%s is not a vector index file", path)
	}
	dim := int(binary.LittleEndian.Uint32(data[4:8]))
	count := int(binary.LittleEndian.Uint32(data[8:12]))
	if dim != wantDim {
		return nil, fmt.Errorf("persisted index has dimension %d, embedder has %d", dim, wantDim)
	}
	if len(data) != 12+count*dim*4 {
		return nil, fmt.Errorf("%s is truncated", path)
	}

	flat := newFlatIndex(dim)
	off := 12
	for i := 0; i < count; i++ {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		flat.vectors = append(flat.vectors, vec)
	}
	return flat, nil
}

func readItems(path string) ([]domain.MemoryItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []domain.MemoryItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return items, nil
}
