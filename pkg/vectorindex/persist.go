package vectorindex

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/types"
)

// header is the small fixed record written ahead of the graph blob
// (spec §4.3 "save/load").
type header struct {
	Dim            int32
	Metric         [8]byte
	M              int32
	EfConstruction int32
	EfSearch       int32
	Count          int32
	Version        int32
}

const persistVersion = 1

func metricBytes(m types.Metric) [8]byte {
	var b [8]byte
	copy(b[:], m)
	return b
}

// Save writes the index to path atomically: write path+".tmp", fsync,
// rename over path (spec §4.3).
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return kverrs.IO.Wrap(err)
	}
	f, err := os.Create(tmp)
	if err != nil {
		return kverrs.IO.Wrap(err)
	}
	w := bufio.NewWriter(f)

	h := header{
		Dim:            int32(idx.cfg.Dim),
		Metric:         metricBytes(idx.cfg.Metric),
		M:              int32(idx.cfg.M),
		EfConstruction: int32(idx.cfg.EfConstruction),
		EfSearch:       int32(idx.cfg.EfSearch),
		Count:          int32(len(idx.nodes)),
		Version:        persistVersion,
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		f.Close()
		return kverrs.IO.Wrap(err)
	}

	if err := binary.Write(w, binary.LittleEndian, int32(idx.maxLevel)); err != nil {
		f.Close()
		return kverrs.IO.Wrap(err)
	}
	entryID := int64(-1)
	if idx.hasEntry {
		entryID = int64(idx.entryPoint)
	}
	if err := binary.Write(w, binary.LittleEndian, entryID); err != nil {
		f.Close()
		return kverrs.IO.Wrap(err)
	}
	if err := binary.Write(w, binary.LittleEndian, idx.nextID); err != nil {
		f.Close()
		return kverrs.IO.Wrap(err)
	}

	for id, n := range idx.nodes {
		if err := writeNode(w, id, n, idx.idToPK[id], idx.dead[id]); err != nil {
			f.Close()
			return err
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return kverrs.IO.Wrap(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return kverrs.IO.Wrap(err)
	}
	if err := f.Close(); err != nil {
		return kverrs.IO.Wrap(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return kverrs.IO.Wrap(err)
	}
	return nil
}

func writeNode(w io.Writer, id uint32, n *node, pk string, dead bool) error {
	if err := binary.Write(w, binary.LittleEndian, id); err != nil {
		return kverrs.IO.Wrap(err)
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(n.vector))); err != nil {
		return kverrs.IO.Wrap(err)
	}
	if err := binary.Write(w, binary.LittleEndian, n.vector); err != nil {
		return kverrs.IO.Wrap(err)
	}
	pkBytes := []byte(pk)
	if err := binary.Write(w, binary.LittleEndian, int32(len(pkBytes))); err != nil {
		return kverrs.IO.Wrap(err)
	}
	if _, err := w.Write(pkBytes); err != nil {
		return kverrs.IO.Wrap(err)
	}
	deadByte := byte(0)
	if dead {
		deadByte = 1
	}
	if err := binary.Write(w, binary.LittleEndian, deadByte); err != nil {
		return kverrs.IO.Wrap(err)
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(n.links))); err != nil {
		return kverrs.IO.Wrap(err)
	}
	for _, layer := range n.links {
		if err := binary.Write(w, binary.LittleEndian, int32(len(layer))); err != nil {
			return kverrs.IO.Wrap(err)
		}
		if err := binary.Write(w, binary.LittleEndian, layer); err != nil {
			return kverrs.IO.Wrap(err)
		}
	}
	return nil
}

// Load reads a blob previously written by Save, validating that dim and
// metric match cfg (spec §4.3 "validates dim/metric match").
func Load(path string, cfg types.VectorConfig) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, kverrs.IO.Wrap(err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, kverrs.IO.Wrap(err)
	}
	if int(h.Dim) != cfg.Dim {
		return nil, kverrs.InvalidArgument.New("saved index dim %d does not match configured dim %d", h.Dim, cfg.Dim)
	}
	savedMetric := types.Metric(trimZero(h.Metric[:]))
	if savedMetric != cfg.Metric {
		return nil, kverrs.InvalidArgument.New("saved index metric %q does not match configured metric %q", savedMetric, cfg.Metric)
	}

	idx := New(cfg)

	var maxLevel int32
	if err := binary.Read(r, binary.LittleEndian, &maxLevel); err != nil {
		return nil, kverrs.IO.Wrap(err)
	}
	idx.maxLevel = int(maxLevel)

	var entryID int64
	if err := binary.Read(r, binary.LittleEndian, &entryID); err != nil {
		return nil, kverrs.IO.Wrap(err)
	}
	if entryID >= 0 {
		idx.entryPoint = uint32(entryID)
		idx.hasEntry = true
	}

	if err := binary.Read(r, binary.LittleEndian, &idx.nextID); err != nil {
		return nil, kverrs.IO.Wrap(err)
	}

	for i := int32(0); i < h.Count; i++ {
		id, n, pk, dead, err := readNode(r)
		if err != nil {
			return nil, err
		}
		idx.nodes[id] = n
		if !dead {
			idx.pkToID[pk] = id
			idx.idToPK[id] = pk
		} else {
			idx.dead[id] = true
		}
	}

	return idx, nil
}

func readNode(r io.Reader) (uint32, *node, string, bool, error) {
	var id uint32
	if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
		return 0, nil, "", false, kverrs.IO.Wrap(err)
	}
	var vecLen int32
	if err := binary.Read(r, binary.LittleEndian, &vecLen); err != nil {
		return 0, nil, "", false, kverrs.IO.Wrap(err)
	}
	vec := make([]float32, vecLen)
	if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
		return 0, nil, "", false, kverrs.IO.Wrap(err)
	}
	var pkLen int32
	if err := binary.Read(r, binary.LittleEndian, &pkLen); err != nil {
		return 0, nil, "", false, kverrs.IO.Wrap(err)
	}
	pkBytes := make([]byte, pkLen)
	if _, err := io.ReadFull(r, pkBytes); err != nil {
		return 0, nil, "", false, kverrs.IO.Wrap(err)
	}
	var deadByte byte
	if err := binary.Read(r, binary.LittleEndian, &deadByte); err != nil {
		return 0, nil, "", false, kverrs.IO.Wrap(err)
	}
	var numLayers int32
	if err := binary.Read(r, binary.LittleEndian, &numLayers); err != nil {
		return 0, nil, "", false, kverrs.IO.Wrap(err)
	}
	links := make([][]uint32, numLayers)
	for i := range links {
		var n int32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return 0, nil, "", false, kverrs.IO.Wrap(err)
		}
		layer := make([]uint32, n)
		if err := binary.Read(r, binary.LittleEndian, layer); err != nil {
			return 0, nil, "", false, kverrs.IO.Wrap(err)
		}
		links[i] = layer
	}
	return id, &node{id: id, vector: vec, links: links}, string(pkBytes), deadByte == 1, nil
}

func trimZero(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
