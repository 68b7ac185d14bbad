package query

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
)

const defaultCTEByteBudget = 100 * 1024 * 1024

// cteEntry holds a materialized CTE's rows either in memory or spilled
// to a temp file once the cache's byte budget is exceeded (spec
// §4.6.4).
type cteEntry struct {
	name      string
	rows      []Value // nil once spilled
	spillPath string
	size      int64
}

// CTECache is owned per query execution (spec §5 "Shared resources");
// callers must Close it when the query scope ends so its temp
// directory is removed.
type CTECache struct {
	budget  int64
	used    int64
	dir     string
	entries map[string]*cteEntry
}

// NewCTECache builds an empty cache bounded by budgetBytes (0 uses the
// spec default of 100 MiB).
func NewCTECache(budgetBytes int64) (*CTECache, error) {
	if budgetBytes <= 0 {
		budgetBytes = defaultCTEByteBudget
	}
	dir, err := os.MkdirTemp("", "warrendb-cte-*")
	if err != nil {
		return nil, kverrs.IO.Wrap(err)
	}
	return &CTECache{budget: budgetBytes, dir: dir, entries: map[string]*cteEntry{}}, nil
}

// Close removes the cache's temp directory and everything spilled into
// it.
func (c *CTECache) Close() error {
	if c.dir == "" {
		return nil
	}
	err := os.RemoveAll(c.dir)
	c.dir = ""
	if err != nil {
		return kverrs.IO.Wrap(err)
	}
	return nil
}

// estimateSize samples up to the first 10 rows' JSON length and
// extrapolates, per spec §4.6.4.
func estimateSize(rows []Value) int64 {
	if len(rows) == 0 {
		return 0
	}
	sampleN := len(rows)
	if sampleN > 10 {
		sampleN = 10
	}
	var sampleBytes int64
	for i := 0; i < sampleN; i++ {
		b, err := json.Marshal(rows[i].ToInterface())
		if err != nil {
			continue
		}
		sampleBytes += int64(len(b))
	}
	if sampleN == 0 {
		return 0
	}
	avg := sampleBytes / int64(sampleN)
	return avg * int64(len(rows))
}

// Put admits rows under name. If admitting rows (with a 25% safety
// margin) would exceed the budget, the cache spills the largest
// currently in-memory entry other than name itself (among entries of
// equal size, whichever map iteration reaches first) to a
// length-prefixed temp file to make room, per spec §4.6.4.
func (c *CTECache) Put(name string, rows []Value) error {
	size := estimateSize(rows)
	needed := int64(float64(size) * 1.25)

	for c.used+needed > c.budget {
		victim := c.largestInMemory(name)
		if victim == "" {
			break // nothing left to spill; admit anyway (small cache, oversized single CTE)
		}
		if err := c.spill(victim); err != nil {
			return err
		}
	}

	c.entries[name] = &cteEntry{name: name, rows: rows, size: size}
	c.used += size
	return nil
}

func (c *CTECache) largestInMemory(exclude string) string {
	best := ""
	var bestSize int64 = -1
	for name, e := range c.entries {
		if name == exclude || e.rows == nil {
			continue
		}
		if e.size > bestSize {
			bestSize = e.size
			best = name
		}
	}
	return best
}

func (c *CTECache) spill(name string) error {
	e, ok := c.entries[name]
	if !ok || e.rows == nil {
		return nil
	}
	path := filepath.Join(c.dir, name+".cte")
	f, err := os.Create(path)
	if err != nil {
		return kverrs.IO.Wrap(err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, row := range e.rows {
		b, merr := json.Marshal(row.ToInterface())
		if merr != nil {
			return kverrs.Internal.Wrap(merr)
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return kverrs.IO.Wrap(err)
		}
		if _, err := w.Write(b); err != nil {
			return kverrs.IO.Wrap(err)
		}
	}
	if err := w.Flush(); err != nil {
		return kverrs.IO.Wrap(err)
	}
	c.used -= e.size
	e.rows = nil
	e.spillPath = path
	return nil
}

// Get returns name's rows, reloading lazily from the spill file if
// needed.
func (c *CTECache) Get(name string) ([]Value, bool, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, false, nil
	}
	if e.rows != nil {
		return e.rows, true, nil
	}
	rows, err := c.reload(e)
	if err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

func (c *CTECache) reload(e *cteEntry) ([]Value, error) {
	f, err := os.Open(e.spillPath)
	if err != nil {
		return nil, kverrs.IO.Wrap(err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var rows []Value
	for {
		var lenBuf [4]byte
		if _, err := readFull(r, lenBuf[:]); err != nil {
			break
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := readFull(r, buf); err != nil {
			return nil, kverrs.IO.Wrap(err)
		}
		var raw interface{}
		if err := json.Unmarshal(buf, &raw); err != nil {
			return nil, kverrs.Internal.Wrap(err)
		}
		rows = append(rows, FromInterface(raw))
	}
	return rows, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
