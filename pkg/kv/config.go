package kv

// Compression enumerates the codecs the backbone can apply to values.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionLZ4    Compression = "lz4"
	CompressionZstd   Compression = "zstd"
	CompressionSnappy Compression = "snappy"
	CompressionZlib   Compression = "zlib"
)

// Config is the tuning surface enumerated in spec §4.1/§6. Most knobs map
// onto a genuine LSM (RocksDB-shaped) store; against bbolt they are
// accepted for interface compatibility and documented per-field below,
// since the core's contract is the Store interface, not the backing
// engine.
type Config struct {
	// Path is the data file bbolt opens (spec "storage.db_path").
	Path string

	// MemtableSizeMB tunes the backing engine's in-memory write buffer.
	// No effect against bbolt (no memtable); kept for config parity.
	MemtableSizeMB int

	// BlockCacheSizeMB tunes the backing engine's block cache. No effect
	// against bbolt, which mmaps the whole file.
	BlockCacheSizeMB int

	// WALDir, if set, is where the write-ahead log lives. bbolt keeps
	// its own internal freelist/WAL-equivalent in the main file; this is
	// accepted but unused.
	WALDir string

	// DBPaths lists additional storage paths for tiered placement. No
	// effect against bbolt's single-file model.
	DBPaths []string

	// CompressionDefault is applied to values on Put (spec default: lz4
	// for hot levels).
	CompressionDefault Compression

	// CompressionBottommost is applied when Compact rewrites the whole
	// store (spec default: zstd for the bottommost level).
	CompressionBottommost Compression

	// BloomBitsPerKey sizes the in-memory existence filter (spec
	// default: 10).
	BloomBitsPerKey int

	// PartitionFilters is accepted and ignored: the store always keeps
	// one Bloom filter for the whole keyspace, with no per-prefix
	// partitions.
	PartitionFilters bool

	// DynamicLevelBytes and UseDirectIOForFlushAndCompaction describe
	// LSM-specific tuning with no bbolt analog; accepted and ignored.
	DynamicLevelBytes               bool
	UseDirectIOForFlushAndCompaction bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig(path string) Config {
	return Config{
		Path:                  path,
		CompressionDefault:    CompressionLZ4,
		CompressionBottommost: CompressionZstd,
		BloomBitsPerKey:       10,
		PartitionFilters:      true,
	}
}
