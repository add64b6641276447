// Package telemetry implements the compatibility-telemetry descriptor from
// spec.md §4.7: a single process-wide counter bundle recording format
// versions (const) and legacy-fallback-load counts (monotonic). It follows
// the teacher's internal/obs/metrics.go style of wrapping
// prometheus.Counter via promauto, so the surrounding engine scrapes these
// the same way it already scrapes VectorInserts/SearchErrors, but counters
// are also readable in-process via atomic loads for tests and fixtures that
// don't want to talk to Prometheus.
package telemetry

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Format version constants, exported as stable identifiers per spec.md §6.
const (
	GraphLinksVersionPlain                  = 0
	GraphLinksVersionCompressed              = 1
	GraphLinksVersionCompressedLegacy        = 2
	GraphLinksVersionCompressedWithVectors   = 3
	GraphLinksVersionCompressedWithVectorsLE = 4 // CompressedWithVectorsLegacy

	CountsFileVersion = 1

	DenseVectorsMagic = "data"
	DeletedMagic      = "drop"
	CountsMagic       = "pttc"

	PointToValuesRangesStart = 4096
)

// counter is a monotonic, atomic-backed counter mirrored into a
// prometheus.Counter. Counters begin at zero at process start and never
// decrement, per spec.md §4.7.
type counter struct {
	v   atomic.Uint64
	pc  prometheus.Counter
}

func newCounter(reg prometheus.Registerer, name, help string) counter {
	return counter{
		pc: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: name,
			Help: help,
		}),
	}
}

// Inc increments the counter by one, updating both the atomic value read by
// Load and the Prometheus counter scraped by the surrounding engine.
func (c *counter) Inc() {
	c.v.Add(1)
	c.pc.Inc()
}

// Load returns the current value via atomic read, as spec.md §4.7 requires
// ("migration-hit counts (monotonic, read via atomic load)").
func (c *counter) Load() uint64 { return c.v.Load() }

// Compat is the compatibility-telemetry descriptor. One instance is shared
// process-wide by convention (see New's doc comment); every store that
// performs a legacy-format fallback load or migration increments the
// matching field.
type Compat struct {
	HNSWGraphLinksPlain                  counter
	HNSWGraphLinksCompressed              counter
	HNSWGraphLinksCompressedLegacy        counter
	HNSWGraphLinksCompressedWithVectors   counter
	HNSWGraphLinksCompressedWithVectorsLegacy counter

	QuantizationScalarU8Metadata counter
	QuantizationBinaryMetadata   counter

	GraphLinksPlainBEFallbackLoads                counter
	GraphLinksCompressedBEFallbackLoads           counter
	GraphLinksCompressedWithVectorsBEFallbackLoads counter
	SparseLegacyFilenameMigrations                 counter
	DenseVectorsBEFallbackLoads                    counter
	PointToValuesMigrations                        counter
	TextCountsLegacyMigrations                     counter
}

// New builds a Compat descriptor registering its counters against reg. Pass
// prometheus.NewRegistry() for an isolated instance (tests, multiple
// collections in one process) or prometheus.DefaultRegisterer for the
// teacher's original global-registry behavior.
func New(reg prometheus.Registerer) *Compat {
	return &Compat{
		HNSWGraphLinksPlain:                          newCounter(reg, "libravdb_core_hnsw_graph_links_plain", "Graph-links files opened in plain format."),
		HNSWGraphLinksCompressed:                      newCounter(reg, "libravdb_core_hnsw_graph_links_compressed", "Graph-links files opened in compressed format."),
		HNSWGraphLinksCompressedLegacy:                newCounter(reg, "libravdb_core_hnsw_graph_links_compressed_legacy", "Graph-links files opened in legacy compressed format."),
		HNSWGraphLinksCompressedWithVectors:           newCounter(reg, "libravdb_core_hnsw_graph_links_compressed_with_vectors", "Graph-links files opened with inlined vectors."),
		HNSWGraphLinksCompressedWithVectorsLegacy:     newCounter(reg, "libravdb_core_hnsw_graph_links_compressed_with_vectors_legacy", "Graph-links files opened in legacy compressed-with-vectors format."),
		QuantizationScalarU8Metadata:                  newCounter(reg, "libravdb_core_quantization_scalar_u8_metadata", "Scalar-u8 quantization metadata blocks observed."),
		QuantizationBinaryMetadata:                    newCounter(reg, "libravdb_core_quantization_binary_metadata", "Binary quantization metadata blocks observed."),
		GraphLinksPlainBEFallbackLoads:                newCounter(reg, "libravdb_core_graph_links_plain_be_fallback_loads_total", "Plain graph-links files decoded via the big-endian fallback path."),
		GraphLinksCompressedBEFallbackLoads:           newCounter(reg, "libravdb_core_graph_links_compressed_be_fallback_loads_total", "Compressed graph-links files decoded via the big-endian fallback path."),
		GraphLinksCompressedWithVectorsBEFallbackLoads: newCounter(reg, "libravdb_core_graph_links_compressed_with_vectors_be_fallback_loads_total", "Compressed-with-vectors graph-links files decoded via the big-endian fallback path."),
		SparseLegacyFilenameMigrations:                 newCounter(reg, "libravdb_core_sparse_legacy_filename_migrations_total", "Sparse index legacy filename migrations performed."),
		DenseVectorsBEFallbackLoads:                    newCounter(reg, "libravdb_core_dense_vectors_be_fallback_loads_total", "Dense-vector stores decoded into an in-memory cache on a big-endian host."),
		PointToValuesMigrations:                        newCounter(reg, "libravdb_core_point_to_values_migrations_total", "Point-to-values stores migrated in place from legacy big-endian encoding."),
		TextCountsLegacyMigrations:                      newCounter(reg, "libravdb_core_text_counts_legacy_migrations_total", "Text-index counts files migrated from the legacy native-endian format."),
	}
}
