package egdb

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/eygilbert/egdb/cache"
	"github.com/eygilbert/egdb/catalog"
	"github.com/eygilbert/egdb/filecache"
	"github.com/eygilbert/egdb/verify"
)

// minCacheBufBytes floors the CCB ring's memory footprint (spec §4.6 step
// 6's "floor at MIN_CACHE_BUF_BYTES / CACHE_BLOCKSIZE"). The spec names the
// constant but doesn't pin a value; 16 MiB keeps a useful ring even when
// gopsutil reports very little headroom.
const minCacheBufBytes = 16 * 1024 * 1024

// ccbOverheadBytes approximates sizeof(cache.CCB) minus its Data field
// (ring links, owner bookkeeping, the Subindices array) for sizing the ring
// from remaining RAM, per spec §4.6 step 6.
const ccbOverheadBytes = 4*catalog.NumSubindices + 32

// Handle is an open database: the immutable catalog and file registry built
// at Open, plus the shared CCB ring guarded by its own mutex (cache.Manager).
// A Handle is safe for concurrent use by multiple lookup goroutines (spec
// §5): everything reachable from Lookup after Open returns is either
// immutable or behind cache.Manager's lock.
type Handle struct {
	indexOracle IndexOracle
	reverser    Reverser

	catalog  *catalog.Catalog
	registry *filecache.Registry
	cacheMgr *cache.Manager

	stats Stats
}

// Option configures a detail of Open that isn't part of spec §6's
// open-options string.
type Option func(*openConfig)

type openConfig struct {
	availableBytes    uint64
	overrideAvailable bool
	logger            *slog.Logger
}

// WithAvailableMemory overrides the RAM figure the autoload planner and CCB
// ring sizing use (spec §4.6 steps 3 and 6), instead of asking gopsutil.
// Useful under a memory cgroup gopsutil doesn't account for, and in tests
// that need a deterministic autoload decision — including zero, to force
// every file but the always-pinned ≤4-piece ones onto the cached path.
func WithAvailableMemory(bytes uint64) Option {
	return func(c *openConfig) { c.availableBytes = bytes; c.overrideAvailable = true }
}

// WithLogger directs every ambient log line this module and its
// sub-packages emit (open-time summaries, fadvise/preload warnings,
// byte-scan corruption reports) through logger instead of slog.Default().
// None of the sub-packages (catalog, cache, filecache, diskio) accept a
// logger of their own — they all call slog.Default() per spec §10's ambient
// stack, so the one place this module lets a caller redirect logging is
// here, by replacing the process-wide default (slog.SetDefault) when Open
// runs. The replacement is not undone when Open returns or the Handle is
// closed.
func WithLogger(logger *slog.Logger) Option {
	return func(c *openConfig) { c.logger = logger }
}

// Open discovers every legal on-disk slice file under dir, parses its index,
// decides an autoload set from available RAM, and sizes the CCB ring (spec
// §4.6). optionsString is the `;`-separated name=value string from spec §6.
// idx and rev supply the two oracle collaborators spec §1 places outside
// this package's scope.
func Open(dir, optionsString string, idx IndexOracle, rev Reverser, opts ...Option) (*Handle, error) {
	if idx == nil {
		return nil, fmt.Errorf("egdb: Open: IndexOracle must not be nil")
	}
	if rev == nil {
		return nil, fmt.Errorf("egdb: Open: Reverser must not be nil")
	}

	fcOpts, err := parseOptions(optionsString)
	if err != nil {
		return nil, fmt.Errorf("egdb: %w", err)
	}

	var cfg openConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger != nil {
		slog.SetDefault(cfg.logger)
	}
	available := cfg.availableBytes
	if !cfg.overrideAvailable {
		available = availableMemory()
	}

	cat := catalog.New()
	ringSize := computeRingSize(available)
	mgr, err := cache.NewManager(ringSize)
	if err != nil {
		return nil, fmt.Errorf("egdb: %w", err)
	}

	reg, err := filecache.Open(dir, cat, mgr, fcOpts, available)
	if err != nil {
		return nil, fmt.Errorf("egdb: %w", err)
	}

	slog.Info("egdb: opened database",
		"dir", dir,
		"files", reg.Len(),
		"ccb_ring_size", ringSize,
		"available_ram", humanize.Bytes(available),
	)

	return &Handle{
		indexOracle: idx,
		reverser:    rev,
		catalog:     cat,
		registry:    reg,
		cacheMgr:    mgr,
	}, nil
}

// Close releases every open file handle. Pinned files' handles are already
// closed (spec §4.6 step 4); this closes the rest.
func (h *Handle) Close() error {
	return h.registry.Close()
}

// Verify runs a CRC32 integrity pass over every registered file (spec §7),
// stopping early if ctx is canceled between files. expected is an optional
// filename-prefix-to-CRC32 map; pass nil to only compute and report
// checksums without comparing them against anything.
func (h *Handle) Verify(ctx context.Context, expected map[string]uint32) (verify.Report, error) {
	return verify.Verify(ctx, h.registry, expected)
}

func availableMemory() uint64 {
	const fallback = 512 * 1024 * 1024
	vm, err := mem.VirtualMemory()
	if err != nil {
		slog.Warn("egdb: reading available memory failed, using fallback budget", "error", err, "fallback", humanize.Bytes(fallback))
		return fallback
	}
	return vm.Available
}

// computeRingSize implements spec §4.6 step 6: size the ring from remaining
// RAM and CACHE_BLOCKSIZE+sizeof(CCB), floored at MIN_CACHE_BUF_BYTES /
// CACHE_BLOCKSIZE. The autoload planner already claimed its own share of
// availableBytes (filecache.Open is called with the same figure); this is a
// coarse sizing pass, not a precise accounting of what autoload left behind,
// since the two allocations are independent in practice (pinned images are
// read once and never touch the ring).
func computeRingSize(availableBytes uint64) int {
	budget := availableBytes / 4
	perCCB := uint64(catalog.CacheBlockSize + ccbOverheadBytes)
	n := int(budget / perCCB)
	if floor := minCacheBufBytes / catalog.CacheBlockSize; n < floor {
		n = floor
	}
	return n
}

// Options mirrors spec §6's open-options string: `name=value` pairs
// separated by `;`.
type options = filecache.Options

// parseOptions implements the grammar from spec §6. This is the one piece
// of the open-time configuration spec.md names as out of scope
// ("option-string parsing... specified only at its interface"); kept
// deliberately minimal.
func parseOptions(s string) (options, error) {
	opts := filecache.DefaultOptions()
	s = strings.TrimSpace(s)
	if s == "" {
		return opts, nil
	}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return opts, fmt.Errorf("bad option %q: expected name=value", part)
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		n, err := strconv.Atoi(val)
		if err != nil {
			return opts, fmt.Errorf("bad option %q: %w", part, err)
		}
		switch key {
		case "maxpieces":
			opts.MaxPieces = n
		case "maxkings_1side_8pcs":
			opts.MaxKings1Side8Pcs = n
		default:
			return opts, fmt.Errorf("unknown option %q", key)
		}
	}
	return opts, nil
}

// Stats mirrors the counters from original_source/egdb/egdb_intl.hpp's
// EGDB_STATS, kept alongside (not instead of) the prometheus counters in
// the metrics package: these are per-Handle and readable without scraping a
// registry, which is handy for tests and for a CLI's one-shot summary.
type Stats struct {
	DbRequests           atomic.Int64
	DbReturns            atomic.Int64
	DbNotPresentRequests atomic.Int64
	LruCacheHits         atomic.Int64
	LruCacheLoads        atomic.Int64
	AutoloadHits         atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats, safe to pass around.
type StatsSnapshot struct {
	DbRequests           int64
	DbReturns            int64
	DbNotPresentRequests int64
	LruCacheHits         int64
	LruCacheLoads        int64
	AutoloadHits         int64
}

// Stats returns a snapshot of h's lookup counters.
func (h *Handle) Stats() StatsSnapshot {
	return StatsSnapshot{
		DbRequests:           h.stats.DbRequests.Load(),
		DbReturns:            h.stats.DbReturns.Load(),
		DbNotPresentRequests: h.stats.DbNotPresentRequests.Load(),
		LruCacheHits:         h.stats.LruCacheHits.Load(),
		LruCacheLoads:        h.stats.LruCacheLoads.Load(),
		AutoloadHits:         h.stats.AutoloadHits.Load(),
	}
}

// ResetStats zeroes h's lookup counters. Callers must ensure no concurrent
// Lookup is in flight; this is a diagnostic reset, not a hot-path operation.
func (h *Handle) ResetStats() {
	h.stats.DbRequests.Store(0)
	h.stats.DbReturns.Store(0)
	h.stats.DbNotPresentRequests.Store(0)
	h.stats.LruCacheHits.Store(0)
	h.stats.LruCacheLoads.Store(0)
	h.stats.AutoloadHits.Store(0)
}
