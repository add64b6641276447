package densevec

import (
	"runtime"

	"github.com/xDarkicex/libravdb-core/codec"
)

// isBigEndianHost reports whether the running process sits on a
// big-endian host, triggering the decode-once-into-cache path of spec.md
// §4.3 step 4.
func isBigEndianHost() bool { return codec.HostIsBigEndian() }

// multiMmapSupported reports whether the platform supports opening a
// second, independently-advised mapping of the same file (spec.md §4.3
// step 5). All platforms this core targets (darwin/linux/freebsd) support
// it; it is kept as a single decision point so a future constrained target
// can flip it without touching call sites.
func multiMmapSupported() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
		return true
	default:
		return false
	}
}

// asyncIOAvailable reports whether the io_uring-backed async read path
// (spec.md §9) can be used. This core has no io_uring submission/completion
// queue wired up, so every host — Linux included — takes the synchronous
// fallback with identical observable semantics (spec.md §4.3 "degrades to
// synchronous reads with identical observable semantics"); see DESIGN.md
// for the reasoning. HasAsyncReader always reports false until that path is
// implemented.
func asyncIOAvailable() bool { return false }
