// Package deadline arms one-shot wake-ups at absolute wall-clock times.
//
// Two variants share one Service:
//
//   - Exact: a soft timer that never sleeps longer than MaxSleep before
//     re-reading the wall clock. Go timers run on the monotonic clock, which
//     on Linux stops while the machine is suspended; the periodic re-check
//     keeps a deadline from drifting by the length of the suspension.
//   - Inexact: entries are swept by a shared cron tick every Granularity.
//     Cheaper, coarser, and the fallback when exact scheduling is not allowed.
//
// Callers receive an opaque Handle and must Cancel it before arming a
// replacement. Firing callbacks run on their own goroutine.
package deadline
