// Package format renders sizes, rates and durations for the control panel and CLI.
package format

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	KB = 1024
	MB = KB * 1024
	GB = MB * 1024
)

// Bytes formats a size with two decimals in the largest unit that keeps the
// value above one: "3.21 GB", "512.00 MB", "12.50 KB".
func Bytes(n int64) string {
	switch {
	case n > GB:
		return fmt.Sprintf("%.2f GB", float64(n)/GB)
	case n > MB:
		return fmt.Sprintf("%.2f MB", float64(n)/MB)
	default:
		return fmt.Sprintf("%.2f KB", float64(n)/KB)
	}
}

// GiB formats n in gigabytes regardless of magnitude, as used for VRAM columns.
func GiB(n int64) string {
	return fmt.Sprintf("%.2f GB", float64(n)/GB)
}

// MiB formats n in megabytes, as used by pull progress lines.
func MiB(n int64) string {
	return fmt.Sprintf("%.2f MB", float64(n)/MB)
}

// Speed formats a throughput in bytes per second. Rates below 1 MiB/s are
// shown in KB/s.
func Speed(bytesPerSec float64) string {
	if bytesPerSec >= MB {
		return fmt.Sprintf("%.2f MB/s", bytesPerSec/MB)
	}
	return fmt.Sprintf("%.2f KB/s", bytesPerSec/KB)
}

// Seconds formats d as "12.3 seconds".
func Seconds(d time.Duration) string {
	return fmt.Sprintf("%.1f seconds", d.Seconds())
}

// Human formats n with IEC units for terminal output ("3.2 GiB").
func Human(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// Ago formats t relative to now ("3 days ago"). The zero time renders as "never".
func Ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// Countdown colour classes.
const (
	ClassOK      = "ok"
	ClassWarn    = "warn"
	ClassUrgent  = "urgent"
	ClassUnknown = "unknown"
)

// Countdown renders the time left until expires as "[Nd ]HH:MM:SS" with a
// colour class: ok above one hour or with whole days left, warn above
// fifteen minutes, urgent otherwise. Past deadlines read "Expired"; a zero
// deadline reads "Unknown".
func Countdown(expires, now time.Time) (text, class string) {
	if expires.IsZero() {
		return "Unknown", ClassUnknown
	}
	left := expires.Sub(now)
	if left <= 0 {
		return "Expired", ClassUrgent
	}

	total := int64(left / time.Second)
	days := total / 86400
	rem := total % 86400
	hours := rem / 3600
	minutes := (rem % 3600) / 60
	seconds := rem % 60

	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, hours, minutes, seconds), ClassOK
	}
	text = fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	switch {
	case hours > 1:
		class = ClassOK
	case minutes > 15 || hours == 1:
		class = ClassWarn
	default:
		class = ClassUrgent
	}
	return text, class
}
