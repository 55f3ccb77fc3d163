package format

import (
	"testing"
	"time"
)

func TestBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0.00 KB"},
		{512, "0.50 KB"},
		{1536 * KB, "1.50 MB"},
		{2 * GB, "2.00 GB"},
		{4661224676, "4.34 GB"},
	}
	for _, tt := range tests {
		if got := Bytes(tt.in); got != tt.want {
			t.Errorf("Bytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSpeed(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00 KB/s"},
		{512 * KB, "512.00 KB/s"},
		{MB - 1, "1024.00 KB/s"},
		{MB, "1.00 MB/s"},
		{25 * MB, "25.00 MB/s"},
	}
	for _, tt := range tests {
		if got := Speed(tt.in); got != tt.want {
			t.Errorf("Speed(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGiBAndMiB(t *testing.T) {
	if got := GiB(3221225472); got != "3.00 GB" {
		t.Errorf("GiB = %q", got)
	}
	if got := MiB(50 * MB); got != "50.00 MB" {
		t.Errorf("MiB = %q", got)
	}
}

func TestCountdown(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		expires   time.Time
		wantText  string
		wantClass string
	}{
		{"unknown", time.Time{}, "Unknown", ClassUnknown},
		{"expired", now.Add(-time.Second), "Expired", ClassUrgent},
		{"exactly now", now, "Expired", ClassUrgent},
		{"days", now.Add(26*time.Hour + 3*time.Minute + 4*time.Second), "1d 02:03:04", ClassOK},
		{"hours", now.Add(3*time.Hour + 30*time.Minute), "03:30:00", ClassOK},
		{"one hour", now.Add(time.Hour + 5*time.Minute), "01:05:00", ClassWarn},
		{"half hour", now.Add(30 * time.Minute), "00:30:00", ClassWarn},
		{"ten minutes", now.Add(10*time.Minute + 59*time.Second), "00:10:59", ClassUrgent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, class := Countdown(tt.expires, now)
			if text != tt.wantText || class != tt.wantClass {
				t.Errorf("Countdown = %q/%q, want %q/%q", text, class, tt.wantText, tt.wantClass)
			}
		})
	}
}

func TestAgo(t *testing.T) {
	if got := Ago(time.Time{}); got != "never" {
		t.Errorf("Ago(zero) = %q", got)
	}
	if got := Ago(time.Now().Add(-3 * 24 * time.Hour)); got != "3 days ago" {
		t.Errorf("Ago = %q", got)
	}
}

func TestHuman(t *testing.T) {
	if got := Human(1024); got != "1.0 KiB" {
		t.Errorf("Human(1024) = %q", got)
	}
	if got := Human(-5); got != "0 B" {
		t.Errorf("Human(-5) = %q", got)
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(1500 * time.Millisecond); got != "1.5 seconds" {
		t.Errorf("Seconds = %q", got)
	}
}
