package engine

import (
	"testing"
	"time"
)

func TestSignalChannelBackoff(t *testing.T) {
	want := map[int]time.Duration{
		1:  time.Second,
		2:  2 * time.Second,
		3:  4 * time.Second,
		6:  30 * time.Second,
		40: 30 * time.Second,
	}
	for retries, d := range want {
		sc := &signalChannel{retries: retries}
		if got := sc.backoff(); got != d {
			t.Fatalf("retries=%d: got %v, want %v", retries, got, d)
		}
	}
}
