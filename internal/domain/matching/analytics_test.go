package matching

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAnalyticsRecord_LatencyIsMilliseconds(t *testing.T) {
	rec := AnalyticsRecord{LatencyMS: (1234 * time.Millisecond).Milliseconds()}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := out["latency_ms"]; got != float64(1234) {
		t.Errorf("latency_ms = %v, want 1234", got)
	}
}
