package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCountersExposedOverHandler(t *testing.T) {
	c := New()
	c.AOTHit()
	c.AOTHit()
	c.AOTMiss()
	c.AreaDedupHit()
	c.DXMOverrun("wired")
	c.FileLockConflict()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	for _, want := range []string{
		"kernel_aot_hits_total 2",
		"kernel_aot_misses_total 1",
		"kernel_area_dedup_hits_total 1",
		`kernel_dxm_queue_overruns_total{queue="wired"} 1`,
		"kernel_filelock_conflicts_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q; got:\n%s", want, body)
		}
	}
}
