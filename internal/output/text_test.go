package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, sampleReport()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"check_query_response_time",
		"threshold_ms=1000",
		"[WARNING] slow_query",
		"metric 1250.5 ms, threshold 1000",
		"rows_returned: 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWriteTextCombined(t *testing.T) {
	report := model.Merge("check_all", time.Now(), nil, []model.ProbeStatus{
		{Probe: "check_deadlock", OK: true, DurationMs: 3.2},
		{Probe: "check_file_size", ErrorKind: model.KindQueryTimeout, Error: "statement timeout"},
	})
	var buf bytes.Buffer
	if err := WriteText(&buf, report); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "no issues found") {
		t.Errorf("empty report text:\n%s", out)
	}
	if !strings.Contains(out, string(model.KindQueryTimeout)) || !strings.Contains(out, "check_file_size: statement timeout") {
		t.Errorf("probe failure not rendered:\n%s", out)
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{
		0:       "0",
		1000:    "1000",
		-150:    "-150",
		0.045:   "0.045",
		1250.50: "1250.5",
	}
	for in, want := range cases {
		if got := formatNumber(in); got != want {
			t.Errorf("formatNumber(%v) = %q, want %q", in, got, want)
		}
	}
}
