package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_BoothDimension(t *testing.T) {
	initOnce.Do(func() {})
	boothName = "lobby"
	defer func() { boothName = "" }()

	r := New("TestNamespace")
	if r.namespace != "TestNamespace" {
		t.Errorf("expected namespace TestNamespace, got %s", r.namespace)
	}
	if r.dimensions["Booth"] != "lobby" {
		t.Errorf("expected Booth dimension lobby, got %s", r.dimensions["Booth"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	boothName = ""

	rec := New(Namespace)
	rec.Dimension("Strategy", "interval")
	rec.Metric("SessionDurationMs", 9876.5, UnitMilliseconds)
	rec.Metric("FramesCaptured", 15, UnitCount)
	rec.Property("session_id", "abc-123")
	rec.Flush()

	output := buf.String()
	if strings.Count(output, "\n") != 1 {
		t.Fatalf("EMF must be a single line, got %q", output)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, output)
	}

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != Namespace {
		t.Errorf("expected namespace %s, got %v", Namespace, cw["Namespace"])
	}

	if doc["Strategy"] != "interval" {
		t.Errorf("expected Strategy=interval, got %v", doc["Strategy"])
	}
	if doc["SessionDurationMs"] != 9876.5 {
		t.Errorf("expected SessionDurationMs=9876.5, got %v", doc["SessionDurationMs"])
	}
	if doc["FramesCaptured"] != float64(15) {
		t.Errorf("expected FramesCaptured=15, got %v", doc["FramesCaptured"])
	}
	if doc["session_id"] != "abc-123" {
		t.Errorf("expected session_id=abc-123, got %v", doc["session_id"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	New("Test").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_Chaining(t *testing.T) {
	boothName = ""
	rec := New("Test").
		Dimension("Result", "complete").
		Metric("Duration", 100, UnitMilliseconds).
		Count("SessionResult").
		Property("id", "xyz")

	if rec.dimensions["Result"] != "complete" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Duration"] != float64(100) {
		t.Error("chaining Metric failed")
	}
	if m := rec.metrics["SessionResult"]; rec.values["SessionResult"] != float64(1) || m.Unit != UnitCount {
		t.Error("chaining Count failed")
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}

func TestOpenFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")

	for i := 0; i < 2; i++ {
		f, err := OpenFile(path)
		if err != nil {
			t.Fatalf("OpenFile: %v", err)
		}
		SetOutput(f)
		New("Test").Count("Runs").Flush()
		SetOutput(nil)
		f.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Errorf("expected 2 lines, got %d", got)
	}
}
