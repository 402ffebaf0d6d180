package repository

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mount_modeling/internal/models"
)

func TestResultFile_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2026-03-01_base.dat")
	in := sampleRun().Results

	if err := WriteResultFile(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadResultFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("want %d rows, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("row %d: want %+v, got %+v", i, in[i], out[i])
		}
	}
}

func TestDecodeResults_MissingSolvedColumn(t *testing.T) {
	doc := `{"RaJNow":[1.0],"DecJNow":[2.0],"DecJNowSolved":[2.1],"Pierside":["W"],"LocalSiderealTime":[3.0]}`
	_, err := DecodeResults(strings.NewReader(doc))
	if !errors.Is(err, ErrMissingColumn) || !strings.Contains(err.Error(), "RaJNowSolved") {
		t.Fatalf("expected missing RaJNowSolved, got %v", err)
	}
}

func TestDecodeResults_RaggedColumns(t *testing.T) {
	doc := `{"RaJNow":[1.0,1.5],"DecJNow":[2.0],"RaJNowSolved":[1.1,1.6],"DecJNowSolved":[2.1,2.2],"Pierside":["W","E"],"LocalSiderealTime":[3.0,3.1]}`
	if _, err := DecodeResults(strings.NewReader(doc)); !errors.Is(err, ErrRaggedColumns) {
		t.Fatalf("expected ErrRaggedColumns, got %v", err)
	}
}

func TestDecodeResults_MinimalColumns(t *testing.T) {
	doc := `{"RaJNow":[1.0],"DecJNow":[-2.0],"RaJNowSolved":[1.1],"DecJNowSolved":[-2.1],"Pierside":["E"],"LocalSiderealTime":[3.0]}`
	out, err := DecodeResults(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := models.PointResult{RaJNow: 1, DecJNow: -2, RaJNowSolved: 1.1, DecJNowSolved: -2.1, Pierside: "E", LocalSiderealTime: 3}
	if len(out) != 1 || out[0] != want {
		t.Fatalf("got %+v", out)
	}
}

func TestTargetPoints_DefaultsAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.toml")
	body := `
[[points]]
azimuth = 30.0
altitude = 25.0

[[points]]
azimuth = 150.0
altitude = 40.0
active = false
solve = false
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	points, err := LoadTargetPoints(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []models.TargetPoint{
		{Azimuth: 30, Altitude: 25, Active: true, Solve: true},
		{Azimuth: 150, Altitude: 40, Active: false, Solve: false},
	}
	if len(points) != 2 || points[0] != want[0] || points[1] != want[1] {
		t.Fatalf("got %+v", points)
	}

	points[0].Active = false
	out := filepath.Join(dir, "saved", "points.toml")
	if err := SaveTargetPoints(out, points); err != nil {
		t.Fatalf("save: %v", err)
	}
	again, err := LoadTargetPoints(out)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again[0].Active || !again[0].Solve {
		t.Fatalf("flags not kept: %+v", again[0])
	}
}

func TestTargetPoints_OutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.toml")
	if err := os.WriteFile(path, []byte("[[points]]\nazimuth = 400.0\naltitude = 20.0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTargetPoints(path); err == nil {
		t.Fatal("expected range error")
	}
}
