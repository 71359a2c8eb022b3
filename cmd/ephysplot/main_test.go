package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"ephyscore/internal/export"
	"ephyscore/internal/figures"
	"ephyscore/internal/infra/persistence/storetest"
)

// setupEnv points both stores at a temp dir and writes the fixture snapshot.
func setupEnv(t *testing.T) (snapshotPath, artifactRoot string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("EPHYSCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("EPHYSCORE_SQLITE_PATH", filepath.Join(dir, "ephys.db"))
	t.Setenv("EPHYSCORE_BLOB_DRIVER", "fs")
	artifactRoot = filepath.Join(dir, "artifacts")
	t.Setenv("EPHYSCORE_BLOB_FS_ROOT", artifactRoot)
	raw, err := json.Marshal(storetest.Snapshot())
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	snapshotPath = filepath.Join(dir, "snapshot.json")
	if err := os.WriteFile(snapshotPath, raw, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return snapshotPath, artifactRoot
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestImportRenderAndList(t *testing.T) {
	snapshot, _ := setupEnv(t)
	if code, out, errOut := run(t, "import", "-snapshot", snapshot); code != 0 || !strings.Contains(out, "imported") {
		t.Fatalf("import: code=%d out=%q err=%q", code, out, errOut)
	}

	metricsPath := filepath.Join(t.TempDir(), "metrics.prom")
	code, out, errOut := run(t, "render", "-figure", figures.NameAvgContraIpsiPSTH,
		"-insertions", strconv.Itoa(storetest.LeftInsertion), "-metrics-file", metricsPath)
	if code != 0 {
		t.Fatalf("render: code=%d err=%q", code, errOut)
	}
	var art export.Artifact
	if err := json.Unmarshal([]byte(out), &art); err != nil {
		t.Fatalf("decode artifact: %v (%q)", err, out)
	}
	wantImage, wantData := export.Keys(figures.NameAvgContraIpsiPSTH, art.ID)
	if art.Image.Key != wantImage || art.Data.Key != wantData {
		t.Fatalf("unexpected artifact %+v", art)
	}
	prom, err := os.ReadFile(metricsPath)
	if err != nil || !strings.Contains(string(prom), `operation="avg_contra_ipsi_psth",outcome="success"`) {
		t.Fatalf("metrics file: %v %q", err, prom)
	}

	code, out, _ = run(t, "list", "-figure", figures.NameAvgContraIpsiPSTH)
	if code != 0 || len(strings.Split(strings.TrimSpace(out), "\n")) != 2 {
		t.Fatalf("list: code=%d out=%q", code, out)
	}
}

func TestRenderToFile(t *testing.T) {
	snapshot, _ := setupEnv(t)
	if code, _, errOut := run(t, "import", "-snapshot", snapshot); code != 0 {
		t.Fatalf("import: %q", errOut)
	}
	t.Setenv("EPHYSCORE_FIGURE_WIDTH", "6")
	t.Setenv("EPHYSCORE_FIGURE_HEIGHT", "2")
	out := filepath.Join(t.TempDir(), "cd.png")
	if code, _, errOut := run(t, "render", "-figure", figures.NamePairedCodingDirection,
		"-groups", "alm-left,alm-right", "-window", "0.5,1.5", "-labels", "left,right", "-out", out); code != 0 {
		t.Fatalf("render: %q", errOut)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open png: %v", err)
	}
	defer func() { _ = f.Close() }()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 6*96 || b.Dy() != 2*96 {
		t.Fatalf("unexpected size %v", b)
	}
}

func TestRenderErrors(t *testing.T) {
	snapshot, _ := setupEnv(t)
	if code, _, _ := run(t, "import", "-snapshot", snapshot); code != 0 {
		t.Fatalf("import failed")
	}
	cases := []struct {
		name string
		args []string
		code int
	}{
		{"missing figure", []string{"render"}, 1},
		{"unknown figure", []string{"render", "-figure", "pie"}, 1},
		{"two insertions for insertion figure", []string{"render", "-figure", figures.NameClusteringQuality, "-insertions", "1,2"}, 1},
		{"bad insertion id", []string{"render", "-figure", figures.NameClusteringQuality, "-insertions", "x"}, 1},
		{"paired without window", []string{"render", "-figure", figures.NamePairedCodingDirection, "-groups", "a,b"}, 1},
		{"coding direction without group", []string{"render", "-figure", figures.NameCodingDirection}, 1},
		{"unknown flag", []string{"render", "-nope"}, 2},
		{"stray argument", []string{"list", "extra"}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code, _, errOut := run(t, tc.args...); code != tc.code {
				t.Fatalf("expected exit %d, got %d (%s)", tc.code, code, errOut)
			}
		})
	}
}

func TestImportErrors(t *testing.T) {
	setupEnv(t)
	if code, _, _ := run(t, "import"); code != 2 {
		t.Fatalf("expected usage error without -snapshot, got %d", code)
	}
	if code, _, _ := run(t, "import", "-snapshot", filepath.Join(t.TempDir(), "missing.json")); code != 1 {
		t.Fatalf("expected failure for missing file, got %d", code)
	}
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if code, _, _ := run(t, "import", "-snapshot", bad); code != 1 {
		t.Fatalf("expected failure for malformed snapshot, got %d", code)
	}
}

func TestFiguresAndUsage(t *testing.T) {
	code, out, _ := run(t, "figures")
	if code != 0 || len(strings.Fields(out)) != len(figures.Names) {
		t.Fatalf("figures: code=%d out=%q", code, out)
	}
	if code, _, _ := run(t); code != 2 {
		t.Fatalf("expected usage exit without command")
	}
	if code, _, _ := run(t, "frobnicate"); code != 2 {
		t.Fatalf("expected usage exit for unknown command")
	}
	if code, out, _ := run(t, "help"); code != 0 || !strings.Contains(out, "usage") {
		t.Fatalf("help: %d %q", code, out)
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	var codes []int
	old := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	defer func() { exitFunc = old }()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"ephysplot", "figures"}
	main()
	os.Args = []string{"ephysplot", "bogus"}
	main()
	if len(codes) != 2 || codes[0] != 0 || codes[1] != 2 {
		t.Fatalf("unexpected exit codes %v", codes)
	}
}
