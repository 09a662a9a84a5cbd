package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeFixtures writes a small CSV (class 1 when x0 is large, a few missing
// cells) and a fast config into dir.
func writeFixtures(t *testing.T, dir string) (data, cfg string) {
	t.Helper()

	var sb strings.Builder
	sb.WriteString("x0,x1,label,y\n")
	for i := 0; i < 40; i++ {
		label := i % 2
		x0 := fmt.Sprintf("%g", float64(label)*4+float64(i%5)*0.1)
		if i%7 == 3 {
			x0 = "NA"
		}
		fmt.Fprintf(&sb, "%s,%g,%d,%g\n", x0, float64(i%3), label, float64(label)*10+float64(i%4))
	}
	data = filepath.Join(dir, "train.csv")
	if err := os.WriteFile(data, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg = filepath.Join(dir, "lce.toml")
	toml := "[estimator]\nn_iter = 2\nrandom_state = 5\n\n[search_space]\nn_estimators = [5]\nmax_depth = [2]\n"
	if err := os.WriteFile(cfg, []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	return data, cfg
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	root := New(&out, &logs).RootCommand()
	if !strings.Contains(strings.Join(args, " "), "--log-level") {
		args = append(args, "--log-level", "warn")
	}
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_ClassifierWorkflow(t *testing.T) {
	dir := t.TempDir()
	data, cfg := writeFixtures(t, dir)
	modelPath := filepath.Join(dir, "model.gob")

	// y は特徴量から外す
	trainCSV, err := os.ReadFile(data)
	if err != nil {
		t.Fatal(err)
	}
	var trimmed strings.Builder
	for _, line := range strings.Split(strings.TrimSpace(string(trainCSV)), "\n") {
		trimmed.WriteString(line[:strings.LastIndex(line, ",")] + "\n")
	}
	clsData := filepath.Join(dir, "cls.csv")
	if err := os.WriteFile(clsData, []byte(trimmed.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "fit", "--data", clsData, "--target", "label", "--config", cfg, "--model", modelPath); err != nil {
		t.Fatalf("fit: %v", err)
	}

	out, err := run(t, "predict", "--model", modelPath, "--data", clsData)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 41 || lines[0] != "label" {
		t.Errorf("predict wrote %d lines, header %q", len(lines), lines[0])
	}

	out, err = run(t, "predict", "--model", modelPath, "--data", clsData, "--proba")
	if err != nil {
		t.Fatalf("predict --proba: %v", err)
	}
	if !strings.HasPrefix(out, "p_0,p_1\n") {
		t.Errorf("unexpected probability header in %q", out[:min(len(out), 20)])
	}

	out, err = run(t, "score", "--model", modelPath, "--data", clsData)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !strings.HasPrefix(out, "accuracy\t") {
		t.Errorf("score output = %q", out)
	}

	out, err = run(t, "export", "--model", modelPath)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(out, "digraph LCE {") {
		t.Errorf("export did not print DOT: %q", out)
	}

	svgPath := filepath.Join(dir, "tree.svg")
	if _, err := run(t, "export", "--model", modelPath, "--svg", svgPath); err != nil {
		t.Fatalf("export --svg: %v", err)
	}
	svg, err := os.ReadFile(svgPath)
	if err != nil || !bytes.Contains(svg, []byte("<svg")) {
		t.Errorf("SVG not written: %v", err)
	}
}

func TestCLI_EnsembleRegressor(t *testing.T) {
	dir := t.TempDir()
	data, cfg := writeFixtures(t, dir)
	modelPath := filepath.Join(dir, "reg.gob")
	plotPath := filepath.Join(dir, "search.png")

	// label は回帰では特徴量として扱う
	_, err := run(t, "fit", "--data", data, "--target", "y", "--config", cfg, "--model", modelPath,
		"--regression", "--ensemble", "--seed", "3", "--search-plot", plotPath)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if info, err := os.Stat(plotPath); err != nil || info.Size() == 0 {
		t.Errorf("search plot not written: %v", err)
	}

	out, err := run(t, "score", "--model", modelPath, "--data", data)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !strings.HasPrefix(out, "r2\t") {
		t.Errorf("score output = %q", out)
	}

	if _, err := run(t, "predict", "--model", modelPath, "--data", data, "--proba"); err == nil {
		t.Error("--proba on a regressor should fail")
	}
	if _, err := run(t, "export", "--model", modelPath, "--tree", "99"); err == nil {
		t.Error("exporting a missing ensemble member should fail")
	}
}

func TestCLI_Errors(t *testing.T) {
	dir := t.TempDir()
	data, _ := writeFixtures(t, dir)

	tests := []struct {
		name string
		args []string
	}{
		{"fit without target", []string{"fit", "--data", data, "--model", filepath.Join(dir, "m.gob")}},
		{"fit with unknown target", []string{"fit", "--data", data, "--target", "nope", "--model", filepath.Join(dir, "m.gob")}},
		{"predict without model file", []string{"predict", "--model", filepath.Join(dir, "absent.gob"), "--data", data}},
		{"bad log level", []string{"export", "--model", "x", "--log-level", "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		ensemble, regression bool
		want                 string
	}{
		{false, false, kindTreeClassifier},
		{false, true, kindTreeRegressor},
		{true, false, kindClassifier},
		{true, true, kindRegressor},
	}
	for _, tt := range tests {
		if got := kindOf(tt.ensemble, tt.regression); got != tt.want {
			t.Errorf("kindOf(%v, %v) = %s, want %s", tt.ensemble, tt.regression, got, tt.want)
		}
	}
	if _, err := newEstimator("forest"); err == nil {
		t.Error("unknown kind accepted")
	}
}
