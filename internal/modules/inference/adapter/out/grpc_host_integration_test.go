package out_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	inferenceout "pathwise/internal/modules/inference/adapter/out"
	"pathwise/internal/modules/inference/domain"
)

const heuristicPrompt = `Recent actions, oldest first:
1. +0ms [medication-explorer] select-medication entity=medication:warfarin
2. +900ms [medication-explorer] view-adverse-effects entity=medication:warfarin
`

func TestGRPCHostIntegrationHeuristicProvider(t *testing.T) {
	binPath, checksum := buildHeuristicProvider(t)
	manifest := domain.Manifest{
		Name:    "heuristic",
		Version: "1.0.0",
		Binary:  binPath,
		SHA256:  checksum,
		Enabled: true,
		Models:  []string{"transition-v1"},
	}

	host := inferenceout.NewGRPCHost(nil)
	defer host.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := host.CheckLifecycle(ctx, manifest); err != nil {
		t.Fatalf("check lifecycle: %v", err)
	}
	metadata, err := host.GetMetadata(ctx, manifest)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if metadata.Name != "heuristic" || len(metadata.Models) == 0 {
		t.Fatalf("unexpected metadata: %+v", metadata)
	}

	for i := 0; i < 2; i++ {
		completion, err := host.Complete(ctx, manifest, domain.CompletionRequest{Prompt: heuristicPrompt})
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		var intent struct {
			Confidence       float64 `json:"confidence"`
			PredictedActions []struct {
				ActionType string `json:"actionType"`
			} `json:"predictedActions"`
		}
		if err := json.Unmarshal([]byte(completion.Text), &intent); err != nil {
			t.Fatalf("provider answer is not JSON: %v\n%s", err, completion.Text)
		}
		if len(intent.PredictedActions) == 0 || intent.PredictedActions[0].ActionType != "check-interactions" {
			t.Fatalf("unexpected intent: %s", completion.Text)
		}
		if completion.Model != "transition-v1" {
			t.Fatalf("unexpected model %q", completion.Model)
		}
	}
}

func buildHeuristicProvider(t *testing.T) (string, string) {
	t.Helper()
	tmp := t.TempDir()
	binPath := filepath.Join(tmp, "heuristic-provider")
	cmd := exec.Command("go", "build", "-o", binPath, "./plugins/heuristic")
	cmd.Dir = repositoryRoot(t)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build heuristic provider: %v\n%s", err, string(out))
	}
	payload, err := os.ReadFile(binPath)
	if err != nil {
		t.Fatalf("read built provider: %v", err)
	}
	hash := sha256.Sum256(payload)
	return binPath, hex.EncodeToString(hash[:])
}

func repositoryRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "../../../../../"))
}
