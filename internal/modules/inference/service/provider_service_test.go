package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	inferenceout "pathwise/internal/modules/inference/adapter/out"
	"pathwise/internal/modules/inference/domain"
	"pathwise/internal/modules/inference/service"
)

type fakeStore struct {
	manifests []domain.Manifest
}

func (s fakeStore) Load(context.Context) ([]domain.Manifest, error) {
	return s.manifests, nil
}

type fakeHost struct {
	lifecycleErr error
	used         *string
}

func (h fakeHost) CheckLifecycle(context.Context, domain.Manifest) error { return h.lifecycleErr }
func (fakeHost) GetMetadata(context.Context, domain.Manifest) (domain.Metadata, error) {
	return domain.Metadata{Name: "fake", Version: "1"}, nil
}
func (h fakeHost) Complete(_ context.Context, manifest domain.Manifest, req domain.CompletionRequest) (domain.Completion, error) {
	if h.used != nil {
		*h.used = manifest.Name
	}
	return domain.Completion{Text: `{"confidence":0}`, Model: manifest.DefaultModel()}, nil
}

func manifestWithBinary(t *testing.T, name string, enabled bool) domain.Manifest {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), name+"-bin")
	if err := os.WriteFile(binPath, []byte("binary-"+name), 0o755); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	hash := sha256.Sum256([]byte("binary-" + name))
	return domain.Manifest{
		Name:    name,
		Version: "1.0.0",
		Binary:  binPath,
		SHA256:  hex.EncodeToString(hash[:]),
		Enabled: enabled,
		Models:  []string{name + "-model"},
	}
}

func TestDoctorDetectsChecksumMismatch(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	pluginsDir := filepath.Join(tmp, "plugins")
	if err := os.MkdirAll(pluginsDir, 0o755); err != nil {
		t.Fatalf("mkdir plugins: %v", err)
	}
	binPath := filepath.Join(tmp, "dummy-provider")
	if err := os.WriteFile(binPath, []byte("not-a-real-provider"), 0o755); err != nil {
		t.Fatalf("write provider binary: %v", err)
	}
	manifests := []domain.Manifest{{
		Name:    "demo",
		Version: "1.0.0",
		Binary:  binPath,
		SHA256:  strings.Repeat("0", 64),
		Enabled: true,
	}}
	raw, _ := json.Marshal(manifests)
	if err := os.WriteFile(filepath.Join(pluginsDir, "providers.json"), raw, 0o644); err != nil {
		t.Fatalf("write providers.json: %v", err)
	}

	svc := service.NewProviderService(inferenceout.NewFileManifestStore(tmp, ""), nil, "")
	results, err := svc.Doctor(context.Background())
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].ChecksumValid || !results[0].BinaryReachable {
		t.Fatalf("expected reachable binary with checksum mismatch, got %+v", results[0])
	}
}

func TestDoctorReportsLifecycleFailure(t *testing.T) {
	t.Parallel()
	manifest := manifestWithBinary(t, "demo", true)
	svc := service.NewProviderService(fakeStore{manifests: []domain.Manifest{manifest}}, fakeHost{lifecycleErr: errors.New("handshake failed")}, "")
	results, err := svc.Doctor(context.Background())
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	if results[0].LifecycleOK || results[0].Error != "handshake failed" || !results[0].ChecksumValid {
		t.Fatalf("unexpected result %+v", results[0])
	}
}

func TestCompleteRejectsDisabledProvider(t *testing.T) {
	t.Parallel()
	manifest := manifestWithBinary(t, "demo", false)
	svc := service.NewProviderService(fakeStore{manifests: []domain.Manifest{manifest}}, fakeHost{}, "demo")
	_, err := svc.Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if !errors.Is(err, domain.ErrProviderDisabled) {
		t.Fatalf("expected ErrProviderDisabled, got %v", err)
	}
}

func TestCompleteRejectsUnknownProvider(t *testing.T) {
	t.Parallel()
	svc := service.NewProviderService(fakeStore{manifests: []domain.Manifest{manifestWithBinary(t, "demo", true)}}, fakeHost{}, "missing")
	_, err := svc.Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestCompleteRejectsTamperedBinary(t *testing.T) {
	t.Parallel()
	manifest := manifestWithBinary(t, "demo", true)
	if err := os.WriteFile(manifest.Binary, []byte("tampered"), 0o755); err != nil {
		t.Fatalf("rewrite binary: %v", err)
	}
	svc := service.NewProviderService(fakeStore{manifests: []domain.Manifest{manifest}}, fakeHost{}, "")
	_, err := svc.Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if !errors.Is(err, domain.ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestCompletePicksFirstEnabledProvider(t *testing.T) {
	t.Parallel()
	used := ""
	manifests := []domain.Manifest{manifestWithBinary(t, "off", false), manifestWithBinary(t, "on", true)}
	svc := service.NewProviderService(fakeStore{manifests: manifests}, fakeHost{used: &used}, "")
	completion, err := svc.Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if used != "on" || completion.Model != "on-model" {
		t.Fatalf("expected enabled provider, used=%q model=%q", used, completion.Model)
	}
}

func TestListRejectsDuplicateNames(t *testing.T) {
	t.Parallel()
	m := manifestWithBinary(t, "demo", true)
	svc := service.NewProviderService(fakeStore{manifests: []domain.Manifest{m, m}}, fakeHost{}, "")
	if _, err := svc.List(context.Background()); err == nil {
		t.Fatalf("expected duplicate name error")
	}
}
