package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"pathwise/internal/modules/inference/domain"
	"pathwise/internal/modules/inference/dto"
	inferenceout "pathwise/internal/modules/inference/port/out"
)

// ProviderService manages plugin providers and completes prompts with the
// configured one, or the first enabled provider when none is named.
type ProviderService struct {
	store    inferenceout.ManifestStore
	host     inferenceout.Host
	provider string
}

func NewProviderService(store inferenceout.ManifestStore, host inferenceout.Host, provider string) *ProviderService {
	return &ProviderService{store: store, host: host, provider: provider}
}

func (s *ProviderService) List(ctx context.Context) ([]dto.ProviderInfo, error) {
	manifests, err := s.loadValidated(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ProviderInfo, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, dto.ProviderInfo{Name: m.Name, Version: m.Version, Enabled: m.Enabled, Binary: m.Binary, Models: append([]string(nil), m.Models...)})
	}
	return out, nil
}

func (s *ProviderService) Doctor(ctx context.Context) ([]dto.DoctorResult, error) {
	manifests, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]dto.DoctorResult, 0, len(manifests))
	for _, m := range manifests {
		result := dto.DoctorResult{Name: m.Name}
		if err := m.Validate(); err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}
		binaryOK := fileExists(m.Binary)
		result.BinaryReachable = binaryOK
		checksumOK := false
		if binaryOK {
			checksumOK = checksumMatches(m.Binary, m.SHA256) == nil
		}
		result.ChecksumValid = checksumOK
		if binaryOK && checksumOK && m.Enabled && s.host != nil {
			if err := s.host.CheckLifecycle(ctx, m); err != nil {
				result.Error = err.Error()
			} else {
				result.LifecycleOK = true
			}
		}
		if !binaryOK {
			result.Error = fmt.Sprintf("binary does not exist: %s", m.Binary)
		}
		if binaryOK && !checksumOK {
			result.Error = "checksum mismatch"
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *ProviderService) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	if err := req.Validate(); err != nil {
		return domain.Completion{}, err
	}
	manifest, err := s.runnableManifest(ctx)
	if err != nil {
		return domain.Completion{}, err
	}
	return s.host.Complete(ctx, manifest, req)
}

func (s *ProviderService) loadValidated(ctx context.Context) ([]domain.Manifest, error) {
	manifests, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	seenNames := map[string]struct{}{}
	for _, manifest := range manifests {
		if err := manifest.Validate(); err != nil {
			return nil, err
		}
		if _, ok := seenNames[manifest.Name]; ok {
			return nil, fmt.Errorf("duplicate provider name: %s", manifest.Name)
		}
		seenNames[manifest.Name] = struct{}{}
	}
	return manifests, nil
}

func (s *ProviderService) runnableManifest(ctx context.Context) (domain.Manifest, error) {
	if s.host == nil {
		return domain.Manifest{}, fmt.Errorf("%w: no provider host", domain.ErrProviderNotFound)
	}
	manifests, err := s.loadValidated(ctx)
	if err != nil {
		return domain.Manifest{}, err
	}
	manifest := domain.Manifest{}
	found := false
	for _, item := range manifests {
		if s.provider == "" && item.Enabled {
			manifest, found = item, true
			break
		}
		if item.Name == s.provider {
			manifest, found = item, true
			break
		}
	}
	if !found {
		if s.provider == "" {
			return domain.Manifest{}, fmt.Errorf("%w: no enabled provider", domain.ErrProviderNotFound)
		}
		return domain.Manifest{}, fmt.Errorf("%w: %q", domain.ErrProviderNotFound, s.provider)
	}
	if !manifest.Enabled {
		return domain.Manifest{}, fmt.Errorf("%w: %s", domain.ErrProviderDisabled, manifest.Name)
	}
	if err := checksumMatches(manifest.Binary, manifest.SHA256); err != nil {
		return domain.Manifest{}, err
	}
	return manifest, nil
}

func checksumMatches(path string, expected string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read provider binary: %w", err)
	}
	hash := sha256.Sum256(payload)
	actual := hex.EncodeToString(hash[:])
	if actual != expected {
		return fmt.Errorf("%w: %s", domain.ErrChecksumMismatch, filepath.Base(path))
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
