package out

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	pluginrpc "pathwise/internal/modules/inference/adapter/out/rpc"
	"pathwise/internal/modules/inference/domain"
	apperrors "pathwise/internal/platform/errors"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

const (
	defaultStartTimeout = 3 * time.Second
	defaultCallTimeout  = 5 * time.Second
)

type liveProvider struct {
	client   *plugin.Client
	rpc      pluginrpc.InferenceProviderClient
	checksum string
}

// GRPCHost launches provider binaries over go-plugin. Lifecycle checks and
// metadata use a fresh process; completions reuse one process per provider
// until it exits or its checksum changes.
type GRPCHost struct {
	logger hclog.Logger

	mu   sync.Mutex
	live map[string]*liveProvider
}

func NewGRPCHost(logger hclog.Logger) *GRPCHost {
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{Output: io.Discard, Level: hclog.NoLevel})
	}
	return &GRPCHost{logger: logger, live: map[string]*liveProvider{}}
}

func (h *GRPCHost) CheckLifecycle(ctx context.Context, manifest domain.Manifest) error {
	client, closeFn, err := h.connect(manifest, defaultStartTimeout)
	if err != nil {
		return err
	}
	defer closeFn()

	callCtx, cancel := h.callContext(ctx, defaultCallTimeout)
	defer cancel()
	if _, err := client.GetMetadata(callCtx); err != nil {
		return fmt.Errorf("get metadata: %w", err)
	}
	return nil
}

func (h *GRPCHost) GetMetadata(ctx context.Context, manifest domain.Manifest) (domain.Metadata, error) {
	client, closeFn, err := h.connect(manifest, defaultStartTimeout)
	if err != nil {
		return domain.Metadata{}, err
	}
	defer closeFn()

	callCtx, cancel := h.callContext(ctx, defaultCallTimeout)
	defer cancel()

	meta, err := client.GetMetadata(callCtx)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("get metadata: %w", err)
	}
	return domain.Metadata{Name: meta.Name, Version: meta.Version, Models: meta.Models}, nil
}

func (h *GRPCHost) Complete(ctx context.Context, manifest domain.Manifest, req domain.CompletionRequest) (domain.Completion, error) {
	provider, err := h.acquire(manifest)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("%w: %w", apperrors.ErrInferenceUnavailable, err)
	}

	callCtx, cancel := h.callContext(ctx, manifest.CallTimeout(defaultCallTimeout))
	defer cancel()
	model := req.Model
	if model == "" {
		model = manifest.DefaultModel()
	}
	response, err := provider.rpc.Complete(callCtx, &pluginrpc.CompleteRequest{
		Prompt:    req.Prompt,
		Model:     model,
		MaxTokens: int32(req.MaxTokens),
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return domain.Completion{}, fmt.Errorf("%w: provider %s", apperrors.ErrInferenceTimeout, manifest.Name)
		}
		if ctx.Err() != nil {
			return domain.Completion{}, ctx.Err()
		}
		h.release(manifest.Name, provider)
		return domain.Completion{}, fmt.Errorf("complete with %s: %w: %w", manifest.Name, apperrors.ErrInferenceUnavailable, err)
	}
	if response.Model != "" {
		model = response.Model
	}
	return domain.Completion{Text: response.Text, Model: model, TokensUsed: int(response.TokensUsed)}, nil
}

// Close stops every provider process started for completions.
func (h *GRPCHost) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, provider := range h.live {
		provider.client.Kill()
		delete(h.live, name)
	}
}

func (h *GRPCHost) acquire(manifest domain.Manifest) (*liveProvider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if provider, ok := h.live[manifest.Name]; ok {
		if !provider.client.Exited() && provider.checksum == manifest.SHA256 {
			return provider, nil
		}
		provider.client.Kill()
		delete(h.live, manifest.Name)
	}
	client, rpcClient, err := h.start(manifest, defaultStartTimeout)
	if err != nil {
		return nil, err
	}
	provider := &liveProvider{client: client, rpc: rpcClient, checksum: manifest.SHA256}
	h.live[manifest.Name] = provider
	return provider, nil
}

func (h *GRPCHost) release(name string, provider *liveProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.live[name]; ok && current == provider && current.client.Exited() {
		delete(h.live, name)
	}
}

func (h *GRPCHost) connect(manifest domain.Manifest, startTimeout time.Duration) (pluginrpc.InferenceProviderClient, func(), error) {
	client, rpcClient, err := h.start(manifest, startTimeout)
	if err != nil {
		return nil, nil, err
	}
	return rpcClient, func() { client.Kill() }, nil
}

func (h *GRPCHost) start(manifest domain.Manifest, startTimeout time.Duration) (*plugin.Client, pluginrpc.InferenceProviderClient, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  pluginrpc.HandshakeConfig,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		Plugins:          pluginrpc.PluginMap(nil),
		Cmd:              exec.Command(manifest.Binary),
		Managed:          true,
		StartTimeout:     startTimeout,
		Logger:           h.logger.Named(manifest.Name),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("start provider client: %w", err)
	}
	raw, err := rpcClient.Dispense(pluginrpc.PluginMapKey)
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("dispense provider: %w", err)
	}
	typed, ok := raw.(pluginrpc.InferenceProviderClient)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("provider rpc client type mismatch")
	}
	return client, typed, nil
}

func (h *GRPCHost) callContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
