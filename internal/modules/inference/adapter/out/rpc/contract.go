package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	PluginMapKey      = "inference"
	serviceName       = "pathwise.inference.v1.InferenceProvider"
	jsonCodecName     = "json"
	methodGetMetadata = "/" + serviceName + "/GetMetadata"
	methodComplete    = "/" + serviceName + "/Complete"
)

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PATHWISE_INFERENCE_PLUGIN",
	MagicCookieValue: "pathwise",
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type Empty struct{}

type Metadata struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Models  []string `json:"models"`
}

type CompleteRequest struct {
	Prompt    string `json:"prompt"`
	Model     string `json:"model"`
	MaxTokens int32  `json:"max_tokens"`
}

type CompleteResponse struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	TokensUsed int32  `json:"tokens_used"`
}

type InferenceProviderServer interface {
	GetMetadata(ctx context.Context, in *Empty) (*Metadata, error)
	Complete(ctx context.Context, in *CompleteRequest) (*CompleteResponse, error)
}

type InferenceProviderClient interface {
	GetMetadata(ctx context.Context) (*Metadata, error)
	Complete(ctx context.Context, in *CompleteRequest) (*CompleteResponse, error)
}

type inferenceProviderClient struct {
	conn *grpc.ClientConn
}

func NewInferenceProviderClient(conn *grpc.ClientConn) InferenceProviderClient {
	return &inferenceProviderClient{conn: conn}
}

func (c *inferenceProviderClient) GetMetadata(ctx context.Context) (*Metadata, error) {
	out := &Metadata{}
	if err := c.conn.Invoke(ctx, methodGetMetadata, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inferenceProviderClient) Complete(ctx context.Context, in *CompleteRequest) (*CompleteResponse, error) {
	out := &CompleteResponse{}
	if err := c.conn.Invoke(ctx, methodComplete, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func RegisterInferenceProviderServer(server grpc.ServiceRegistrar, impl InferenceProviderServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*InferenceProviderServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "GetMetadata",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &Empty{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.GetMetadata(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetMetadata}
					handler := func(ctx context.Context, req any) (any, error) {
						empty, ok := req.(*Empty)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.GetMetadata(ctx, empty)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
			{
				MethodName: "Complete",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &CompleteRequest{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Complete(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodComplete}
					handler := func(ctx context.Context, req any) (any, error) {
						completeReq, ok := req.(*CompleteRequest)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Complete(ctx, completeReq)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "schemas/inference-rpc-v1.proto",
	}, impl)
}

type GRPCPlugin struct {
	plugin.NetRPCUnsupportedPlugin
	Impl InferenceProviderServer
}

func (p *GRPCPlugin) GRPCServer(_ *plugin.GRPCBroker, server *grpc.Server) error {
	RegisterInferenceProviderServer(server, p.Impl)
	return nil
}

func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *plugin.GRPCBroker, conn *grpc.ClientConn) (any, error) {
	return NewInferenceProviderClient(conn), nil
}

func PluginMap(impl InferenceProviderServer) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginMapKey: &GRPCPlugin{Impl: impl},
	}
}
