package chain

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/shai-labs/voyager/internal/solana"
)

const geyserLatestBlockhashMethod = "/geyser.Geyser/GetLatestBlockhash"

// GrpcSource wraps a gRPC connection to a Yellowstone-style streaming
// source. Two calls are consumed: the standard health probe gating
// whether the source is preferred at all, and the geyser
// GetLatestBlockhash unary, spoken directly on the wire (the request is
// empty and the response carries three scalar fields, so no generated
// stubs are needed).
type GrpcSource struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
}

// DialGrpcSource connects to a Yellowstone-style gRPC endpoint.
// Connection errors are returned to the caller rather than retried
// here; the gRPC source is optional.
func DialGrpcSource(ctx context.Context, target string) (*GrpcSource, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("chain: dial grpc source %s: %w", target, err)
	}
	return &GrpcSource{conn: conn, health: grpc_health_v1.NewHealthClient(conn)}, nil
}

// IsLive reports whether the source currently answers SERVING.
func (s *GrpcSource) IsLive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := s.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return false
	}
	return resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING
}

// GetLatestBlockhash issues the geyser GetLatestBlockhash unary call.
func (s *GrpcSource) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) {
	var reply rawMessage
	err := s.conn.Invoke(ctx, geyserLatestBlockhashMethod, &rawMessage{}, &reply, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		return [32]byte{}, 0, fmt.Errorf("chain: grpc getLatestBlockhash: %w", err)
	}
	return parseLatestBlockhashReply(reply.data)
}

func (s *GrpcSource) Close() error {
	return s.conn.Close()
}

// rawMessage carries pre-encoded protobuf bytes through grpc's codec
// layer.
type rawMessage struct {
	data []byte
}

// rawCodec passes message bytes through untouched. Name reports
// "proto" so the request is indistinguishable on the wire from one
// sent by a generated client.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(*rawMessage)
	if !ok {
		return nil, fmt.Errorf("chain: rawCodec marshal of %T", v)
	}
	return m.data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(*rawMessage)
	if !ok {
		return fmt.Errorf("chain: rawCodec unmarshal into %T", v)
	}
	m.data = data
	return nil
}

func (rawCodec) Name() string { return "proto" }

// parseLatestBlockhashReply decodes the GetLatestBlockhashResponse
// wire bytes: slot (field 1, varint), blockhash (field 2, base58
// string), last_valid_block_height (field 3, varint). Unknown fields
// are skipped so a newer server doesn't break the client; the
// deprecated group wire types are rejected as malformed.
func parseLatestBlockhashReply(data []byte) ([32]byte, uint64, error) {
	var blockhash string
	var lastValidBlockHeight uint64

	for off := 0; off < len(data); {
		key, n := consumeVarint(data[off:])
		if n < 0 {
			return [32]byte{}, 0, errMalformedReply
		}
		off += n
		switch wireType := key & 7; wireType {
		case 0: // varint
			v, n := consumeVarint(data[off:])
			if n < 0 {
				return [32]byte{}, 0, errMalformedReply
			}
			off += n
			if key>>3 == 3 {
				lastValidBlockHeight = v
			}
		case 2: // length-delimited
			l, n := consumeVarint(data[off:])
			if n < 0 || off+n+int(l) > len(data) {
				return [32]byte{}, 0, errMalformedReply
			}
			off += n
			if key>>3 == 2 {
				blockhash = string(data[off : off+int(l)])
			}
			off += int(l)
		case 1: // 64-bit
			if off+8 > len(data) {
				return [32]byte{}, 0, errMalformedReply
			}
			off += 8
		case 5: // 32-bit
			if off+4 > len(data) {
				return [32]byte{}, 0, errMalformedReply
			}
			off += 4
		default:
			return [32]byte{}, 0, errMalformedReply
		}
	}

	if blockhash == "" {
		return [32]byte{}, 0, errMalformedReply
	}
	hash, err := solana.PubkeyFromBase58(blockhash)
	if err != nil {
		return [32]byte{}, 0, fmt.Errorf("chain: decode grpc blockhash: %w", err)
	}
	return [32]byte(hash), lastValidBlockHeight, nil
}

func consumeVarint(b []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i, c := range b {
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
		if shift > 63 {
			return 0, -1
		}
	}
	return 0, -1
}

var errMalformedReply = fmt.Errorf("chain: malformed grpc getLatestBlockhash reply")

// GatewayWithGrpcPreference composes an RPCGateway with a gRPC source:
// blockhash fetches go to the gRPC source while it reports healthy and
// fall back to JSON-RPC on any failure; every other gateway operation
// is served by the embedded RPCGateway.
type GatewayWithGrpcPreference struct {
	*RPCGateway
	grpcSource *GrpcSource
}

func NewGatewayWithGrpcPreference(rpc *RPCGateway, grpcSource *GrpcSource) *GatewayWithGrpcPreference {
	return &GatewayWithGrpcPreference{RPCGateway: rpc, grpcSource: grpcSource}
}

// GetLatestBlockhash prefers the gRPC source when it is live; a failed
// gRPC call degrades to the JSON-RPC path instead of failing the
// cycle.
func (g *GatewayWithGrpcPreference) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) {
	if g.PreferGrpc(ctx) {
		hash, lastValid, err := g.grpcSource.GetLatestBlockhash(ctx)
		if err == nil {
			return hash, lastValid, nil
		}
	}
	return g.RPCGateway.GetLatestBlockhash(ctx)
}

// PreferGrpc reports whether the configured gRPC source is live.
func (g *GatewayWithGrpcPreference) PreferGrpc(ctx context.Context) bool {
	return g.grpcSource != nil && g.grpcSource.IsLive(ctx)
}
