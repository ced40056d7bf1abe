package zerobus

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"

	logpkg "github.com/PortoLucas1/zerobus-station/pkg/log"
)

const ingestStreamMethod = "/zerobus.v1.IngestService/IngestStream"

var ingestStreamDesc = &grpc.StreamDesc{
	StreamName:    "IngestStream",
	ClientStreams: true,
	ServerStreams: true,
}

// ProviderOption configures a GRPCProvider.
type ProviderOption func(*GRPCProvider)

// WithDialOptions replaces the default dial options (TLS transport
// credentials). Tests use this to dial a bufconn listener.
func WithDialOptions(opts ...grpc.DialOption) ProviderOption {
	return func(p *GRPCProvider) { p.dialOpts = opts }
}

// GRPCProvider implements Provider over a shared client connection to the
// Zerobus ingest endpoint. One bidirectional stream is opened per
// CreateStream call.
type GRPCProvider struct {
	endpoint string
	logger   logpkg.Logger
	dialOpts []grpc.DialOption

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// NewGRPCProvider constructs a provider for the given endpoint. The
// connection is established lazily on the first CreateStream.
func NewGRPCProvider(endpoint string, logger logpkg.Logger, opts ...ProviderOption) *GRPCProvider {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	p := &GRPCProvider{
		endpoint: endpoint,
		logger:   logger.WithComponent("zerobus"),
		dialOpts: []grpc.DialOption{
			grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Close tears down the shared client connection.
func (p *GRPCProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *GRPCProvider) clientConn() (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return p.conn, nil
	}
	conn, err := grpc.NewClient(p.endpoint, p.dialOpts...)
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return conn, nil
}

// CreateStream opens an ingest stream for one table: header frame out,
// stream-id frame back. The returned stream owns its receive loop.
func (p *GRPCProvider) CreateStream(ctx context.Context, creds Credentials, table TableProperties, opts StreamOptions) (RecordStream, error) {
	if table.TableName == "" {
		return nil, errors.New("zerobus: table name required")
	}
	if table.Descriptor == nil {
		return nil, errors.New("zerobus: message descriptor required")
	}
	conn, err := p.clientConn()
	if err != nil {
		return nil, err
	}
	descBytes, err := proto.Marshal(protodesc.ToFileDescriptorProto(table.Descriptor.ParentFile()))
	if err != nil {
		return nil, err
	}

	open := func(ctx context.Context) (grpc.ClientStream, context.CancelFunc, string, error) {
		// The stream outlives the creation call; only Close cancels it.
		sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		sctx = metadata.AppendToOutgoingContext(sctx,
			"x-databricks-client-id", creds.ClientID,
			"x-databricks-client-secret", creds.ClientSecret,
		)
		cs, err := conn.NewStream(sctx, ingestStreamDesc, ingestStreamMethod, grpc.ForceCodec(rawCodec{}))
		if err != nil {
			cancel()
			return nil, nil, "", err
		}
		if err := cs.SendMsg(encodeHeaderFrame(table.TableName, opts.MaxInflightRecords, opts.Recovery, descBytes)); err != nil {
			cancel()
			return nil, nil, "", err
		}
		var buf []byte
		if err := cs.RecvMsg(&buf); err != nil {
			cancel()
			return nil, nil, "", err
		}
		id, err := decodeStreamFrame(buf)
		if err != nil {
			cancel()
			return nil, nil, "", err
		}
		return cs, cancel, id, nil
	}

	cs, cancel, id, err := open(ctx)
	if err != nil {
		return nil, err
	}
	st := newGRPCStream(id, table, opts, cs, cancel, open, p.logger)
	p.logger.Info("stream created",
		logpkg.Str("table", table.TableName),
		logpkg.Str("stream_id", id),
		logpkg.Int("max_inflight", opts.MaxInflightRecords),
		logpkg.Bool("recovery", opts.Recovery),
	)
	return st, nil
}
