package transport

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name, matching what
// protoc-gen-go-grpc would emit from a transport.proto defining this
// single streaming method.
const ServiceName = "ankaios.Transport"

// ExchangeServer is implemented by whichever side accepts the stream
// (the server listens for agents and CLI connections; nothing stops an
// agent from also exposing it for symmetric tooling).
type ExchangeServer interface {
	Exchange(ExchangeStream) error
}

// ExchangeStream is the server-side view of one Exchange call.
type ExchangeStream interface {
	Send(*Envelope) error
	Recv() (*Envelope, error)
	grpc.ServerStream
}

type exchangeServerStream struct {
	grpc.ServerStream
}

func (x *exchangeServerStream) Send(m *Envelope) error {
	return x.ServerStream.SendMsg(m)
}

func (x *exchangeServerStream) Recv() (*Envelope, error) {
	m := new(Envelope)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func exchangeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ExchangeServer).Exchange(&exchangeServerStream{stream})
}

// ServiceDesc is the grpc.ServiceDesc a protoc-generated file would have
// produced for a service with one bidirectional streaming RPC named
// Exchange.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExchangeServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       exchangeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "transport.proto",
}

// RegisterExchangeServer registers srv to handle Exchange streams on s.
func RegisterExchangeServer(s *grpc.Server, srv ExchangeServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ExchangeClient opens Exchange streams against a connected peer.
type ExchangeClient interface {
	Exchange(ctx context.Context, opts ...grpc.CallOption) (ExchangeClientStream, error)
}

// ExchangeClientStream is the client-side view of one Exchange call.
type ExchangeClientStream interface {
	Send(*Envelope) error
	Recv() (*Envelope, error)
	grpc.ClientStream
}

type exchangeClient struct {
	cc grpc.ClientConnInterface
}

// NewExchangeClient wraps cc for Exchange calls.
func NewExchangeClient(cc grpc.ClientConnInterface) ExchangeClient {
	return &exchangeClient{cc: cc}
}

func (c *exchangeClient) Exchange(ctx context.Context, opts ...grpc.CallOption) (ExchangeClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Exchange", opts...)
	if err != nil {
		return nil, err
	}
	return &exchangeClientStream{stream}, nil
}

type exchangeClientStream struct {
	grpc.ClientStream
}

func (x *exchangeClientStream) Send(m *Envelope) error {
	return x.ClientStream.SendMsg(m)
}

func (x *exchangeClientStream) Recv() (*Envelope, error) {
	m := new(Envelope)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// DialOption returns the call option every Exchange call must pass so
// gRPC negotiates the gob codec registered in codec.go instead of its
// protobuf default.
func DialOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
