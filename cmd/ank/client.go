package main

import (
	"context"

	"github.com/cuemby/ankaios-core/internal/tlsconfig"
	"github.com/cuemby/ankaios-core/internal/transport"
	"github.com/cuemby/ankaios-core/pkg/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// connection is one short-lived CLI Exchange stream: the first
// envelope sent on it is a Request, which the server recognizes as a
// CLI connection (it is not an AgentHello) and assigns a connection id
// to for routing responses back.
type connection struct {
	conn   *grpc.ClientConn
	stream transport.ExchangeClientStream
	cancel context.CancelFunc
}

func dialFromFlags(cmd *cobra.Command) (*connection, error) {
	serverAddr, _ := cmd.Flags().GetString("server")
	certFile, _ := cmd.Flags().GetString("cert-file")
	keyFile, _ := cmd.Flags().GetString("key-file")
	caFile, _ := cmd.Flags().GetString("ca-file")

	var dialOpt grpc.DialOption
	if certFile == "" {
		dialOpt = grpc.WithTransportCredentials(insecure.NewCredentials())
	} else {
		tc, err := tlsconfig.ClientConfig(tlsconfig.Files{CertFile: certFile, KeyFile: keyFile, CAFile: caFile})
		if err != nil {
			return nil, err
		}
		dialOpt = grpc.WithTransportCredentials(credentials.NewTLS(tc))
	}

	conn, err := grpc.NewClient(serverAddr, dialOpt)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := transport.NewExchangeClient(conn)
	stream, err := client.Exchange(ctx, transport.DialOption())
	if err != nil {
		cancel()
		conn.Close()
		return nil, err
	}
	return &connection{conn: conn, stream: stream, cancel: cancel}, nil
}

func (c *connection) close() {
	_ = c.stream.Send(&transport.Envelope{Kind: transport.MsgGoodbye, Goodbye: &transport.Goodbye{}})
	c.cancel()
	c.conn.Close()
}

// send wraps req in a Request envelope, stamping a fresh request id
// (the server fills in the connection-scoped portion once it assigns
// one on the first request it sees from this stream).
func (c *connection) send(kind types.RequestKind, configure func(*types.Request)) (string, error) {
	requestUUID := uuid.New().String()
	req := types.Request{ID: types.NewCliRequestID("", requestUUID), Kind: kind}
	configure(&req)
	if err := c.stream.Send(&transport.Envelope{Kind: transport.MsgRequest, Request: &req}); err != nil {
		return "", err
	}
	return requestUUID, nil
}

// recvMatching reads responses off the stream until one carrying
// requestUUID arrives, discarding anything else (there is nothing else
// to discard on a freshly opened, single-request connection, but a
// subscribed get-workloads connection may interleave event pushes).
func (c *connection) recvMatching(requestUUID string) (types.Response, error) {
	for {
		env, err := c.stream.Recv()
		if err != nil {
			return types.Response{}, err
		}
		if env.Kind == transport.MsgResponse && env.Response != nil && env.Response.RequestID.UUID == requestUUID {
			return *env.Response, nil
		}
	}
}
