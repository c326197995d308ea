// Command ankd is the Ankaios server daemon: it owns the desired state,
// the per-agent workload assignment, and the event/log-campaign
// subscriber stores, and exposes them over a gRPC Exchange stream to
// agents and CLI connections. Grounded on the teacher's cmd/warren
// cobra tree (persistent flags, version template, signal-based
// graceful shutdown) applied to a different daemon's responsibilities.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/cuemby/ankaios-core/internal/config"
	"github.com/cuemby/ankaios-core/internal/httpserver"
	"github.com/cuemby/ankaios-core/internal/logging"
	"github.com/cuemby/ankaios-core/internal/tlsconfig"
	"github.com/cuemby/ankaios-core/internal/transport"
	"github.com/cuemby/ankaios-core/pkg/dispatcher"
	"github.com/cuemby/ankaios-core/pkg/types"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ankd",
	Short:   "Ankaios server daemon",
	Long:    `ankd holds the cluster's desired state and dispatches workload assignments to connected agents.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ankd version %s\nCommit: %s\n", Version, Commit))
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().String("config", "", "Path to server config YAML (optional; defaults used when absent)")
	startCmd.Flags().String("listen-address", "", "Override the gRPC listen address from the config file")
	startCmd.Flags().String("http-address", "127.0.0.1:25552", "Address for /healthz, /readyz and /metrics")
	startCmd.Flags().String("log-level", "", "Override the config file's log level (debug, info, warn, error)")
	startCmd.Flags().Bool("log-json", false, "Force JSON log output regardless of config")
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server daemon",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	listenOverride, _ := cmd.Flags().GetString("listen-address")
	httpAddr, _ := cmd.Flags().GetString("http-address")
	logLevelOverride, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	cfg := config.Server{ListenAddress: "0.0.0.0:25551", LogLevel: "info"}
	if configPath != "" {
		loaded, err := config.LoadServer(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	if listenOverride != "" {
		cfg.ListenAddress = listenOverride
	}
	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}
	if logJSON {
		cfg.JSONLogs = true
	}

	logging.Init(logging.Config{Level: logging.Level(cfg.LogLevel), JSONOutput: cfg.JSONLogs})
	log := logging.WithComponent("ankd")

	fmt.Println("Starting Ankaios server...")
	fmt.Printf("  Listen address: %s\n", cfg.ListenAddress)
	fmt.Printf("  HTTP address: %s\n", httpAddr)
	if cfg.TLS.Enabled() {
		fmt.Println("  TLS: enabled (mutual)")
	} else {
		fmt.Println("  TLS: disabled")
	}

	disp := dispatcher.NewServerDispatcher()

	grpcServer, err := newGRPCServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure gRPC server: %v", err)
	}
	transport.RegisterExchangeServer(grpcServer, &exchangeHandler{disp: disp})

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %v", cfg.ListenAddress, err)
	}

	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			log.Error().Err(err).Msg("gRPC server stopped")
		}
	}()
	fmt.Printf("✓ gRPC server listening on %s\n", cfg.ListenAddress)

	httpSrv := httpserver.New(nil)
	go func() {
		if err := httpSrv.ListenAndServe(httpAddr); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()
	fmt.Printf("✓ Health/metrics server listening on %s\n", httpAddr)

	fmt.Println()
	fmt.Println("Server is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	grpcServer.GracefulStop()
	fmt.Println("✓ Shutdown complete")
	return nil
}

func newGRPCServer(cfg config.Server) (*grpc.Server, error) {
	if !cfg.TLS.Enabled() {
		return grpc.NewServer(), nil
	}
	tc, err := tlsconfig.ServerConfig(tlsconfig.Files{CertFile: cfg.TLS.CertFile, KeyFile: cfg.TLS.KeyFile, CAFile: cfg.TLS.CAFile})
	if err != nil {
		return nil, err
	}
	return grpc.NewServer(grpc.Creds(credentials.NewTLS(tc))), nil
}

// exchangeHandler adapts one transport.ExchangeStream to the
// ServerDispatcher: the first envelope received on the stream decides
// whether the peer is an agent or a CLI connection, everything after
// is routed to the matching dispatcher method until the stream ends.
type exchangeHandler struct {
	disp       *dispatcher.ServerDispatcher
	cliConnSeq atomic.Int64
}

func (h *exchangeHandler) Exchange(stream transport.ExchangeStream) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}

	if first.Kind == transport.MsgAgentHello && first.AgentHello != nil {
		return h.serveAgent(stream, first.AgentHello.AgentName)
	}
	return h.serveCli(stream, first)
}

func (h *exchangeHandler) serveAgent(stream transport.ExchangeStream, agentName string) error {
	outbound := h.disp.HandleAgentHello(agentName)
	go pumpOutbound(stream, outbound)
	defer h.disp.AgentGone(agentName)

	for {
		env, err := stream.Recv()
		if err != nil {
			return err
		}
		h.disp.HandleAgentMessage(agentName, env)
	}
}

func (h *exchangeHandler) serveCli(stream transport.ExchangeStream, first *transport.Envelope) error {
	cliConnection := fmt.Sprintf("cli-conn-%d", h.cliConnSeq.Add(1))
	outbound := h.disp.HandleCliHello(cliConnection)
	go pumpOutbound(stream, outbound)
	defer h.disp.CliGone(cliConnection)

	env := first
	for {
		if env.Kind == transport.MsgRequest && env.Request != nil {
			req := *env.Request
			req.ID = restampCliRequestID(req.ID, cliConnection)
			h.disp.HandleCliRequest(req)
		}

		next, err := stream.Recv()
		if err != nil {
			return err
		}
		env = next
	}
}

// restampCliRequestID rewrites a CLI-originated RequestID with the
// connection id the server just assigned, keeping the UUID the client
// generated so responses still correlate one-to-one. The CLI itself
// cannot know its connection id in advance, so it leaves CliConnection
// blank and the server fills it in here on every request it receives.
func restampCliRequestID(id types.RequestID, cliConnection string) types.RequestID {
	id.Kind = types.RequestIDCli
	id.CliConnection = cliConnection
	return id
}

// pumpOutbound drains the dispatcher's per-connection channel onto the
// stream. It exits once Send fails, which happens once gRPC tears the
// stream down after the owning Exchange call returns; the dispatcher
// never closes the channel itself, so Send failure is the only exit.
func pumpOutbound(stream transport.ExchangeStream, outbound <-chan *transport.Envelope) {
	for env := range outbound {
		if err := stream.Send(env); err != nil {
			return
		}
	}
}
