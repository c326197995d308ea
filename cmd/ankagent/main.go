// Command ankagent is the Ankaios agent daemon: it dials the server's
// Exchange stream, announces itself with AgentHello, and drives one
// RuntimeManager from the resulting dispatcher loop until the process
// is signalled to stop. Grounded on the teacher's cmd/warren
// workerStartCmd (embedded dependency startup, resource/flag parsing,
// signal-based graceful shutdown) applied to a dialing rather than a
// listening daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/ankaios-core/internal/config"
	"github.com/cuemby/ankaios-core/internal/httpserver"
	"github.com/cuemby/ankaios-core/internal/logging"
	"github.com/cuemby/ankaios-core/internal/tlsconfig"
	"github.com/cuemby/ankaios-core/internal/transport"
	"github.com/cuemby/ankaios-core/pkg/dispatcher"
	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/runtime"
	"github.com/cuemby/ankaios-core/pkg/runtimemanager"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
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
	Use:     "ankagent",
	Short:   "Ankaios agent daemon",
	Long:    `ankagent connects to an ankd server and runs the workloads it assigns to this agent.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ankagent version %s\nCommit: %s\n", Version, Commit))
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().String("config", "", "Path to agent config YAML (optional; defaults used when absent)")
	startCmd.Flags().String("name", "", "Override the agent name from the config file")
	startCmd.Flags().String("server", "", "Override the server gRPC address from the config file")
	startCmd.Flags().String("http-address", "127.0.0.1:25553", "Address for /healthz, /readyz and /metrics")
	startCmd.Flags().String("containerd-socket", "/run/containerd/containerd.sock", "containerd socket path")
	startCmd.Flags().String("log-level", "", "Override the config file's log level (debug, info, warn, error)")
	startCmd.Flags().Bool("log-json", false, "Force JSON log output regardless of config")
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the agent daemon",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	nameOverride, _ := cmd.Flags().GetString("name")
	serverOverride, _ := cmd.Flags().GetString("server")
	httpAddr, _ := cmd.Flags().GetString("http-address")
	containerdSocket, _ := cmd.Flags().GetString("containerd-socket")
	logLevelOverride, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	cfg := config.Agent{ServerAddress: "127.0.0.1:25551", LogLevel: "info", RunFolder: "/run/ankagent"}
	if configPath != "" {
		loaded, err := config.LoadAgent(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	if nameOverride != "" {
		cfg.AgentName = nameOverride
	}
	if cfg.AgentName == "" {
		return fmt.Errorf("agent name is required (set it in the config file or pass --name)")
	}
	if serverOverride != "" {
		cfg.ServerAddress = serverOverride
	}
	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}
	if logJSON {
		cfg.JSONLogs = true
	}

	logging.Init(logging.Config{Level: logging.Level(cfg.LogLevel), JSONOutput: cfg.JSONLogs})
	log := logging.WithAgent(cfg.AgentName)

	fmt.Println("Starting Ankaios agent...")
	fmt.Printf("  Agent name: %s\n", cfg.AgentName)
	fmt.Printf("  Server address: %s\n", cfg.ServerAddress)
	fmt.Printf("  containerd socket: %s\n", containerdSocket)

	containerdFacade, err := runtime.NewContainerdFacade(containerdSocket, cfg.RunFolder, cfg.RunFolder)
	if err != nil {
		return fmt.Errorf("failed to connect to containerd: %v", err)
	}
	defer containerdFacade.Close()
	runtime.Register(containerdFacade)
	fmt.Printf("✓ Connected to containerd at %s\n", containerdSocket)

	conn, err := dialServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to dial server: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := transport.NewExchangeClient(conn)
	stream, err := client.Exchange(ctx, transport.DialOption())
	if err != nil {
		return fmt.Errorf("failed to open exchange stream: %v", err)
	}

	if err := stream.Send(&transport.Envelope{
		Kind:       transport.MsgAgentHello,
		AgentHello: &transport.AgentHello{AgentName: cfg.AgentName},
	}); err != nil {
		return fmt.Errorf("failed to send agent hello: %v", err)
	}
	fmt.Println("✓ Connected to server")

	disp := dispatcher.NewAgentDispatcher(cfg.AgentName, runtime.Lookup, controlInterfacePath(cfg.RunFolder), nil)

	inbound := make(chan *transport.Envelope, 32)
	go receiveLoop(stream, inbound, log)
	go forwardOutbound(stream, disp.Outbound(), log)

	httpSrv := httpserver.New(nil)
	go func() {
		if err := httpSrv.ListenAndServe(httpAddr); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()
	fmt.Printf("✓ Health/metrics server listening on %s\n", httpAddr)

	runDone := make(chan struct{})
	go func() {
		disp.Run(ctx, inbound)
		close(runDone)
	}()

	fmt.Println()
	fmt.Println("Agent is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case <-runDone:
		fmt.Println("\nConnection to server lost, shutting down...")
	}

	cancel()
	_ = stream.Send(&transport.Envelope{Kind: transport.MsgGoodbye, Goodbye: &transport.Goodbye{}})
	fmt.Println("✓ Shutdown complete")
	return nil
}

func dialServer(cfg config.Agent) (*grpc.ClientConn, error) {
	if !cfg.TLS.Enabled() {
		return grpc.NewClient(cfg.ServerAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	tc, err := tlsconfig.ClientConfig(tlsconfig.Files{CertFile: cfg.TLS.CertFile, KeyFile: cfg.TLS.KeyFile, CAFile: cfg.TLS.CAFile})
	if err != nil {
		return nil, err
	}
	return grpc.NewClient(cfg.ServerAddress, grpc.WithTransportCredentials(credentials.NewTLS(tc)))
}

func controlInterfacePath(runFolder string) runtimemanager.ControlInterfacePathFunc {
	return func(instanceName naming.InstanceName) string {
		return runFolder + "/" + instanceName.String() + "/control_interface"
	}
}

// receiveLoop forwards stream frames into inbound until Recv fails,
// then closes inbound so the dispatcher's Run loop exits cleanly.
func receiveLoop(stream transport.ExchangeClientStream, inbound chan<- *transport.Envelope, log zerolog.Logger) {
	defer close(inbound)
	for {
		env, err := stream.Recv()
		if err != nil {
			log.Warn().Err(err).Msg("server stream closed")
			return
		}
		inbound <- env
	}
}

func forwardOutbound(stream transport.ExchangeClientStream, outbound <-chan *transport.Envelope, log zerolog.Logger) {
	for env := range outbound {
		if err := stream.Send(env); err != nil {
			log.Warn().Err(err).Msg("failed to send envelope to server")
			return
		}
	}
}
