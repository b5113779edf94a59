// Command rdpgw is the example caller for the sans-I/O RDP core: a
// small gateway that owns the sockets the core never touches. It
// accepts browser WebSocket connections (or plain TCP health checks),
// dials the target RDP server, pumps bytes through the Connector and
// Active Stage, performs the TLS upgrade the Connector asks for, and
// feeds CredSSP tokens from the NTLM/Kerberos providers. It exists to
// prove the byte-in/byte-out contract is drivable end to end, not to
// be a production gateway.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vantage-sec/rdpcore/rdpconfig"
	"github.com/vantage-sec/rdpcore/rlog"
)

var version = "dev" // injected at build time via -ldflags

var (
	flagHost       string
	flagPort       string
	flagLogLevel   string
	flagConfigFile string
	flagSkipTLS    bool
	flagServerName string
	flagLegacyTLS  bool
)

var rootCmd = &cobra.Command{
	Use:   "rdpgw",
	Short: "RDP WebSocket gateway",
	Long:  "rdpgw bridges browser WebSocket connections to RDP servers through the rdpcore protocol engines.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rdpgw %s\n", version)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagHost, "host", "", "listen host")
	serveCmd.Flags().StringVar(&flagPort, "port", "", "listen port")
	serveCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&flagConfigFile, "config", "", "YAML profile file")
	serveCmd.Flags().BoolVar(&flagSkipTLS, "tls-skip-verify", false, "skip TLS certificate validation toward RDP servers")
	serveCmd.Flags().StringVar(&flagServerName, "tls-server-name", "", "override TLS server name")
	serveCmd.Flags().BoolVar(&flagLegacyTLS, "legacy-tls", false, "use the legacy-cipher TLS stack for servers stuck on export suites")

	rootCmd.AddCommand(serveCmd, versionCmd)
}

func serve() error {
	config, err := rdpconfig.LoadWithOverrides(rdpconfig.LoadOptions{
		Host:              flagHost,
		Port:              flagPort,
		LogLevel:          flagLogLevel,
		ConfigFile:        flagConfigFile,
		SkipTLSValidation: flagSkipTLS,
		TLSServerName:     flagServerName,
	})
	if err != nil {
		return err
	}

	log := rlog.Default()
	log.SetLevelFromString(config.Logging.Level)

	gw := newGateway(config, log, flagLegacyTLS)

	mux := http.NewServeMux()
	mux.HandleFunc("/connect", gw.handleConnect)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := config.Server.Host + ":" + config.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	log.Info("rdpgw %s listening on %s", version, addr)
	return srv.ListenAndServe()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
