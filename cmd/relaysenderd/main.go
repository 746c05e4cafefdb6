// Command relaysenderd is the CLI front end around package sender: flags
// and an optional YAML file select the peer address, spill directory, TLS
// material, and the other tunables, then the process runs the worker
// until interrupted. The worker state machine itself lives entirely in
// package sender; this file only wires it up, the same division of labor
// cmd/nats-server keeps between its main and the server package.
package main

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/guidoreina/netbuf/logger"
	"github.com/guidoreina/netbuf/sender"
	"github.com/guidoreina/netbuf/tlsctx"
	"github.com/guidoreina/netbuf/transport"
)

var flags struct {
	configFile string

	address   string
	directory string

	tlsEnabled bool
	certFile   string
	keyFile    string
	serverCA   string
	ocsp       bool

	idleTimeout      int
	reconnectionTime int
	maxQueued        int
	defaultTimeout   int
	sleepInterval    int
	poolChunkSize    int

	debug bool
	trace bool
	log   string
}

func main() {
	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintf(os.Stderr, "relaysenderd: GOMAXPROCS: %v\n", err)
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "relaysenderd:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relaysenderd",
		Short: "Store-and-forward relay sender daemon",
		RunE:  run,
	}

	f := cmd.Flags()
	f.StringVar(&flags.configFile, "config", "", "optional YAML configuration file")
	f.StringVar(&flags.address, "address", "", "peer address: host:port, [ipv6]:port, or a local socket path")
	f.StringVar(&flags.directory, "directory", "", "spill directory (must already exist)")
	f.BoolVar(&flags.tlsEnabled, "tls", false, "dial the peer over TLS")
	f.StringVar(&flags.certFile, "cert", "", "client certificate (PEM)")
	f.StringVar(&flags.keyFile, "key", "", "client private key (PEM)")
	f.StringVar(&flags.serverCA, "server-ca", "", "CA bundle used to verify the peer, and as OCSP issuer when --ocsp is set")
	f.BoolVar(&flags.ocsp, "ocsp", false, "start an OCSP revocation monitor against --server-ca")
	f.IntVar(&flags.idleTimeout, "idle-timeout-seconds", 0, "override idle_timeout (default 60s)")
	f.IntVar(&flags.reconnectionTime, "reconnection-time-seconds", 0, "override reconnection_time (default 30s)")
	f.IntVar(&flags.maxQueued, "max-queued-buffers", 0, "override max_queued_buffers (default 10000)")
	f.IntVar(&flags.defaultTimeout, "default-timeout-millis", 0, "override default_timeout (default 30000ms)")
	f.IntVar(&flags.sleepInterval, "sleep-interval-millis", 0, "override sleep_interval (default 250ms)")
	f.IntVar(&flags.poolChunkSize, "pool-chunk-size", 0, "override pool_chunk_size (default 10000)")
	f.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	f.BoolVar(&flags.trace, "trace", false, "enable trace logging")
	f.StringVar(&flags.log, "log", "", "log file path (default stderr)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	fc, err := loadFileConfig(flags.configFile)
	if err != nil {
		return err
	}

	address := firstNonEmpty(flags.address, fc.Address)
	directory := firstNonEmpty(flags.directory, fc.Directory)
	if address == "" || directory == "" {
		return fmt.Errorf("--address and --directory (or their config-file equivalents) are required")
	}

	debug := flags.debug || fc.Debug
	trace := flags.trace || fc.Trace
	logPath := firstNonEmpty(flags.log, fc.Log)

	var lg *logger.Std
	if logPath != "" {
		lg = logger.NewFile(logPath, debug, trace)
	} else {
		lg = logger.NewStd(debug, trace)
	}
	sender.SetLogger(lg)

	ep, err := transport.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	conn, err := buildTransport(fc, lg)
	if err != nil {
		return err
	}

	cfg := sender.Config{
		Directory:        directory,
		IdleTimeout:      secondsOrDefault(firstNonZero(flags.idleTimeout, fc.IdleTimeoutSeconds), sender.DefaultIdleTimeout),
		ReconnectionTime: secondsOrDefault(firstNonZero(flags.reconnectionTime, fc.ReconnectionTimeSeconds), sender.DefaultReconnectionTime),
		MaxQueuedBuffers: firstNonZero(flags.maxQueued, fc.MaxQueuedBuffers),
		SendTimeout:      millisOrDefault(firstNonZero(flags.defaultTimeout, fc.DefaultTimeoutMillis), sender.DefaultTimeout),
		SleepInterval:    millisOrDefault(firstNonZero(flags.sleepInterval, fc.SleepIntervalMillis), sender.DefaultSleepInterval),
		PoolChunkSize:    firstNonZero(flags.poolChunkSize, fc.PoolChunkSize),
	}

	s, err := sender.New(cfg, conn, ep)
	if err != nil {
		return fmt.Errorf("starting sender: %w", err)
	}
	if err := s.Start(); err != nil {
		return err
	}

	lg.Noticef("relaysenderd: started, peer=%s directory=%s", ep, directory)

	waitForSignal()

	lg.Noticef("relaysenderd: shutting down")
	return s.Stop()
}

func buildTransport(fc *fileConfig, lg logger.Logger) (transport.Conn, error) {
	tlsEnabled := flags.tlsEnabled || fc.TLS.Enabled
	if !tlsEnabled {
		return transport.NewPlain(lg), nil
	}

	certFile := firstNonEmpty(flags.certFile, fc.TLS.CertFile)
	keyFile := firstNonEmpty(flags.keyFile, fc.TLS.KeyFile)
	serverCA := firstNonEmpty(flags.serverCA, fc.TLS.ServerCA)
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("--cert and --key are required when --tls is set")
	}

	ctx, err := tlsctx.Load(certFile, keyFile, serverCA, lg)
	if err != nil {
		return nil, err
	}

	if flags.ocsp {
		if serverCA == "" {
			return nil, fmt.Errorf("--ocsp requires --server-ca (used as the OCSP issuer)")
		}
		issuer, err := loadIssuerCert(serverCA)
		if err != nil {
			return nil, fmt.Errorf("loading OCSP issuer: %w", err)
		}
		if _, err := ctx.StartRevocationMonitor(issuer); err != nil {
			return nil, err
		}
	}

	return transport.NewTLS(ctx, lg), nil
}

func loadIssuerCert(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	return x509.ParseCertificate(block.Bytes)
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}
