// Command remcp-serv is the remcp transfer server. It listens for GET and
// PUT requests, serving at most -max-clients connections at once and
// dividing the -rate bandwidth budget fairly among them.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/remcp/protocol"
	"github.com/opd-ai/remcp/server"
)

type serverConfig struct {
	port       int
	maxClients int64
	rate       uint64
	logLevel   string
}

// parseConfig reads configuration from flags and environment variables.
// Flags take precedence over environment.
func parseConfig(fs *flag.FlagSet, args []string) (serverConfig, error) {
	cfg := serverConfig{
		port:       protocol.DefaultPort,
		maxClients: protocol.DefaultMaxClients,
		rate:       protocol.DefaultTransferRate,
		logLevel:   "info",
	}

	if v := os.Getenv("REMCP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.port = port
		}
	}
	if v := os.Getenv("REMCP_MAX_CLIENTS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.maxClients = n
		}
	}
	if v := os.Getenv("REMCP_RATE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.rate = n
		}
	}
	if v := os.Getenv("REMCP_LOG_LEVEL"); v != "" {
		cfg.logLevel = v
	}

	fs.IntVar(&cfg.port, "port", cfg.port, "TCP port to listen on")
	fs.Int64Var(&cfg.maxClients, "max-clients", cfg.maxClients, "maximum concurrent clients")
	fs.Uint64Var(&cfg.rate, "rate", cfg.rate, "total transfer rate budget in bytes per second")
	fs.StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.maxClients < 1 {
		return cfg, fmt.Errorf("max-clients must be at least 1")
	}
	if cfg.rate < 1 {
		return cfg, fmt.Errorf("rate must be at least 1")
	}
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	s := server.New(server.Config{
		Addr:       fmt.Sprintf(":%d", cfg.port),
		MaxClients: cfg.maxClients,
		RateBudget: cfg.rate,
	})

	fmt.Printf("Server running on port %d\n", cfg.port)
	if err := s.ListenAndServe(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Error("Server stopped")
		os.Exit(1)
	}
}
