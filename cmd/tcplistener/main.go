// Command tcplistener prints every line clients send, one connection per
// goroutine. Useful to see what a browser actually sends before it reaches
// httpserver.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/config"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/lines"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/slogutil"
)

var (
	host string
	port int
)

var rootCmd = &cobra.Command{
	Use:          "tcplistener",
	Short:        "Print raw request lines received on a TCP port",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slogutil.NewLogger(os.Stderr, slog.LevelInfo, slogutil.FormatHuman)
		return listenAndPrint(net.JoinHostPort(host, fmt.Sprint(port)), logger)
	},
}

func init() {
	d := config.DefaultConfig()
	rootCmd.Flags().StringVar(&host, "host", d.Server.Host, "host to bind to")
	rootCmd.Flags().IntVar(&port, "port", d.Server.Port, "port to listen on")
}

func listenAndPrint(addr string, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer listener.Close()
	logger.Info("listening", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			return err
		}
		id := uuid.NewString()[:8]
		logger.Info("connection accepted", "conn", id, "peer", conn.RemoteAddr().String())

		go func() {
			for line := range lines.Channel(conn) {
				fmt.Printf("%s | %s\n", id, line)
			}
			logger.Info("connection closed", "conn", id)
		}()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
