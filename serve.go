package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/secomp2025/cardgolf/database"
	"github.com/secomp2025/cardgolf/handlers"
	"github.com/spf13/cobra"
	log "github.com/spf13/jwalterweatherman"
)

const (
	shutdownPeriod      = 15 * time.Second
	shutdownHardPeriod  = 3 * time.Second
	readinessDrainDelay = 5 * time.Second
)

var (
	servePort int
	devMode   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the current contest, results and standings over HTTP",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default server.port)")
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "skip the readiness drain on shutdown")
}

func serve(cmd *cobra.Command, args []string) error {
	rootCtx := cmd.Context()

	store, err := database.Open(rootCtx, cfg.Storage.StandingsDB)
	if err != nil {
		return err
	}
	defer store.Close()

	var isShuttingDown atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if isShuttingDown.Load() {
			http.Error(w, "Shutting down", http.StatusServiceUnavailable)
			return
		}

		fmt.Fprintln(w, "Ok")
	})
	handlers.NewStatusHandler(cfg, store).RegisterRoutes(mux)

	port := servePort
	if port == 0 {
		port = cfg.Server.Port
	}

	ongoingCtx, stopOngoingGracefully := context.WithCancel(context.Background())
	defer stopOngoingGracefully()
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ongoingCtx
		},
	}

	serverErr := make(chan error, 1)
	go func() {
		log.INFO.Printf("Starting server at %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-rootCtx.Done():
	}

	isShuttingDown.Store(true)
	log.INFO.Println("Shutting down")

	if !devMode {
		time.Sleep(readinessDrainDelay)
		log.INFO.Println("Waiting for ongoing requests to finish")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	stopOngoingGracefully()
	if err != nil {
		log.WARN.Println("Failed to wait for ongoing requests to finish")
		time.Sleep(shutdownHardPeriod)
	}
	log.INFO.Println("Server shut down")
	return nil
}
