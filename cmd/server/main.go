package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-groupchat/internal/api"
	"github.com/npezzotti/go-groupchat/internal/chat"
	"github.com/npezzotti/go-groupchat/internal/config"
	"github.com/npezzotti/go-groupchat/internal/database"
	"github.com/npezzotti/go-groupchat/internal/server"
	"github.com/npezzotti/go-groupchat/internal/stats"
	"github.com/npezzotti/go-groupchat/internal/upload"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func main() {
	logger := log.New(os.Stderr, "[go-groupchat] ", log.LstdFlags)

	opts, err := config.LoadOptions()
	if err != nil {
		logger.Fatal("load options: ", err)
	}

	var allowedOrigins stringSliceFlag
	flag.StringVar(&opts.ServerAddr, "addr", opts.ServerAddr, "server address")
	flag.StringVar(&opts.DatabaseDriver, "driver", opts.DatabaseDriver, "database driver (postgres or sqlite3)")
	flag.StringVar(&opts.DatabaseDSN, "dsn", opts.DatabaseDSN, "database connection string")
	flag.StringVar(&opts.SigningKey, "signing-key", opts.SigningKey, "base64 encoded signing key, empty disables token auth")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&opts.UploadDir, "upload-dir", opts.UploadDir, "directory for uploaded files")
	flag.Int64Var(&opts.MaxUploadSize, "max-upload-size", opts.MaxUploadSize, "maximum upload size in bytes")
	flag.DurationVar(&opts.StoreTimeout, "store-timeout", opts.StoreTimeout, "timeout for a single store operation")
	flag.Float64Var(&opts.SendRateLimit, "send-rate", opts.SendRateLimit, "messages per second a connection may send, 0 disables the limit")
	flag.IntVar(&opts.SendBurst, "send-burst", opts.SendBurst, "burst size of the send rate limit")
	flag.Parse()

	if len(allowedOrigins) > 0 {
		opts.AllowedOrigins = allowedOrigins
	}

	cfg, err := config.NewConfig(*opts)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	if !cfg.AuthEnabled() {
		logger.Println("no signing key configured, token auth is disabled")
	}

	dbConn, err := database.NewSQLChatRepository(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	uploads, err := upload.NewStore(logger, cfg.UploadDir, cfg.MaxUploadSize)
	if err != nil {
		logger.Fatal("upload store: ", err)
	}

	chats := chat.NewChatService(logger, dbConn, cfg.StoreTimeout)
	pipeline := chat.NewPipeline(logger, dbConn, cfg.StoreTimeout)
	aggregator := chat.NewAggregator(logger, dbConn, cfg.StoreTimeout)

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, chats, pipeline, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}
	chatServer.SetSendRate(cfg.SendRateLimit, cfg.SendBurst)

	srv := api.NewGoChatApp(mux, logger, chatServer, dbConn, chats, aggregator, uploads, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
