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

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/npezzotti/go-droproom/internal/api"
	"github.com/npezzotti/go-droproom/internal/blob"
	"github.com/npezzotti/go-droproom/internal/config"
	"github.com/npezzotti/go-droproom/internal/database"
	"github.com/npezzotti/go-droproom/internal/server"
	"github.com/npezzotti/go-droproom/internal/stats"
)

const defaultSigningKey = "hJ3mYxTOYys3BLcsOQ14y4O3qDPHzu0EosPtLC5OTvM="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	supabaseURL    string
	supabaseKey    string
	storageBucket  string
)

func main() {
	// .env is optional, flags and real environment win
	_ = godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("DROPROOM_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("DROPROOM_DSN",
		"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", envOr("DROPROOM_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&supabaseURL, "supabase-url", os.Getenv("SUPABASE_URL"), "supabase project url")
	flag.StringVar(&supabaseKey, "supabase-key", os.Getenv("SUPABASE_KEY"), "supabase service key")
	flag.StringVar(&storageBucket, "storage-bucket", os.Getenv("DROPROOM_STORAGE_BUCKET"), "storage bucket for uploads")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if origins := os.Getenv("DROPROOM_ALLOWED_ORIGINS"); origins != "" {
			allowedOrigins = strings.Split(origins, ",")
		}
	}

	logger := log.New(os.Stderr, "[droproom] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, supabaseURL, supabaseKey, storageBucket)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgRoomRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	blobStore := blob.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.StorageBucket)

	srv := api.NewDropRoomApp(mux, logger, chatServer, dbConn, blobStore, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

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
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
