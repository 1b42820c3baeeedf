package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/tutibot/backend/internal/config"
	"github.com/zhouzirui/tutibot/backend/internal/logging"
	"github.com/zhouzirui/tutibot/backend/internal/model/theme"
	"github.com/zhouzirui/tutibot/backend/internal/service/chat"
	"github.com/zhouzirui/tutibot/backend/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] failed to load .env, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Storage reports repairs through the global logger; stderr keeps stdout clean for show.
	logger := logging.NewOrNop(logging.Config{
		Level:       cfg.Logging.Level,
		Development: true,
		OutputPaths: []string{"stderr"},
	})
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	mode := flag.String("mode", "", "show, reset or check")
	driver := flag.String("driver", cfg.Storage.Driver, "storage driver (memory, file, bolt, sqlite)")
	path := flag.String("path", "", "storage path, defaults to the configured one")
	key := flag.String("key", cfg.Storage.Key, "record key")
	timeout := flag.Duration("timeout", 10*time.Second, "operation timeout")
	flag.Parse()

	storageCfg := config.StorageConfig{Driver: *driver, Path: *path}
	if *path == "" && *driver == cfg.Storage.Driver {
		storageCfg.Path = cfg.Storage.Path
	}

	store, err := storage.Open(storageCfg.Driver, storageCfg.ResolvedPath())
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	themes := theme.NewMemoryStore(theme.Seed())
	if err := execute(ctx, *mode, store, *key, themes, os.Stdout); err != nil {
		store.Close()
		log.Fatalf("%s failed: %v", *mode, err)
	}
}

func execute(ctx context.Context, mode string, store storage.Storage, key string, themes theme.Store, out io.Writer) error {
	switch mode {
	case "show":
		return show(ctx, store, key, themes, out)
	case "reset":
		return reset(ctx, store, key, out)
	case "check":
		return check(ctx, store, key, themes, out)
	default:
		flag.Usage()
		return fmt.Errorf("unknown mode %q, use -mode=show, -mode=reset or -mode=check", mode)
	}
}

// show prints the record as the service would load it.
func show(ctx context.Context, store storage.Storage, key string, themes theme.Store, out io.Writer) error {
	raw, err := store.GetItem(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintf(out, "no record stored under %q\n", key)
		return nil
	}
	if err != nil {
		return err
	}

	state, err := chat.DecodeRecord(raw, themes)
	if err != nil {
		return fmt.Errorf("record is unreadable, the service would start with defaults: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}

func reset(ctx context.Context, store storage.Storage, key string, out io.Writer) error {
	if err := store.RemoveItem(ctx, key); err != nil {
		return err
	}
	fmt.Fprintf(out, "removed record %q\n", key)
	return nil
}

func check(ctx context.Context, store storage.Storage, key string, themes theme.Store, out io.Writer) error {
	raw, err := store.GetItem(ctx, key)
	if err != nil {
		return err
	}
	state, err := chat.DecodeRecord(raw, themes)
	if err != nil {
		return err
	}

	messages := 0
	for _, c := range state.Chats {
		messages += len(c.Messages)
	}
	fmt.Fprintf(out, "ok: %d chats, %d messages, active=%s theme=%s\n", len(state.Chats), messages, state.ActiveChatID, state.ThemeID)
	return nil
}
