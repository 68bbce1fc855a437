// Package main is the entry point for the kvstore CLI.
//
// kvstore is a layered persistent key-value store that keeps one
// pretty-printed JSON file per key (or a SQLite database), fronted by a
// write-through cache. The CLI exposes the primitive operations plus
// whole-store export, backup/restore, and TTL cleanup.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/codecaine-zz/layerstore/internal/storage"
	"github.com/codecaine-zz/layerstore/internal/storage/git"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "kvstore: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	dataDir := flag.String("data-dir", defaultDataDir(), "Data directory")
	driver := flag.String("driver", "", "Backing store driver (file, sqlite); overrides config.json")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	secret := flag.String("secret", "", "Secret for secure-set/secure-get")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return nil
	}

	ll := &slog.LevelVar{}
	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
		ll.Set(slog.LevelInfo)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg, err := storage.LoadConfig(*dataDir)
	if err != nil {
		return err
	}
	if *driver != "" {
		cfg.Driver = *driver
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	var store storage.Store
	switch cfg.Driver {
	case storage.DriverSQLite:
		s, err := storage.OpenSQLiteStore(filepath.Join(*dataDir, "kv.db"))
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		store = s
	default:
		s, err := storage.NewFileStore(filepath.Join(*dataDir, "keys"))
		if err != nil {
			return err
		}
		store = s
	}

	var mirror *git.Mirror
	if cfg.GitMirror {
		mirror, err = git.Open(*dataDir, "kvstore", "kvstore@localhost")
		if err != nil {
			return err
		}
	}

	return runCommand(ctx, store, cfg, mirror, *secret, args)
}

func runCommand(ctx context.Context, store storage.Store, cfg *storage.Config, mirror *git.Mirror, secret string, args []string) error {
	migrator := storage.NewMigrator(store)
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "set":
		if len(rest) != 2 {
			return errors.New("usage: set KEY VALUE")
		}
		return store.Set(rest[0], parseValue(rest[1]))
	case "get":
		if len(rest) != 1 {
			return errors.New("usage: get KEY")
		}
		value, ok := store.Get(rest[0])
		if !ok {
			return fmt.Errorf("key %q not found", rest[0])
		}
		return printJSON(value)
	case "del":
		if len(rest) != 1 {
			return errors.New("usage: del KEY")
		}
		return store.Remove(rest[0])
	case "has":
		if len(rest) != 1 {
			return errors.New("usage: has KEY")
		}
		fmt.Println(store.Has(rest[0]))
		return nil
	case "keys":
		keys, err := store.ListKeys()
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	case "stats":
		st, err := store.Stats()
		if err != nil {
			return err
		}
		return printJSON(st)
	case "export":
		data, err := store.Export()
		if err != nil {
			return err
		}
		return printJSON(data)
	case "clear":
		return store.Clear()
	case "backup":
		key, err := migrator.Backup()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return commitMirror(mirror, "backup "+key)
	case "backups":
		keys, err := migrator.ListBackups()
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	case "restore":
		if len(rest) != 1 {
			return errors.New("usage: restore BACKUP_KEY")
		}
		ok, err := migrator.Restore(rest[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("backup %q not found", rest[0])
		}
		return commitMirror(mirror, "restore "+rest[0])
	case "secure-set":
		if len(rest) != 2 {
			return errors.New("usage: secure-set KEY VALUE")
		}
		secure, err := openSecure(store, secret)
		if err != nil {
			return err
		}
		return secure.SetSecure(rest[0], parseValue(rest[1]), storage.SecureOptions{Compress: true})
	case "secure-get":
		if len(rest) != 1 {
			return errors.New("usage: secure-get KEY")
		}
		secure, err := openSecure(store, secret)
		if err != nil {
			return err
		}
		value, ok := secure.GetSecure(rest[0])
		if !ok {
			return fmt.Errorf("key %q not found", rest[0])
		}
		return printJSON(value)
	case "secure-del":
		if len(rest) != 1 {
			return errors.New("usage: secure-del KEY")
		}
		secure, err := openSecure(store, secret)
		if err != nil {
			return err
		}
		return secure.RemoveSecure(rest[0])
	case "cleanup":
		removed, err := storage.NewTTL(store).Cleanup()
		if err != nil {
			return err
		}
		fmt.Println(removed)
		return nil
	case "janitor":
		interval := time.Duration(cfg.JanitorIntervalSec) * time.Second
		if interval <= 0 {
			return errors.New("janitor_interval_sec is not configured")
		}
		slog.InfoContext(ctx, "Starting TTL janitor", "interval", interval)
		storage.NewTTL(store).Janitor(ctx, interval)
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command: %q", cmd)
	}
}

func openSecure(store storage.Store, secret string) (*storage.SecureStore, error) {
	if secret == "" {
		return nil, errors.New("-secret is required for secure commands")
	}
	return storage.NewSecure(store, []byte(secret))
}

func commitMirror(mirror *git.Mirror, msg string) error {
	if mirror == nil {
		return nil
	}
	return mirror.Commit(msg)
}

// parseValue interprets the argument as JSON, falling back to a plain
// string so `set greeting hello` works without quoting.
func parseValue(arg string) any {
	var value any
	if err := json.Unmarshal([]byte(arg), &value); err != nil {
		return arg
	}
	return value
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kvstore"
	}
	return filepath.Join(home, ".kvstore")
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: kvstore [flags] COMMAND [args]

Commands:
  set KEY VALUE       store a value (VALUE parsed as JSON, else string)
  get KEY             print a value
  del KEY             remove a key
  has KEY             report whether a key exists
  keys                list all keys
  stats               print store statistics
  export              print the full record set
  clear               remove every key
  backup              snapshot the store, print the backup key
  backups             list snapshot keys
  restore BACKUP_KEY  replace the store with a snapshot
  secure-set KEY VALUE  encrypt and store a value (needs -secret)
  secure-get KEY        decrypt and print a value (needs -secret)
  secure-del KEY        remove an encrypted value (needs -secret)
  cleanup             remove expired TTL entries, print the count
  janitor             run the periodic TTL sweep until interrupted

Flags:
`)
	flag.PrintDefaults()
}

func printVersion() {
	v := "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	fmt.Printf("kvstore %s\n", v)
}
