// rlwallet is a command-line wallet for a coin ledger with rate-limited
// spending. It keeps its state under the data directory and talks to the
// ledger over JSON-RPC.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/Klingon-tech/klingnet-rlwallet/config"
	"github.com/Klingon-tech/klingnet-rlwallet/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-rlwallet/internal/log"
	"github.com/Klingon-tech/klingnet-rlwallet/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-rlwallet/internal/storage"
	"github.com/Klingon-tech/klingnet-rlwallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

const version = "0.1.0"

// passwordEnv overrides the terminal prompt, for scripts.
const passwordEnv = "RLWALLET_PASSWORD"

// app holds what every command needs once the wallet is open.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	db       *storage.BadgerDB
	wallet   *wallet.Wallet
	client   *rpcclient.Client
	follower *ledger.Follower
}

func main() {
	cfg, flags, err := config.Load(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fatal("%v", err)
	}
	if flags.Version {
		fmt.Printf("rlwallet version %s\n", version)
		return
	}
	if flags.Help || len(flags.Args) == 0 {
		config.PrintUsage(os.Stderr)
		if !flags.Help {
			os.Exit(1)
		}
		return
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logging: %v", err)
	}

	cmd, args := flags.Args[0], flags.Args[1:]
	switch cmd {
	case "create":
		cmdCreate(cfg, args)
		return
	case "help":
		config.PrintUsage(os.Stdout)
		return
	}

	a := openApp(cfg)
	defer a.close()

	switch cmd {
	case "address":
		cmdAddress(a)
	case "pubkey":
		cmdPubKey(a)
	case "sync":
		cmdSync(a, args)
	case "balance":
		cmdBalance(a, args)
	case "send":
		cmdSend(a, args)
	case "rl":
		cmdRL(a, args)
	default:
		a.close()
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		config.PrintUsage(os.Stderr)
		os.Exit(1)
	}
}

// walletStore returns the wallet's namespace in the shared database.
func walletStore(db storage.DB, name string) *storage.PrefixDB {
	return storage.Namespace(db, "w", name)
}

func openKeystore(cfg *config.Config) *wallet.Keystore {
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	return ks
}

func openApp(cfg *config.Config) *app {
	name := cfg.Wallet.Name
	ks := openKeystore(cfg)
	if !ks.Exists(name) {
		fatal("wallet %q not found, run: rlwallet -w %s create", name, name)
	}
	password, err := readPassword(fmt.Sprintf("Password for %s: ", name))
	if err != nil {
		fatal("read password: %v", err)
	}
	seed, err := ks.Load(name, password)
	zero(password)
	if err != nil {
		fatal("unlock wallet: %v", err)
	}

	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		zero(seed)
		fatal("%v", err)
	}
	w, err := wallet.New(wallet.Config{
		Name:            name,
		Seed:            seed,
		Store:           walletStore(db, name),
		PendingExpiry:   cfg.Wallet.PendingExpiry,
		AutoConsolidate: cfg.Wallet.AutoConsolidate,
	})
	zero(seed)
	if err != nil {
		db.Close()
		fatal("open wallet: %v", err)
	}

	client := rpcclient.NewWithTimeout(cfg.Ledger.URL, cfg.Ledger.Timeout)
	return &app{
		cfg:      cfg,
		logger:   klog.WithWallet(klog.CLI, name),
		db:       db,
		wallet:   w,
		client:   client,
		follower: ledger.NewFollower(w, client),
	}
}

func (a *app) close() {
	if a.wallet != nil {
		a.wallet.Close()
		a.wallet = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database")
		}
		a.db = nil
	}
}

// fail closes the wallet before exiting so badger flushes.
func (a *app) fail(format string, args ...interface{}) {
	a.close()
	fatal(format, args...)
}

// sync brings the wallet up to the ledger tip.
func (a *app) sync(ctx context.Context) {
	applied, err := a.follower.Sync(ctx)
	if err != nil {
		a.fail("sync: %v", err)
	}
	a.logger.Debug().Int("blocks", applied).Msg("Synced before command")
}

// submit pushes a freshly built bundle and reports the outcome.
func (a *app) submit(ctx context.Context, sb *bundle.SpendBundle) {
	err := a.follower.Submit(ctx, sb)
	switch {
	case err == nil:
		fmt.Printf("Bundle: %s\n", sb.Name())
	case errors.Is(err, ledger.ErrSubmissionRejected):
		a.fail("%v", err)
	default:
		a.fail("%v (the coins stay reserved until the bundle confirms or expires)", err)
	}
}

// ── create ──────────────────────────────────────────────────────────────

func cmdCreate(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	force := fs.Bool("force", false, "Replace an existing wallet and its state")
	restore := fs.Bool("mnemonic", false, "Restore from a mnemonic read from the terminal")
	fs.Parse(args)

	name := cfg.Wallet.Name
	ks := openKeystore(cfg)
	if ks.Exists(name) && !*force {
		fatal("wallet %q already exists (use -force to replace it)", name)
	}

	var mnemonic string
	if *restore {
		fmt.Fprint(os.Stderr, "Mnemonic: ")
		line, err := readLine()
		if err != nil {
			fatal("read mnemonic: %v", err)
		}
		mnemonic = wallet.NormalizeMnemonic(line)
		if !wallet.ValidateMnemonic(mnemonic) {
			fatal("%v", wallet.ErrInvalidMnemonic)
		}
	} else {
		m, err := wallet.GenerateMnemonic()
		if err != nil {
			fatal("generate mnemonic: %v", err)
		}
		mnemonic = m
		fmt.Println("Mnemonic (write this down!):")
		fmt.Printf("  %s\n\n", mnemonic)
	}

	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if os.Getenv(passwordEnv) == "" {
		confirm, err := readPassword("Confirm password: ")
		if err != nil {
			fatal("read password: %v", err)
		}
		if string(password) != string(confirm) {
			fatal("passwords do not match")
		}
	}

	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}
	defer zero(seed)

	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		fatal("open database: %v", err)
	}
	defer db.Close()
	store := walletStore(db, name)

	if ks.Exists(name) {
		if err := ks.Delete(name); err != nil {
			fatal("remove old wallet: %v", err)
		}
		if err := store.DeleteAll(); err != nil {
			fatal("remove old wallet state: %v", err)
		}
	}
	if err := ks.Create(name, seed, password, wallet.DefaultParams()); err != nil {
		fatal("create wallet: %v", err)
	}
	zero(password)

	w, err := wallet.New(wallet.Config{Name: name, Seed: seed, Store: store})
	if err != nil {
		fatal("open wallet: %v", err)
	}
	defer w.Close()
	ph, err := w.NewPuzzleHash()
	if err != nil {
		fatal("derive puzzle hash: %v", err)
	}

	fmt.Printf("\nWallet created: %s\n", name)
	fmt.Printf("Puzzle hash: %s\n", ph)
}

// ── keys ────────────────────────────────────────────────────────────────

func cmdAddress(a *app) {
	ph, err := a.wallet.NewPuzzleHash()
	if err != nil {
		a.fail("derive puzzle hash: %v", err)
	}
	fmt.Println(ph)
}

func cmdPubKey(a *app) {
	pub, err := a.wallet.OwnerPubKey()
	if err != nil {
		a.fail("owner key: %v", err)
	}
	fmt.Println(hex.EncodeToString(pub))
}

// ── sync / balance / send ───────────────────────────────────────────────

func cmdSync(a *app, args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	follow := fs.Bool("follow", false, "Keep syncing until interrupted")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *follow {
		a.logger.Info().Dur("interval", a.cfg.Ledger.PollInterval).Msg("Following ledger")
		if err := a.follower.Run(ctx, a.cfg.Ledger.PollInterval); err != nil && !errors.Is(err, context.Canceled) {
			a.fail("sync: %v", err)
		}
		return
	}

	applied, err := a.follower.Sync(ctx)
	if err != nil {
		a.fail("sync: %v", err)
	}
	height, synced := a.wallet.Height()
	if !synced {
		fmt.Println("Ledger has no blocks yet")
		return
	}
	fmt.Printf("Applied %d blocks, height %d\n", applied, height)
}

func cmdBalance(a *app, args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	offline := fs.Bool("offline", false, "Show the last synced state without contacting the ledger")
	fs.Parse(args)

	if !*offline {
		a.sync(context.Background())
	}
	b := a.wallet.Balances()
	height, _ := a.wallet.Height()
	fmt.Printf("Height:      %d\n", height)
	fmt.Printf("Total:       %d\n", b.Total)
	fmt.Printf("Standard:    %d\n", b.Standard)
	fmt.Printf("Spendable:   %d\n", b.Spendable)
	if _, err := a.wallet.RLPuzzleHash(); err == nil {
		fmt.Printf("RL coin:     %d\n", b.RateLimited)
		fmt.Printf("Deposits:    %d\n", b.Deposits)
		fmt.Printf("Available:   %d\n", b.Available)
	}
	if p := a.wallet.Pending(); len(p) > 0 {
		fmt.Printf("Pending:     %d coins\n", len(p))
	}
}

func cmdSend(a *app, args []string) {
	if len(args) < 2 || len(args) > 3 {
		a.fail("Usage: rlwallet send <puzzle_hash> <amount> [fee]")
	}
	dest := a.parseHash(args[0])
	amount := a.parseAmount(args[1])
	var fee uint64
	if len(args) == 3 {
		fee = a.parseAmount(args[2])
	}

	ctx := context.Background()
	a.sync(ctx)
	sb, err := a.wallet.Spend(wallet.SpendRequest{Amount: amount, Destination: dest, Fee: fee})
	if err != nil {
		a.fail("send: %v", err)
	}
	a.submit(ctx, sb)
}

// ── helpers ─────────────────────────────────────────────────────────────

func (a *app) parseHash(s string) types.Hash {
	h, err := types.HexToHash(s)
	if err != nil {
		a.fail("invalid puzzle hash %q: %v", s, err)
	}
	return h
}

func (a *app) parseAmount(s string) uint64 {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		a.fail("invalid amount %q: %v", s, err)
	}
	return n
}

func readPassword(prompt string) ([]byte, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return []byte(pw), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// readLine reads a line from the terminal without echo.
func readLine() (string, error) {
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	return string(b), err
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
