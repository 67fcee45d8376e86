package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"zoldnode/internal/amount"
	"zoldnode/internal/book"
	"zoldnode/internal/config"
	"zoldnode/internal/debuglog"
	"zoldnode/internal/metrics"
	"zoldnode/internal/network"
	"zoldnode/internal/node"
	"zoldnode/internal/pprofutil"
	"zoldnode/internal/reconcile"
	"zoldnode/internal/remote"
	"zoldnode/internal/score"
	"zoldnode/internal/taxes"
	"zoldnode/internal/wallet"
	"zoldnode/internal/wallets"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(stdout)
		return 0
	}
	cmds := map[string]func([]string, io.Writer, io.Writer) int{
		"serve":   runServe,
		"create":  runCreate,
		"balance": runBalance,
		"pay":     runPay,
		"pull":    runPull,
		"push":    runPush,
		"remotes": runRemotes,
		"taxes":   runTaxes,
		"status":  runStatus,
	}
	cmd, ok := cmds[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
	return cmd(args[1:], stdout, stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: zold-node <command> [--config path] [args]")
	fmt.Fprintln(w, "  serve   [--listen ip:port]")
	fmt.Fprintln(w, "  create  [--id hex]")
	fmt.Fprintln(w, "  balance <id>")
	fmt.Fprintln(w, "  pay     <from> <to> <amount> [details]")
	fmt.Fprintln(w, "  pull    <id>")
	fmt.Fprintln(w, "  push    <id>")
	fmt.Fprintln(w, "  remotes <list|add addr [name]|remove addr|refresh>")
	fmt.Fprintln(w, "  taxes   <id>")
	fmt.Fprintln(w, "  status")
}

// command parses the shared --config flag plus any extra flags the caller
// registered on fs, and loads the configuration.
func command(fs *flag.FlagSet, args []string, stderr io.Writer) (*config.Config, bool) {
	fs.SetOutput(stderr)
	path := fs.String("config", "", "config file (default $ZOLD_HOME/config.yaml)")
	if err := fs.Parse(args); err != nil {
		return nil, false
	}
	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return nil, false
	}
	if cfg.Debug {
		_ = os.Setenv(debuglog.EnvDebug, "1")
	}
	return cfg, true
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad wallet id %q: %w", s, err)
	}
	return id, nil
}

func openWallets(cfg *config.Config) (*wallets.Dir, error) {
	return wallets.Open(cfg.WalletsDir, wallets.Options{Ext: cfg.WalletExt})
}

func openNode(cfg *config.Config, m *metrics.Metrics) (*node.Node, error) {
	return node.NewNode(cfg.Home, node.Options{
		WalletsDir: cfg.WalletsDir,
		WalletExt:  cfg.WalletExt,
		Network:    cfg.Network,
		Passphrase: cfg.Passphrase,
		Metrics:    m,
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", "", "listen addr (host:port), overrides config")
	cfg, ok := command(fs, args, stderr)
	if !ok {
		return 1
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if _, err := pprofutil.StartFromEnv(); err != nil {
		fmt.Fprintf(stderr, "pprof: %v\n", err)
		return 1
	}
	m := metrics.New()
	n, err := openNode(cfg, m)
	if err != nil {
		fmt.Fprintf(stderr, "load node failed: %v\n", err)
		return 1
	}
	ctx, cancel := signalContext()
	defer cancel()
	ready := make(chan net.Addr, 1)
	go func() {
		select {
		case addr := <-ready:
			fmt.Fprintf(stdout, "READY addr=%s node_id=%s\n", addr, n.Name())
		case <-ctx.Done():
		}
	}()
	err = network.ListenAndServe(ctx, cfg.Listen, network.ServerOptions{
		MaxConnsPerIP:   cfg.MaxConnsPerIP,
		MaxStreamsPerIP: cfg.MaxStreamsPerIP,
		RatePerSec:      cfg.RatePerSec,
		RateBurst:       cfg.RateBurst,
		Metrics:         m,
	}, ready, n.Handle)
	if werr := m.WriteSnapshot(cfg.MetricsPath); werr != nil {
		debuglog.Logf("metrics snapshot: %v", werr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "serve failed: %v\n", err)
		return 1
	}
	return 0
}

func runCreate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	idText := fs.String("id", "", "wallet id in hex (random if empty)")
	cfg, ok := command(fs, args, stderr)
	if !ok {
		return 1
	}
	var id uint64
	if *idText != "" {
		var err error
		if id, err = parseID(*idText); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}
	n, err := openNode(cfg, nil)
	if err != nil {
		fmt.Fprintf(stderr, "load node failed: %v\n", err)
		return 1
	}
	w, err := n.Wallets.Create(id, n.Signer.PublicKey(), cfg.Network)
	if err != nil {
		fmt.Fprintf(stderr, "create: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%016x\n", w.ID)
	return 0
}

func printWallet(w io.Writer, wl wallet.Wallet) error {
	bal, err := wl.Ledger.Balance()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%016x txns=%d balance=%s\n", wl.ID, wl.Ledger.Len(), amount.Format(bal, 2))
	return nil
}

func walletArg(fs *flag.FlagSet, stderr io.Writer) (uint64, bool) {
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "usage: zold-node %s <id>\n", fs.Name())
		return 0, false
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 0, false
	}
	return id, true
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	cfg, ok := command(fs, args, stderr)
	if !ok {
		return 1
	}
	id, ok := walletArg(fs, stderr)
	if !ok {
		return 1
	}
	dir, err := openWallets(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "wallets: %v\n", err)
		return 1
	}
	w, err := dir.Load(id)
	if err != nil {
		fmt.Fprintf(stderr, "balance: %v\n", err)
		return 1
	}
	if err := printWallet(stdout, w); err != nil {
		fmt.Fprintf(stderr, "balance: %v\n", err)
		return 1
	}
	return 0
}

func runPay(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pay", flag.ContinueOnError)
	cfg, ok := command(fs, args, stderr)
	if !ok {
		return 1
	}
	if fs.NArg() < 3 || fs.NArg() > 4 {
		fmt.Fprintln(stderr, "usage: zold-node pay <from> <to> <amount> [details]")
		return 1
	}
	from, err := parseID(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	to, err := parseID(fs.Arg(1))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	zents, err := amount.Parse(fs.Arg(2))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	details := "payment"
	if fs.NArg() == 4 {
		details = fs.Arg(3)
	}
	n, err := openNode(cfg, nil)
	if err != nil {
		fmt.Fprintf(stderr, "load node failed: %v\n", err)
		return 1
	}
	ctx, cancel := signalContext()
	defer cancel()
	w, err := n.Wallets.Pay(ctx, from, wallet.PaymentRequest{
		Amount:      zents,
		Beneficiary: to,
		Details:     details,
	}, n.Signer)
	if err != nil {
		fmt.Fprintf(stderr, "pay: %v\n", err)
		return 1
	}
	if err := printWallet(stdout, w); err != nil {
		fmt.Fprintf(stderr, "pay: %v\n", err)
		return 1
	}
	return 0
}

// remotes assembles the reconciliation set: configured remotes first, then
// book entries not already configured, then the redis replica.
func remotes(ctx context.Context, cfg *config.Config, client *network.Client) ([]reconcile.Remote, func(), error) {
	var out []reconcile.Remote
	seen := make(map[string]bool)
	for _, rc := range cfg.Remotes {
		out = append(out, remote.NewPeer(rc.Addr, client, score.New(rc.Score...)))
		seen[rc.Addr] = true
	}
	bk, err := book.Open(ctx, cfg.BookPath)
	if err != nil {
		return nil, nil, err
	}
	defer bk.Close()
	entries, err := bk.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if seen[e.Addr] {
			continue
		}
		out = append(out, remote.NewPeer(e.Addr, client, e.Score))
	}
	closeFn := func() {}
	if cfg.RedisAddr != "" {
		r := remote.NewRedis(cfg.RedisAddr, "", 0, score.Score{}, cfg.RedisTTL)
		out = append(out, r)
		closeFn = func() { _ = r.Close() }
	}
	return out, closeFn, nil
}

func openNetwork(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*reconcile.Network, func(), error) {
	client, err := network.NewClient(network.ClientOptions{Insecure: cfg.Insecure, CAPath: cfg.CAPath})
	if err != nil {
		return nil, nil, err
	}
	rs, closeRemotes, err := remotes(ctx, cfg, client)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	rn := reconcile.New(rs, reconcile.Options{Timeout: cfg.Timeout, Workers: cfg.Workers, Metrics: m})
	return rn, func() {
		closeRemotes()
		client.Close()
	}, nil
}

func runPull(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pull", flag.ContinueOnError)
	cfg, ok := command(fs, args, stderr)
	if !ok {
		return 1
	}
	id, ok := walletArg(fs, stderr)
	if !ok {
		return 1
	}
	dir, err := openWallets(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "wallets: %v\n", err)
		return 1
	}
	ctx, cancel := signalContext()
	defer cancel()
	m := metrics.New()
	defer func() { _ = m.WriteSnapshot(cfg.MetricsPath) }()
	rn, closeFn, err := openNetwork(ctx, cfg, m)
	if err != nil {
		fmt.Fprintf(stderr, "network: %v\n", err)
		return 1
	}
	defer closeFn()
	w, err := rn.Pull(ctx, id)
	if err != nil {
		fmt.Fprintf(stderr, "pull: %v\n", err)
		return 1
	}
	stored, err := dir.Merge(w)
	if err != nil {
		fmt.Fprintf(stderr, "pull: %v\n", err)
		return 1
	}
	if err := printWallet(stdout, stored); err != nil {
		fmt.Fprintf(stderr, "pull: %v\n", err)
		return 1
	}
	return 0
}

func runPush(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	cfg, ok := command(fs, args, stderr)
	if !ok {
		return 1
	}
	id, ok := walletArg(fs, stderr)
	if !ok {
		return 1
	}
	dir, err := openWallets(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "wallets: %v\n", err)
		return 1
	}
	w, err := dir.Load(id)
	if err != nil {
		fmt.Fprintf(stderr, "push: %v\n", err)
		return 1
	}
	ctx, cancel := signalContext()
	defer cancel()
	m := metrics.New()
	defer func() { _ = m.WriteSnapshot(cfg.MetricsPath) }()
	rn, closeFn, err := openNetwork(ctx, cfg, m)
	if err != nil {
		fmt.Fprintf(stderr, "network: %v\n", err)
		return 1
	}
	defer closeFn()
	rep := rn.Push(ctx, w)
	for _, name := range rep.Pushed {
		fmt.Fprintf(stdout, "pushed %s\n", name)
	}
	if err := rep.Err(); err != nil {
		fmt.Fprintf(stderr, "push: %v\n", err)
		return 1
	}
	return 0
}

func runRemotes(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("remotes", flag.ContinueOnError)
	cfg, ok := command(fs, args, stderr)
	if !ok {
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: zold-node remotes <list|add addr [name]|remove addr|refresh>")
		return 1
	}
	ctx, cancel := signalContext()
	defer cancel()
	bk, err := book.Open(ctx, cfg.BookPath)
	if err != nil {
		fmt.Fprintf(stderr, "book: %v\n", err)
		return 1
	}
	defer bk.Close()
	sub, rest := fs.Arg(0), fs.Args()[1:]
	switch sub {
	case "list":
		entries, err := bk.List(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "remotes: %v\n", err)
			return 1
		}
		for _, e := range entries {
			fmt.Fprintf(stdout, "%s name=%s score=%d errors=%d\n", e.Addr, e.Name, e.Score.Len(), e.Errors)
		}
	case "add":
		if len(rest) < 1 || len(rest) > 2 {
			fmt.Fprintln(stderr, "usage: zold-node remotes add <addr> [name]")
			return 1
		}
		e := book.Entry{Addr: rest[0]}
		if len(rest) == 2 {
			e.Name = rest[1]
		}
		if err := bk.Add(ctx, e); err != nil {
			fmt.Fprintf(stderr, "remotes: %v\n", err)
			return 1
		}
	case "remove":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "usage: zold-node remotes remove <addr>")
			return 1
		}
		if err := bk.Remove(ctx, rest[0]); err != nil {
			fmt.Fprintf(stderr, "remotes: %v\n", err)
			return 1
		}
	case "refresh":
		return refreshBook(ctx, cfg, bk, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown remotes subcommand: %s\n", sub)
		return 1
	}
	return 0
}

func refreshBook(ctx context.Context, cfg *config.Config, bk *book.Book, stdout, stderr io.Writer) int {
	client, err := network.NewClient(network.ClientOptions{Insecure: cfg.Insecure, CAPath: cfg.CAPath})
	if err != nil {
		fmt.Fprintf(stderr, "network: %v\n", err)
		return 1
	}
	defer client.Close()
	entries, err := bk.List(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "remotes: %v\n", err)
		return 1
	}
	for _, e := range entries {
		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		s, err := remote.NewPeer(e.Addr, client, e.Score).Refresh(callCtx)
		cancel()
		if err != nil {
			fmt.Fprintf(stdout, "%s error: %v\n", e.Addr, err)
			if rerr := bk.RecordError(ctx, e.Addr); rerr != nil {
				debuglog.Logf("book: %v", rerr)
			}
			continue
		}
		if err := bk.SetScore(ctx, e.Addr, s); err != nil {
			fmt.Fprintf(stderr, "remotes: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "%s score=%d\n", e.Addr, s.Len())
	}
	return 0
}

func runTaxes(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("taxes", flag.ContinueOnError)
	cfg, ok := command(fs, args, stderr)
	if !ok {
		return 1
	}
	id, ok := walletArg(fs, stderr)
	if !ok {
		return 1
	}
	dir, err := openWallets(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "wallets: %v\n", err)
		return 1
	}
	w, err := dir.Load(id)
	if err != nil {
		fmt.Fprintf(stderr, "taxes: %v\n", err)
		return 1
	}
	ctx, cancel := signalContext()
	defer cancel()
	rn, closeFn, err := openNetwork(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintf(stderr, "network: %v\n", err)
		return 1
	}
	defer closeFn()
	tax := taxes.New(rn.Remotes())
	for _, r := range tax.Beneficiaries() {
		fmt.Fprintf(stdout, "beneficiary %s score=%d\n", r.Name(), r.Score().Len())
	}
	if err := tax.Pay(w); err != nil {
		fmt.Fprintf(stderr, "taxes: %v\n", err)
		return 1
	}
	return 0
}

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	cfg, ok := command(fs, args, stderr)
	if !ok {
		return 1
	}
	snap := readMetricsSnapshot(cfg.MetricsPath)
	fmt.Fprintln(stdout, "Local reconciliation summary:")
	fmt.Fprintf(stdout, "  pulls: answered=%d failed=%d timeouts=%d empty=%d\n",
		snap.Pull.Answered, snap.Pull.Failed, snap.Pull.Timeouts, snap.Pull.Empty)
	fmt.Fprintf(stdout, "  copies=%d merged_txns=%d\n", snap.Pull.Copies, snap.Pull.MergedTxns)
	fmt.Fprintf(stdout, "  pushes: ok=%d failed=%d\n", snap.Push.OK, snap.Push.Failed)
	for _, r := range snap.Recent {
		line := fmt.Sprintf("  %s %s answered=%d copies=%d txns=%d",
			r.At.Format(time.RFC3339), r.WalletID, r.Answered, r.Copies, r.Txns)
		if r.Error != "" {
			line += " error=" + r.Error
		}
		fmt.Fprintln(stdout, line)
	}
	return 0
}

func readMetricsSnapshot(path string) metrics.Snapshot {
	data, err := os.ReadFile(path)
	if err != nil {
		return metrics.Snapshot{}
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return metrics.Snapshot{}
	}
	return snap
}
