// Package main provides the gtrandb CLI entry point.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gtrandb/gtrandb/pkg/config"
	"github.com/gtrandb/gtrandb/pkg/dict"
	"github.com/gtrandb/gtrandb/pkg/engine"
	"github.com/gtrandb/gtrandb/pkg/loader"
	"github.com/gtrandb/gtrandb/pkg/messaging"
	"github.com/gtrandb/gtrandb/pkg/operator"
	"github.com/gtrandb/gtrandb/pkg/plan"
	"github.com/gtrandb/gtrandb/pkg/storage"
	"github.com/gtrandb/gtrandb/pkg/txstatus"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gtrandb",
		Short: "gtrandb - in-memory transactional property-graph engine",
		Long: `gtrandb executes transactional graph-traversal programs against an
in-memory, multi-version property graph under snapshot or serializable
isolation. Query text is parsed externally; this binary drives the engine
directly through its plan/operator API.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gtrandb v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start an in-process engine and block until shutdown",
		RunE:  runServe,
	}
	serveCmd.Flags().String("load", "", "Load a YAML graph fixture on startup (pkg/loader)")
	serveCmd.Flags().Uint32("worker-id", 1, "Worker id folded into minted VIds")
	rootCmd.AddCommand(serveCmd)

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a batch of generated transactions and report commit/abort counts",
		RunE:  runBench,
	}
	benchCmd.Flags().Int("trxs", 1000, "Number of transactions to issue")
	benchCmd.Flags().Int("vertices", 0, "Vertices to pre-load before benchmarking (0 = none)")
	rootCmd.AddCommand(benchCmd)

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive statement shell",
		Long: `Interactive shell accepting one statement per line (semicolon-terminated,
per §6's wire format). Query text parsing is external to the core engine;
this shell understands only a small fixed command set — addv, adde, drop,
getvlabel — as a stand-in for the real parser.`,
		RunE: runShell,
	}
	rootCmd.AddCommand(shellCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	workerID, _ := cmd.Flags().GetUint32("worker-id")
	loadPath, _ := cmd.Flags().GetString("load")

	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Printf("starting gtrandb v%s (worker %d)\n", version, workerID)
	fmt.Println(cfg.String())

	eng := engine.New(workerID, cfg, nil)
	d := dict.New()

	if loadPath != "" {
		fmt.Printf("loading fixture %s\n", loadPath)
		g, err := loader.ParseFile(loadPath)
		if err != nil {
			return fmt.Errorf("parsing fixture: %w", err)
		}
		res, err := loader.Load(eng, g, d, time.Now().UnixNano())
		if err != nil {
			return fmt.Errorf("loading fixture: %w", err)
		}
		fmt.Printf("loaded %d vertices\n", len(res.Vertices))
	}

	fmt.Println("engine ready, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nshutting down")
	return nil
}

// runBench issues n independent single-statement addV transactions against
// a fresh in-process engine and reports how many committed vs aborted —
// under normal operation (no concurrent writers contending for the same
// vertex) every one should commit; this is a smoke-load, not a concurrency
// stress test.
func runBench(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("trxs")
	preload, _ := cmd.Flags().GetInt("vertices")

	cfg := config.LoadFromEnv()
	eng := engine.New(1, cfg, nil)
	d := dict.New()
	label := d.Intern("bench")

	if preload > 0 {
		for i := 0; i < preload; i++ {
			tx := eng.Begin(false)
			if _, err := eng.Storage.ProcessAddV(label, tx); err != nil {
				eng.Storage.Abort(tx)
				continue
			}
			eng.Status.UpdateStatus(tx.ID, txstatus.Committed)
			eng.Storage.Commit(tx, eng.Status.AllocateTimestamp())
		}
	}

	start := time.Now()
	committed, aborted := 0, 0
	for i := 0; i < n; i++ {
		tx := eng.Begin(false)

		b := plan.NewBuilder()
		s0 := b.AddStatement([]plan.Op{{Kind: plan.OpAddV}}, plan.TrxAdd)
		p := b.Build(tx.ID, tx.BeginTS)

		ops := map[int]operator.Operator{s0: &operator.AddVOperator{Label: label}}
		if err := eng.Run(tx, p, ops); err != nil {
			aborted++
			continue
		}
		committed++
	}
	elapsed := time.Since(start)

	fmt.Printf("issued %d transactions in %v\n", n, elapsed)
	fmt.Printf("committed: %d  aborted: %d\n", committed, aborted)
	if n > 0 {
		fmt.Printf("throughput: %.0f trx/s\n", float64(n)/elapsed.Seconds())
	}
	return nil
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg := config.LoadFromEnv()
	eng := engine.New(1, cfg, nil)
	d := dict.New()
	ids := map[string]storage.VId{}

	fmt.Println("gtrandb shell — addv <label>[=alias] | adde <label> <src> <dst> | getvlabel <id> | drop <id> | exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSuffix(strings.TrimSpace(scanner.Text()), ";")
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if err := evalLine(eng, d, ids, line); err != nil {
			fmt.Println("error:", err)
		}
	}
	return nil
}

func evalLine(eng *engine.Engine, d *dict.Dictionary, ids map[string]storage.VId, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "addv":
		if len(fields) < 2 {
			return fmt.Errorf("usage: addv <label>[=alias]")
		}
		label, alias, _ := strings.Cut(fields[1], "=")

		tx := eng.Begin(false)
		b := plan.NewBuilder()
		s0 := b.AddStatement([]plan.Op{{Kind: plan.OpAddV}}, plan.TrxAdd)
		p := b.Build(tx.ID, tx.BeginTS)
		ops := map[int]operator.Operator{s0: &operator.AddVOperator{Label: d.Intern(label)}}
		if err := eng.Run(tx, p, ops); err != nil {
			return err
		}
		out, _ := p.Result(s0)
		vid := out[0].(storage.VId)
		if alias != "" {
			ids[alias] = vid
		}
		fmt.Printf("vid=%d\n", vid)
		return nil

	case "adde":
		if len(fields) != 4 {
			return fmt.Errorf("usage: adde <label> <src> <dst>")
		}
		src, err := resolveVID(ids, fields[2])
		if err != nil {
			return err
		}
		dst, err := resolveVID(ids, fields[3])
		if err != nil {
			return err
		}

		tx := eng.Begin(false)
		b := plan.NewBuilder()
		s0 := b.AddStatement([]plan.Op{{Kind: plan.OpAddE}}, plan.TrxAdd)
		p := b.Build(tx.ID, tx.BeginTS)
		ops := map[int]operator.Operator{s0: addEFixed{label: d.Intern(fields[1]), src: src, dst: dst}}
		if err := eng.Run(tx, p, ops); err != nil {
			return err
		}
		fmt.Printf("edge %d->%d committed\n", src, dst)
		return nil

	case "getvlabel":
		if len(fields) != 2 {
			return fmt.Errorf("usage: getvlabel <id>")
		}
		vid, err := resolveVID(ids, fields[1])
		if err != nil {
			return err
		}
		tx := eng.Begin(true)
		label, found, err := eng.Storage.GetVLabel(vid, tx)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("not found")
			return nil
		}
		fmt.Printf("label=%s\n", d.Name(label))
		return nil

	case "drop":
		if len(fields) != 2 {
			return fmt.Errorf("usage: drop <id>")
		}
		vid, err := resolveVID(ids, fields[1])
		if err != nil {
			return err
		}
		tx := eng.Begin(false)
		b := plan.NewBuilder()
		s0 := b.AddStatement([]plan.Op{{Kind: plan.OpDrop}}, plan.TrxDelete)
		p := b.Build(tx.ID, tx.BeginTS)
		ops := map[int]operator.Operator{s0: dropOp{vid: vid}}
		return eng.Run(tx, p, ops)

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func resolveVID(ids map[string]storage.VId, s string) (storage.VId, error) {
	if vid, ok := ids[s]; ok {
		return vid, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown vertex reference %q", s)
	}
	return storage.VId(n), nil
}

// dropOp adapts a fixed vertex id to operator.DropOperator, whose Process
// expects the id as a message value rather than a field — the shell already
// knows the target, so it seeds the message itself before delegating.
type dropOp struct{ vid storage.VId }

func (dropOp) Kind() plan.OperatorKind { return plan.OpDrop }

func (d dropOp) Process(ctx *operator.Context, in messaging.Message) ([]messaging.Message, error) {
	return (&operator.DropOperator{}).Process(ctx, messaging.NewMessage(in.Header, d.vid))
}

// addEFixed adapts a resolved src/dst pair to operator.AddEOperator, which
// normally reads both endpoints out of the incoming message's values (they'd
// arrive there via a prior traversal statement's placeholder splice); the
// shell already has both endpoints, so it seeds the message itself.
type addEFixed struct {
	label    uint32
	src, dst storage.VId
}

func (addEFixed) Kind() plan.OperatorKind { return plan.OpAddE }

func (a addEFixed) Process(ctx *operator.Context, in messaging.Message) ([]messaging.Message, error) {
	op := &operator.AddEOperator{Label: a.label}
	return op.Process(ctx, messaging.NewMessage(in.Header, a.src, a.dst))
}
