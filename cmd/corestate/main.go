package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	corestate "github.com/cuemby/corestate"
	"github.com/cuemby/corestate/pkg/api"
	"github.com/cuemby/corestate/pkg/config"
	"github.com/cuemby/corestate/pkg/container"
	"github.com/cuemby/corestate/pkg/engine"
	"github.com/cuemby/corestate/pkg/log"
	"github.com/cuemby/corestate/pkg/metrics"
	"github.com/cuemby/corestate/pkg/security"
	"github.com/cuemby/corestate/pkg/snapshot"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

// eng is the single Engine this process drives, in place of the
// teacher's per-invocation gRPC client connecting to a remote manager:
// corestate has no out-of-process server, so the CLI owns the Engine
// directly for the lifetime of the process.
var eng *engine.Engine

var cfgFile string
var cfg config.Config

func main() {
	// --config must be known before the rest of the flags are
	// registered, so a file's values become those flags' defaults and
	// an explicit flag on the command line still wins. cobra has no
	// two-pass parse, so this one flag is scanned by hand first, the
	// same bootstrapping trick warren's own flag-before-init ordering
	// relies on for --log-level in cobra.OnInitialize.
	cfg = config.Default()
	if path := scanFlagValue(os.Args[1:], "--config"); path != "" {
		if loaded, err := config.LoadFile(path, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		} else {
			cfg = loaded
		}
	}
	cfg.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (optional)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// scanFlagValue finds "--name value" or "--name=value" in args without
// involving cobra, for the one flag (--config) that must be resolved
// before the rest of the flag set is even registered.
func scanFlagValue(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, name+"=") {
			return strings.TrimPrefix(a, name+"=")
		}
	}
	return ""
}

var rootCmd = &cobra.Command{
	Use:   "corestate",
	Short: "corestate - in-process state management engine",
	Long: `corestate is a reactive document-store engine: named stores, a
subscription bus, a snapshot store, a memory manager, a security gate,
and a metrics engine, all driven here as a local CLI/REPL instead of
over a network (the core itself never listens on a socket).`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Built once per process: the repl command re-enters this same
		// root command for every line of input, and each line must see
		// the same Engine and its accumulated state, not a fresh one.
		if eng != nil {
			return
		}
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
		eng = buildEngine(cfg)
	},
}

func init() {
	rootCmd.AddCommand(storeCmd, snapshotCmd, containerCmd, metricsCmd, securityCmd, replCmd, serveCmd)
}

// buildEngine wires an Engine from cfg, opening a durable snapshot
// backend when cfg.SnapshotDBPath is set.
func buildEngine(cfg config.Config) *engine.Engine {
	var backend snapshot.Backend
	if cfg.SnapshotDBPath != "" {
		b, err := snapshot.OpenBoltBackend(cfg.SnapshotDBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open snapshot db %q: %v\n", cfg.SnapshotDBPath, err)
		} else {
			backend = b
		}
	}

	e := engine.New(engine.Config{
		PathCacheCeiling:  cfg.PathCacheCeiling,
		MaxSnapshots:      cfg.MaxSnapshots,
		SnapshotBackend:   backend,
		GlobalMemoryLimit: cfg.GlobalMemoryLimit,
		GCThresholdPct:    cfg.GCThresholdPct,
		GlobalPolicy:      security.DefaultPolicy(),
	})
	e.MetricsCollector().SetThreshold(func(th *metrics.Thresholds) {
		*th = cfg.Thresholds()
	})
	return e
}

// Store commands

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage document stores",
}

var storeInitCmd = &cobra.Command{
	Use:   "init NAME",
	Short: "Create a new named document store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		initial, _ := cmd.Flags().GetString("initial")
		val, err := parseJSONOrEmpty(initial)
		if err != nil {
			return err
		}
		if err := eng.InitStore(args[0], val); err != nil {
			return err
		}
		fmt.Printf("store %q created\n", args[0])
		return nil
	},
}

var storeSetCmd = &cobra.Command{
	Use:   "set NAME PATH VALUE",
	Short: "Set a dotted path to a JSON value",
	Args:  cobra.ExactArgs(3),
	RunE:  runDispatch(engine.OpSet),
}

var storeMergeCmd = &cobra.Command{
	Use:   "merge NAME PATH VALUE",
	Short: "Shallow-merge a JSON object into a dotted path",
	Args:  cobra.ExactArgs(3),
	RunE:  runDispatch(engine.OpMerge),
}

var storeUpdateCmd = &cobra.Command{
	Use:   "update NAME PATH VALUE",
	Short: "Replace the value at a dotted path",
	Args:  cobra.ExactArgs(3),
	RunE:  runDispatch(engine.OpUpdate),
}

var storeSelectCmd = &cobra.Command{
	Use:   "select NAME PATH",
	Short: "Read the value at a dotted path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := eng.Select(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(v)
	},
}

var storeListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every document store",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(strings.Join(storeNames(), "\n"))
		return nil
	},
}

func runDispatch(op engine.Op) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		val, err := parseJSON(args[2])
		if err != nil {
			return err
		}
		result, err := eng.Dispatch(args[0], op, args[1], val)
		if err != nil {
			return err
		}
		return printJSON(result)
	}
}

func init() {
	storeInitCmd.Flags().String("initial", "", "JSON value to seed the store's root with")
	storeCmd.AddCommand(storeInitCmd, storeSetCmd, storeMergeCmd, storeUpdateCmd, storeSelectCmd, storeListCmd)
}

// Snapshot commands

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage store snapshots",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Capture a snapshot of a store's current root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := eng.CreateSnapshot(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("snapshot created: %s\n", snap.ID)
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore NAME SNAPSHOT_ID",
	Short: "Restore a store's root from a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := eng.RestoreSnapshot(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(root)
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every retained snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, snap := range eng.Snapshots().List() {
			fmt.Printf("%-12s %-20s %s\n", snap.ID, snap.StoreName, snap.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotRestoreCmd, snapshotListCmd)
}

// Container commands

var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Manage container lifecycle",
}

var containerCreateCmd = &cobra.Command{
	Use:   "create ID",
	Short: "Create and start a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		storeName, _ := cmd.Flags().GetString("store")
		statePath, _ := cmd.Flags().GetString("path")
		initial, _ := cmd.Flags().GetString("initial")
		memLimit, _ := cmd.Flags().GetInt("memory")
		policyName, _ := cmd.Flags().GetString("policy")

		val, err := parseJSONOrEmpty(initial)
		if err != nil {
			return err
		}
		if name == "" {
			name = args[0]
		}

		_, err = eng.Containers().Create(container.Config{
			ID:             args[0],
			Name:           name,
			StoreName:      storeName,
			StatePath:      statePath,
			InitialState:   val,
			MemoryLimit:    memLimit,
			EnableSecurity: true,
			Policy:         resolvePolicy(policyName),
		})
		if err != nil {
			return err
		}
		fmt.Printf("container %q created\n", args[0])
		return nil
	},
}

var containerRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Stop and remove a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := eng.Containers().Remove(args[0]); err != nil {
			return err
		}
		fmt.Printf("container %q removed\n", args[0])
		return nil
	},
}

var containerLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, c := range eng.Containers().List() {
			fmt.Printf("%-20s %-10s\n", c.ID(), c.Status())
		}
		return nil
	},
}

var containerCallCmd = &cobra.Command{
	Use:   "call ID FUNCTION",
	Short: "Run the security/execution-time gate for a function call against a container",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := eng.Containers().Call(args[0], args[1], nil); err != nil {
			return err
		}
		fmt.Printf("call %q on container %q passed the gate\n", args[1], args[0])
		return nil
	},
}

func init() {
	containerCreateCmd.Flags().String("name", "", "display name (defaults to ID)")
	containerCreateCmd.Flags().String("store", "containers", "document store backing this container")
	containerCreateCmd.Flags().String("path", "", "dotted path within the store holding this container's state")
	containerCreateCmd.Flags().String("initial", `{"count":0}`, "JSON value to seed the container's state path with")
	containerCreateCmd.Flags().Int("memory", 1024*1024, "memory pool size in bytes")
	containerCreateCmd.Flags().String("policy", "default", "security policy: default, strict, or permissive")
	containerCmd.AddCommand(containerCreateCmd, containerRmCmd, containerLsCmd, containerCallCmd)
}

// Metrics commands

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Inspect collected metrics",
}

var metricsReportCmd = &cobra.Command{
	Use:   "report CONTAINER_ID",
	Short: "Print a container's performance report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, ok := eng.GetMetrics(args[0])
		if !ok {
			return fmt.Errorf("no metrics registered for container %q", args[0])
		}
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	metricsCmd.AddCommand(metricsReportCmd)
}

// Security commands

var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Manage per-container security policy",
}

var securityApplyCmd = &cobra.Command{
	Use:   "apply-policy CONTAINER_ID",
	Short: "Apply a named security policy to a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policyName, _ := cmd.Flags().GetString("policy")
		policy := resolvePolicy(policyName)
		eng.Security().ApplyPolicy(args[0], policy)
		fmt.Printf("policy %q applied to container %q (allowed: %s)\n",
			policyName, args[0], strings.Join(policy.ListAllowedFunctions(), ","))
		return nil
	},
}

func init() {
	securityApplyCmd.Flags().String("policy", "default", "security policy: default, strict, or permissive")
	securityCmd.AddCommand(securityApplyCmd)
}

func resolvePolicy(name string) security.Policy {
	switch name {
	case "strict":
		return security.StrictPolicy()
	case "permissive":
		return security.PermissivePolicy()
	default:
		return security.DefaultPolicy()
	}
}

// serve starts the ambient Prometheus/health HTTP endpoint without
// entering the REPL, for hosts that want metrics scraping alongside a
// long-lived in-process Engine driven some other way (tests, embedding).
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Prometheus metrics and health HTTP endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		startObservability(eng, cfg.MetricsAddr)
		fmt.Printf("serving metrics and health on http://%s\n", cfg.MetricsAddr)
		select {}
	},
}

func startObservability(e *engine.Engine, addr string) {
	exporter := metrics.NewPromExporter(e, 0)
	exporter.Start()

	hs := api.NewHealthServer(e)
	go func() {
		if err := hs.Start(addr); err != nil {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()
}

// repl is the interactive shell mode spec.md's "host" role implies: one
// process, one Engine, a sequence of operations against it, since the
// core keeps no state across process restarts anyway.
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session against a single Engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		startObservability(eng, cfg.MetricsAddr)
		fmt.Println("corestate repl — type 'help' for commands, 'exit' to quit")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				break
			}
			if line == "help" {
				printReplHelp()
				continue
			}
			dispatchReplLine(line)
		}
		return nil
	},
}

func printReplHelp() {
	fmt.Println(`commands:
  store init NAME [--initial JSON]
  store set|merge|update NAME PATH JSON
  store select NAME PATH
  store ls
  snapshot create|restore NAME [ID]
  snapshot list
  container create ID [--store STORE] [--path PATH]
  container rm|call ID [FUNCTION]
  container ls
  metrics report ID
  security apply-policy ID [--policy POLICY]
  exit`)
}

// dispatchReplLine re-enters the cobra command tree for one line of
// REPL input, reusing the same subcommands and flag parsing the
// one-shot CLI invocations use rather than hand-rolling a second
// parser for interactive mode.
func dispatchReplLine(line string) {
	rootCmd.SetArgs(strings.Fields(line))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

func storeNames() []string {
	return eng.StoreNames()
}

// parseJSON accepts a JSON value (object, array, number, bool, null, or
// quoted string), falling back to treating the argument as a bare
// string so a shell invocation like `store set docs user.name ada`
// doesn't force the caller to quote every plain word.
func parseJSON(s string) (corestate.Value, error) {
	var v corestate.Value
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n, nil
	}
	return s, nil
}

func parseJSONOrEmpty(s string) (corestate.Value, error) {
	if s == "" {
		return nil, nil
	}
	return parseJSON(s)
}

func printJSON(v corestate.Value) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
