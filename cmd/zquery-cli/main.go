package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tinytelemetry/zquery/internal/model"
	"github.com/tinytelemetry/zquery/internal/socketrpc"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

const usage = `Usage: zquery-cli [flags] <items|query> [query flags]

Commands:
  items    list the items matched by a filter
  query    fetch history or trends for the matched items

Run "zquery-cli <command> -h" for the command's flags.
`

func main() {
	var configPath string
	var socketPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/zquery/config.yml)")
	flag.StringVar(&socketPath, "socket", "", "override socket path to connect to the zquery service")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("zquery CLI - Query Client\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if socketPath != "" {
		cfg.SocketPath = socketPath
	}

	client, err := socketrpc.Dial(cfg.SocketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot connect to zquery service at %s: %v\nIs the zquery service running? Start it with: zquery\n", cfg.SocketPath, err)
		os.Exit(1)
	}
	defer client.Close()
	client.SetTimeout(cfg.QueryTimeout)

	if err := run(client, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one subcommand against api and writes its output to w.
func run(api model.ReadAPI, args []string, w io.Writer) error {
	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	var (
		req     model.QueryRequest
		asJSON  bool
		noColor bool
	)
	fs.StringVar(&req.Group, "group", "", "group filter (name or /regex/flags)")
	fs.StringVar(&req.Host, "host", "", "host filter (name or /regex/flags)")
	fs.StringVar(&req.Application, "app", "", "application filter, empty for all")
	fs.StringVar(&req.Item, "item", "", "item filter (name or /regex/flags)")
	fs.BoolVar(&asJSON, "json", false, "print raw JSON instead of a table")
	fs.BoolVar(&noColor, "no-color", false, "disable table styling")

	switch cmd {
	case "items":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		items, err := api.ResolveItems(req.Target)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(w, items)
		}
		_, err = fmt.Fprintln(w, renderItems(items, !noColor))
		return err

	case "query":
		fs.StringVar(&req.Mode, "mode", model.ModeHistory, "history or trends")
		fs.StringVar(&req.ValueType, "value", "avg", "trend value: min, max or avg")
		fs.BoolVar(&req.AddHostName, "host-names", false, "prefix series labels with the host name")
		var from, to string
		fs.StringVar(&from, "from", "", "start: unix seconds, RFC3339, now or now-<duration> (empty = unbounded)")
		fs.StringVar(&to, "to", "", "end, same forms as -from")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		now := time.Now()
		var err error
		if req.From, err = parseTime(from, now); err != nil {
			return err
		}
		if req.To, err = parseTime(to, now); err != nil {
			return err
		}
		series, err := api.QueryTimeseries(req)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(w, series)
		}
		_, err = fmt.Fprintln(w, renderSeries(series, !noColor))
		return err

	default:
		return fmt.Errorf("unknown command %q (want items or query)", cmd)
	}
}
