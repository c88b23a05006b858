// Package main is the orchestrator binary.
//
//	orchestrator [-config path] [-env path] run
//	orchestrator [-admin url] status
//	orchestrator [-admin url] scatter <event> [arg...]
//
// run starts the owner loop, the built-in services, the scheduler, and the
// admin API, and shuts everything down on SIGINT or SIGTERM. status and
// scatter talk to a running instance through its admin API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/R3E-Network/service_orchestrator/internal/admin"
	"github.com/R3E-Network/service_orchestrator/internal/app"
	"github.com/R3E-Network/service_orchestrator/internal/config"
	"github.com/R3E-Network/service_orchestrator/internal/engine/manager"
	"github.com/R3E-Network/service_orchestrator/internal/httputil"
	"github.com/R3E-Network/service_orchestrator/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config (default "+config.DefaultPath+")")
	envPath := flag.String("env", ".env", "Optional .env file loaded before the config")
	adminURL := flag.String("admin", "", "Admin API base URL for status and scatter (default from config)")
	timeout := flag.Duration("timeout", 5*time.Second, "Request timeout for status and scatter")
	flag.Usage = usage
	flag.Parse()

	if err := config.LoadEnvFile(*envPath); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *adminURL == "" {
		*adminURL = "http://" + cfg.Admin.Addr
	}

	cmd := "run"
	args := flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		err = run(cfg)
	case "status":
		err = status(os.Stdout, newClient(*adminURL, *timeout), *timeout)
	case "scatter":
		err = scatter(os.Stdout, newClient(*adminURL, *timeout), *timeout, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] run|status|scatter <event> [arg...]\n", os.Args[0])
	flag.PrintDefaults()
}

func run(cfg *config.Config) error {
	log := logger.New(cfg.Logging)

	application, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

func newClient(baseURL string, timeout time.Duration) *httputil.Client {
	return httputil.NewClient(httputil.ClientConfig{
		BaseURL:    baseURL,
		Timeout:    timeout,
		MaxRetries: 2,
		RetryDelay: 200 * time.Millisecond,
	})
}

func status(w io.Writer, client *httputil.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := client.Get(ctx, "/services")
	if err != nil {
		return err
	}
	var statuses []manager.ServiceStatus
	if err := httputil.DecodeResponse(resp, &statuses); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tSTATUS\tAUTOSTART\tDEPENDS ON")
	for _, st := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%v\n", st.ID, st.Status, st.AutoStart, st.Dependencies)
	}
	return tw.Flush()
}

func scatter(w io.Writer, client *httputil.Client, timeout time.Duration, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("event name required")
	}
	req := admin.ScatterRequest{}
	for _, a := range args[1:] {
		req.Args = append(req.Args, a)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := client.Post(ctx, "/events/"+args[0], req)
	if err != nil {
		return err
	}
	var ack admin.ScatterResponse
	if err := httputil.DecodeResponse(resp, &ack); err != nil {
		return err
	}
	fmt.Fprintf(w, "scattered %s (trace %s)\n", ack.Event, ack.TraceID)
	return nil
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetPrefix("[orchestrator] ")
}
