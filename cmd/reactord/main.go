// Command reactord is the standalone reactor runtime process, grounded on
// original_source/src/main.c's argument parsing and startup sequence
// (parse flags, ignore SIGPIPE, create the listening socket, spawn one
// worker thread per configured worker, block until signaled).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	reactor "github.com/kayserve/reactor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("reactord", flag.ContinueOnError)
	port := fs.Int("p", 8080, "listening port")
	workers := fs.Int("c", 0, "worker count (default: logical CPU count, or 1 in --cli mode)")
	host := fs.String("h", "", "bind address (default 0.0.0.0, or :: with --6)")
	ipv6 := fs.Bool("6", false, "bind IPv6")
	node := fs.String("n", "localhost", "node name")
	modules := fs.String("m", "", "comma-separated plugin module paths")
	cliMode := fs.Bool("cli", false, "run without a listening socket")
	printCfg := fs.Bool("cfg", false, "print resolved configuration and continue")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	entrypoint := fs.Arg(0)

	ignoreSIGPIPE()

	n := *workers
	if n <= 0 {
		if *cliMode {
			n = 1
		} else {
			n = runtime.NumCPU()
		}
	}

	if *printCfg {
		fmt.Printf(
			"reactord: port=%d workers=%d host=%q ipv6=%v node=%q modules=%q cli=%v entrypoint=%q\n",
			*port, n, *host, *ipv6, *node, *modules, *cliMode, entrypoint,
		)
	}

	handler := buildHandler(*node, entrypoint)

	srv, err := reactor.New(handler,
		reactor.WithWorkers(n),
		reactor.WithLogger(reactor.NewDefaultLogger(reactor.LevelInfo)),
	)
	if err != nil {
		log.Printf("reactord: startup failed: %v", err)
		return 1
	}

	if !*cliMode {
		if err := srv.Listen(*host, *port, *ipv6); err != nil {
			log.Printf("reactord: listen failed: %v", err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		log.Printf("reactord: shutdown error: %v", err)
		return 1
	}
	return 0
}

// buildHandler resolves the positional entrypoint argument to a Handler:
// a compiled plugin exposing NewHandler(nodeName string) reactor.Handler
// if a path was given, otherwise the built-in example.
func buildHandler(nodeName, entrypoint string) reactor.Handler {
	if entrypoint == "" {
		return newEchoHandler(nodeName)
	}
	h, err := loadPluginHandler(entrypoint, nodeName)
	if err != nil {
		log.Printf("reactord: loading entrypoint %q failed, falling back to built-in: %v", entrypoint, err)
		return newEchoHandler(nodeName)
	}
	return h
}
