package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"aura/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Daemon control socket")
	timeout := cli.DurationP("timeout", "t", 30*time.Second, "Reply timeout")
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: aura-ctl [flags] <status|capture|pause|resume|context|ask <command...>>")
		os.Exit(2)
	}

	req := ipc.Request{Cmd: args[0]}
	if len(args) > 1 {
		req.Args = strings.Join(args[1:], " ")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reply, err := ipc.Send(ctx, *socket, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "aura-daemon not running:", err)
		os.Exit(1)
	}

	if !reply.OK {
		fmt.Fprintln(os.Stderr, "error:", reply.Error)
		os.Exit(1)
	}
	if reply.Result != "" {
		fmt.Println(reply.Result)
	}
}
