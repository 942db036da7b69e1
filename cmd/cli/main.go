// cmd/cli/main.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/keshon/switchboard/internal/commands"
	"github.com/keshon/switchboard/internal/middleware"
	"github.com/keshon/switchboard/pkg/cmd"
	"github.com/keshon/switchboard/pkg/dispatch"
	"github.com/keshon/switchboard/pkg/platform"
	"github.com/keshon/switchboard/pkg/platform/memory"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "switchboard",
		Short:        "Inspect and drive the command tree without a chat platform",
		SilenceUsage: true,
	}
	root.AddCommand(newTreeCmd(), newRunCmd())
	return root
}

func newTreeCmd() *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "tree",
		Short: "Print the registered command tree",
		RunE: func(c *cobra.Command, _ []string) error {
			e, _, err := newConsoleEngine(time.Minute, 16, nil)
			if err != nil {
				return err
			}
			defs := e.Definitions()
			if asJSON {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(defs)
			}
			printTree(c.OutOrStdout(), defs, 0)
			return nil
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print the serialized definitions")
	return c
}

func newRunCmd() *cobra.Command {
	var (
		ttl   time.Duration
		depth int
		user  string
		guild string
	)
	c := &cobra.Command{
		Use:   "run",
		Short: "Read interactions from stdin and print what the bot would send",
		Long: `Each input line is one interaction:

  /base hello                 invoke a command
  /roll formula=2d6           invoke with options
  complete formula /roll d1   request suggestions for an option
  click m1 c2                 activate component c2 on message m1
  submit c3 note=hello        submit modal c3 with its inputs
  delete m1                   delete message m1`,
		RunE: func(c *cobra.Command, _ []string) error {
			var (
				pending sync.WaitGroup
				mu      sync.Mutex
			)
			e, client, err := newConsoleEngine(ttl, depth, func(_ *platform.Event, s dispatch.State) {
				if s == dispatch.StateDone || s == dispatch.StateFailed {
					pending.Done()
				}
			})
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			client.OnCall = func(call memory.Call) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintln(out, formatCall(call))
			}

			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			done := make(chan error, 1)
			go func() { done <- e.Run(ctx) }()

			p := parser{user: user, guild: guild, modals: client.Modal}
			readLines(ctx, c.InOrStdin(), func(line string) {
				ev, err := p.parse(line)
				if err != nil {
					mu.Lock()
					fmt.Fprintln(out, "error:", err)
					mu.Unlock()
					return
				}
				if ev.Kind != platform.EventMessageDelete {
					pending.Add(1)
				}
				client.Push(ev)
			})

			// end of input closes the stream once queued interactions are handled
			pending.Wait()
			client.Close()
			if err := <-done; err != nil && !errors.Is(err, dispatch.ErrEventStreamClosed) {
				return err
			}
			return nil
		},
	}
	c.Flags().DurationVar(&ttl, "binding-ttl", 15*time.Minute, "how long rendered components stay active")
	c.Flags().IntVar(&depth, "max-chain-depth", 16, "longest allowed command chain, 0 for unbounded")
	c.Flags().StringVar(&user, "user", "console", "name of the invoking user")
	c.Flags().StringVar(&guild, "guild", "console", "guild id, empty for a direct message")
	return c
}

func newConsoleEngine(ttl time.Duration, depth int, onTransition func(*platform.Event, dispatch.State)) (*dispatch.Engine, *memory.Client, error) {
	client := memory.New(16)
	e, err := dispatch.New(client, dispatch.Config{
		BindingTTL:    ttl,
		MaxChainDepth: depth,
		Middleware:    []dispatch.Middleware{middleware.WithCommandLogger()},
		OnTransition:  onTransition,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := commands.Register(e); err != nil {
		return nil, nil, err
	}
	return e, client, nil
}

func readLines(ctx context.Context, r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if line := strings.TrimSpace(sc.Text()); line != "" {
			fn(line)
		}
	}
	if err := sc.Err(); err != nil {
		log.Println("[WARN] Reading input:", err)
	}
}

func printTree(w io.Writer, defs []cmd.Definition, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, d := range defs {
		if d.IsGroup() {
			fmt.Fprintf(w, "%s%s/\n", indent, d.Name)
			printTree(w, d.Children, depth+1)
			continue
		}
		fmt.Fprintf(w, "%s%s - %s\n", indent, d.Name, d.Description)
		for _, o := range d.Options {
			req := ""
			if o.Required {
				req = ", required"
			}
			fmt.Fprintf(w, "%s    --%s (%s%s)\n", indent, o.Name, o.Type, req)
		}
	}
}
