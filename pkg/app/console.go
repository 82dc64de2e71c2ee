package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/chzyer/readline"
	log "github.com/echocat/slf4g"
	"golang.org/x/sync/errgroup"

	"github.com/blaubaer/onair/pkg/client"
)

// Console runs an interactive client against the configured coordinator
// until ctx is done or the user leaves. logs is printed by the log command.
func (this *App) Console(ctx context.Context, logs io.WriterTo) error {
	remote, err := client.NewHTTPRemote(this.config.Client.Coordinator)
	if err != nil {
		return err
	}
	synchronizer := client.New(remote, this.config.Client)

	l, err := readline.NewEx(&readline.Config{
		Prompt:          "onair> ",
		AutoComplete:    consoleCompleter,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("cannot open terminal: %w", err)
	}
	closeTerminal := sync.OnceValue(l.Close)
	defer func() {
		_ = closeTerminal()
	}()

	c := &console{
		synchronizer: synchronizer,
		out:          l.Stdout(),
		logs:         logs,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return synchronizer.Run(gCtx)
	})
	g.Go(func() error {
		c.printNotices(gCtx)
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		_ = closeTerminal()
		return nil
	})
	g.Go(func() error {
		defer cancel()
		for {
			line, err := l.Readline()
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) || gCtx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			if err := c.execute(gCtx, line); errors.Is(err, errExit) {
				return nil
			} else if err != nil {
				_, _ = fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	})

	return g.Wait()
}

var errExit = errors.New("exit")

var consoleCompleter = readline.NewPrefixCompleter(
	readline.PcItem("list"),
	readline.PcItem("select"),
	readline.PcItem("take"),
	readline.PcItem("give"),
	readline.PcItem("record"),
	readline.PcItem("stop"),
	readline.PcItem("reset"),
	readline.PcItem("sleep"),
	readline.PcItem("awaken"),
	readline.PcItem("log"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
)

const consoleHelp = `Commands:
  list                     shows every known channel
  select <channel>         selects the channel to work with
  take [channel]           takes the selected or given channel
  give [channel]           gives the channel back
  record <name> [channel]  starts a capture with the given name
  stop [channel]           stops the capture and keeps its artifact
  reset [channel]          stops the capture and discards its artifact
  sleep                    gives every idle channel back and disconnects
  awaken                   connects again after sleep
  log                      shows the recent log lines
  exit                     leaves the console
`

type controller interface {
	Select(ctx context.Context, channelID string) error
	Take(ctx context.Context, channelID string) error
	Give(ctx context.Context, channelID string) error
	Record(ctx context.Context, channelID, name string) error
	Stop(ctx context.Context, channelID string) error
	Reset(ctx context.Context, channelID string) error
	Sleep(ctx context.Context) error
	Awaken(ctx context.Context) error
	View(ctx context.Context) (client.View, error)
	Notices() <-chan client.Notice
}

type console struct {
	synchronizer controller
	out          io.Writer
	logs         io.WriterTo
}

func (this *console) execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	command, args := fields[0], fields[1:]
	optional := func() string {
		if len(args) > 0 {
			return args[0]
		}
		return ""
	}

	switch command {
	case "list", "ls":
		return this.list(ctx)
	case "select":
		if len(args) != 1 {
			return fmt.Errorf("usage: select <channel>")
		}
		return this.synchronizer.Select(ctx, args[0])
	case "take":
		return this.synchronizer.Take(ctx, optional())
	case "give":
		return this.synchronizer.Give(ctx, optional())
	case "record":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: record <name> [channel]")
		}
		channelID := ""
		if len(args) == 2 {
			channelID = args[1]
		}
		return this.synchronizer.Record(ctx, channelID, args[0])
	case "stop":
		return this.synchronizer.Stop(ctx, optional())
	case "reset":
		return this.synchronizer.Reset(ctx, optional())
	case "sleep":
		return this.synchronizer.Sleep(ctx)
	case "awaken":
		return this.synchronizer.Awaken(ctx)
	case "log":
		if this.logs == nil {
			return nil
		}
		_, err := this.logs.WriteTo(this.out)
		return err
	case "help", "?":
		_, err := io.WriteString(this.out, consoleHelp)
		return err
	case "exit", "quit":
		return errExit
	default:
		return fmt.Errorf("unknown command %q, try help", command)
	}
}

func (this *console) list(ctx context.Context) error {
	view, err := this.synchronizer.View(ctx)
	if err != nil {
		return err
	}
	if len(view.Channels) == 0 {
		_, err := fmt.Fprintln(this.out, "No channels known.")
		return err
	}

	tw := tabwriter.NewWriter(this.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "\tCHANNEL\tNAME\tSTATE\tCAPTURE")
	for _, v := range view.Channels {
		marker := ""
		switch v.Channel.ID {
		case view.Displayed:
			marker = "*"
		case view.Current:
			marker = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n", marker, v.Channel.ID, v.Channel.DisplayName, v.State, v.Channel.CaptureArtifactName)
	}
	return tw.Flush()
}

func (this *console) printNotices(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-this.synchronizer.Notices():
			if !ok {
				return
			}
			if _, err := fmt.Fprintln(this.out, n); err != nil {
				log.WithError(err).
					Debug("Cannot print notice.")
			}
		}
	}
}
