package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	log "github.com/echocat/slf4g"
	"github.com/echocat/slf4g/native"
	"github.com/echocat/slf4g/native/consumer"
	"github.com/echocat/slf4g/native/facade/value"
	"github.com/echocat/slf4g/native/formatter"

	"github.com/blaubaer/onair/pkg/app"
	"github.com/blaubaer/onair/pkg/common"
)

func main() {
	wf := &writerFacade{delegates: []io.Writer{os.Stderr}}
	buf := common.NewLineBuffer(2000, 4096)
	consumer.Default = consumer.NewWriter(wf)

	lv := value.NewProvider(native.DefaultProvider)
	lv.Consumer.Formatter.Codec = value.MappingFormatterCodec{
		"text": formatter.NewText(func(v *formatter.Text) {
			bv := true
			v.AllowMultiLineMessage = &bv
			v.MultiLineMessageAfterFields = &bv
		}),
		"json": formatter.NewJson(),
	}

	a := app.NewApp()

	cmd := kingpin.New("onair", "Coordinates exclusive access to microphone channels.")
	a.SetupConfiguration(cmd)

	cmd.Flag("log.level", "").
		SetValue(lv.Level)
	cmd.Flag("log.format", "").
		Default("text").
		SetValue(lv.Consumer.Formatter)
	cmd.Flag("log.color", "").
		Default("always").
		SetValue(lv.Consumer.Formatter.ColorMode)

	cmd.Command("serve", "Runs the coordinator.").
		Default().
		Action(func(*kingpin.ParseContext) error {
			if err := a.Initialize(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			return a.Serve(ctx)
		})

	cmd.Command("console", "Interactive client of a running coordinator.").
		Action(func(*kingpin.ParseContext) error {
			if err := a.Initialize(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			// Log lines would break the prompt, they are only kept for the log command.
			wf.set([]io.Writer{buf})
			defer wf.set([]io.Writer{os.Stderr})
			return a.Console(ctx, buf)
		})

	kingpin.MustParse(cmd.Parse(os.Args[1:]))
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case <-c:
			log.Info("Terminated. Going down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

type writerFacade struct {
	delegates []io.Writer
	mutex     sync.RWMutex
}

func (this *writerFacade) Write(p []byte) (n int, err error) {
	this.mutex.RLock()
	defer this.mutex.RUnlock()

	for i, w := range this.delegates {
		var nn int
		if nn, err = w.Write(p); err != nil {
			return n, err
		}
		if i == 0 {
			n = nn
		} else if n != nn {
			return n, fmt.Errorf("the previous writer wrote %d, but the current one wrote %d bytes", n, nn)
		}
	}

	return
}

func (this *writerFacade) set(next []io.Writer, whileChange ...func(current, next []io.Writer)) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	current := this.delegates
	for _, fn := range whileChange {
		fn(current, next)
	}
	this.delegates = next
}
