package software

import (
	"context"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// scriptHost runs a page's inline scripts against a minimal document.
type scriptHost struct {
	vm     *goja.Runtime
	title  string
	titles []string
	logger *zap.Logger
}

func newScriptHost(title string, logger *zap.Logger) (*scriptHost, error) {
	h := &scriptHost{vm: goja.New(), title: title, logger: logger}

	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := h.vm.Set(name, goja.Undefined()); err != nil {
			return nil, err
		}
	}

	console := h.vm.NewObject()
	if err := console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.String()
		}
		h.logger.Debug("Page console", zap.Strings("args", args))
		return goja.Undefined()
	}); err != nil {
		return nil, err
	}
	if err := h.vm.Set("console", console); err != nil {
		return nil, err
	}

	document := h.vm.NewObject()
	getter := h.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return h.vm.ToValue(h.title)
	})
	setter := h.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		title := call.Argument(0).String()
		if title != h.title {
			h.title = title
			h.titles = append(h.titles, title)
		}
		return goja.Undefined()
	})
	if err := document.DefineAccessorProperty("title", getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return nil, err
	}
	if err := h.vm.Set("document", document); err != nil {
		return nil, err
	}
	return h, nil
}

// run executes each script in order. A failing script is logged and the rest
// still run.
func (h *scriptHost) run(ctx context.Context, scripts []string, timeout time.Duration) {
	for i, src := range scripts {
		if ctx.Err() != nil {
			return
		}
		stop := h.watch(ctx, timeout)
		_, err := h.vm.RunString(src)
		stop()
		h.vm.ClearInterrupt()
		if err != nil {
			h.logger.Debug("Page script failed", zap.Int("script", i), zap.Error(err))
		}
	}
}

// watch interrupts the running script when ctx ends or timeout elapses. The
// returned stop waits until no further interrupt can happen.
func (h *scriptHost) watch(ctx context.Context, timeout time.Duration) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})

	var (
		timer   *time.Timer
		expired <-chan time.Time
	)
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		expired = timer.C
	}

	go func() {
		defer close(exited)
		if timer != nil {
			defer timer.Stop()
		}
		select {
		case <-expired:
			h.vm.Interrupt("script timeout")
		case <-ctx.Done():
			h.vm.Interrupt("navigation cancelled")
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}
