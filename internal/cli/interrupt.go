package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
)

// InterruptHandler turns SIGINT or SIGTERM into cancellation of a review
// context and tells the user how to pick the review back up.
type InterruptHandler struct {
	out         io.Writer
	cancel      context.CancelFunc
	resumeHint  string
	once        sync.Once
	interrupted atomic.Bool
}

// NewInterruptHandler writes its notice to out, or stdout when out is nil.
func NewInterruptHandler(out io.Writer) *InterruptHandler {
	if out == nil {
		out = os.Stdout
	}
	return &InterruptHandler{out: out}
}

// HandleInterrupts derives a context that is canceled on the first signal.
// resumeHint, when set, is the command that continues the review.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context, resumeHint string) context.Context {
	ctx, h.cancel = context.WithCancel(ctx)
	h.resumeHint = resumeHint

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			h.interrupt()
		case <-ctx.Done():
		}
	}()
	return ctx
}

func (h *InterruptHandler) interrupt() {
	h.once.Do(func() {
		h.interrupted.Store(true)
		if _, err := io.WriteString(h.out, h.notice()); err != nil {
			slog.Warn("Failed to write interrupt notice", "error", err)
		}
		if h.cancel != nil {
			h.cancel()
		}
	})
}

func (h *InterruptHandler) notice() string {
	var b strings.Builder
	b.WriteString("\n\n" + FormatWarning("Review interrupted!") + "\n")
	if h.resumeHint != "" {
		b.WriteString(FormatInfo("Reviewed transactions are saved. Resume with: "+h.resumeHint) + "\n")
	}
	b.WriteString(FormatInfo("See you later!") + "\n")
	return b.String()
}

// WasInterrupted reports whether a signal canceled the context.
func (h *InterruptHandler) WasInterrupted() bool {
	return h.interrupted.Load()
}
