package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	color2 "github.com/fatih/color"
	"github.com/mattn/go-colorable"
)

var (
	Default = New(os.Stderr, true)
	bold    = color2.New(color2.Bold)
	boldred = color2.New(color2.Bold, color2.FgRed)
)

var Strings = [...]string{
	log.DebugLevel: "DEBUG",
	log.InfoLevel:  " INFO",
	log.WarnLevel:  " WARN",
	log.ErrorLevel: "ERROR",
	log.FatalLevel: "FATAL",
}

// Fields that are printed ahead of everything else on a line so that the
// request a message belongs to is easy to spot.
var leading = []string{"request_id", "user"}

type Handler struct {
	mu      sync.Mutex
	Writer  io.Writer
	Padding int
	// When set, any "error" field is followed by its stacktrace. Only errors at
	// the error level or above print one.
	Stacktrace bool
}

// New returns a handler writing to w. Colors are only used when the writer is
// a file and they have been requested.
func New(w io.Writer, useColors bool) *Handler {
	h := &Handler{Padding: 2, Stacktrace: true}
	if f, ok := w.(*os.File); ok && useColors {
		h.Writer = colorable.NewColorable(f)
	} else {
		h.Writer = colorable.NewNonColorable(w)
	}
	return h
}

// HandleLog implements log.Handler.
func (h *Handler) HandleLog(e *log.Entry) error {
	color := cli.Colors[e.Level]
	level := Strings[e.Level]

	h.mu.Lock()
	defer h.mu.Unlock()

	color.Fprintf(h.Writer, "%s: [%s] %-25s", bold.Sprintf("%*s", h.Padding+1, level), time.Now().Format(time.StampMilli), e.Message)

	for _, name := range h.order(e.Fields) {
		fmt.Fprintf(h.Writer, " %s=%v", color.Sprint(name), e.Fields.Get(name))
	}
	fmt.Fprintln(h.Writer)

	if !h.Stacktrace || e.Level < log.ErrorLevel {
		return nil
	}
	if err, ok := e.Fields.Get("error").(error); ok {
		// Attach the stacktrace if it is missing at this point, but don't point
		// it specifically to this line since that is irrelevant.
		err = errors.WithStackDepthIf(err, 1)
		fmt.Fprintf(h.Writer, "\n%s\n%+v\n\n", boldred.Sprintf("Stacktrace:"), err)
	}
	return nil
}

// order returns the field names with the leading fields first and the rest in
// alphabetical order.
func (h *Handler) order(fields log.Fields) []string {
	names := make([]string, 0, len(fields))
	for _, name := range leading {
		if _, ok := fields[name]; ok {
			names = append(names, name)
		}
	}
	for _, name := range fields.Names() {
		if name == "source" || isLeading(name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

func isLeading(name string) bool {
	for _, l := range leading {
		if l == name {
			return true
		}
	}
	return false
}
