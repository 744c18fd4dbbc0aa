package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/text/width"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// statusPrinter renders notifications on a terminal. On a TTY the loading
// messages share one line that is redrawn in place; elsewhere every
// notification becomes its own line.
type statusPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	tty    bool
	width  int
	active bool // a status line is on screen
}

func newStatusPrinter(w io.Writer, tty bool, cols int) *statusPrinter {
	if cols <= 0 {
		cols = 80
	}
	return &statusPrinter{w: w, tty: tty, width: cols}
}

// Event renders one notification.
func (p *statusPrinter) Event(e domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Kind {
	case domain.NotifyLoadingStart, domain.NotifyLoadingUpdate:
		if p.tty {
			fmt.Fprintf(p.w, "\r\033[K%s", truncate("… "+e.Message, p.width-1))
			p.active = true
			return
		}
		fmt.Fprintf(p.w, "... %s\n", e.Message)

	case domain.NotifyLoadingEnd:
		p.clear()

	case domain.NotifyOpenExternal:
		p.clear()
		fmt.Fprintf(p.w, "%s %s\n", label(e.Severity), e.Message)
		var data struct {
			URL string `json:"url"`
		}
		if json.Unmarshal(e.Metadata, &data) == nil && data.URL != "" {
			fmt.Fprintf(p.w, "      %s\n", data.URL)
		}

	default:
		p.clear()
		fmt.Fprintf(p.w, "%s %s\n", label(e.Severity), e.Message)
	}
}

// Println prints a line without disturbing the status line bookkeeping.
func (p *statusPrinter) Println(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clear()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *statusPrinter) clear() {
	if p.active {
		fmt.Fprint(p.w, "\r\033[K")
		p.active = false
	}
}

func label(sev domain.EventSeverity) string {
	switch sev {
	case domain.EventSeveritySuccess:
		return "[ok]  "
	case domain.EventSeverityWarning:
		return "[warn]"
	case domain.EventSeverityError:
		return "[err] "
	default:
		return "[info]"
	}
}

// truncate cuts s to at most cols terminal cells. Wide East Asian runes
// take two cells.
func truncate(s string, cols int) string {
	if cols <= 0 {
		return ""
	}
	var b strings.Builder
	used := 0
	for _, r := range s {
		w := cellWidth(r)
		if used+w > cols {
			break
		}
		b.WriteRune(r)
		used += w
	}
	return b.String()
}

func cellWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}
