// Package alert prints human-readable notices for high-scoring domains.
package alert

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/phishcatch/internal/severity"
)

// Alert is one notice for a scored domain.
type Alert struct {
	Domain string
	Score  int
	Bucket int
	Label  string
}

// For builds the alert for a score, or returns false below the alert threshold.
func For(domain string, score int) (Alert, bool) {
	if !severity.ShouldAlert(score) {
		return Alert{}, false
	}
	bucket := severity.Bucket(score)
	label, ok := severity.Label(bucket)
	if !ok {
		return Alert{}, false
	}
	return Alert{Domain: domain, Score: score, Bucket: bucket, Label: label}, true
}

// Prefix returns the fixed-width lead-in, e.g. "[!] Suspicious: ".
func (a Alert) Prefix() string {
	switch a.Label {
	case severity.LabelSuspicious:
		return "[!] Suspicious: "
	case severity.LabelLikely:
		return "[!] Likely    : "
	default:
		return "[+] Potential : "
	}
}

// Console writes colorized alerts to an output stream.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	critical lipgloss.Style
	high     lipgloss.Style
	medium   lipgloss.Style
	low      lipgloss.Style
}

// NewConsole creates a console notifier writing to out.
func NewConsole(out io.Writer) *Console {
	red := lipgloss.Color("9")
	yellow := lipgloss.Color("11")
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:      out,
		critical: r.NewStyle().Foreground(red).Underline(true).Bold(true),
		high:     r.NewStyle().Foreground(red).Underline(true),
		medium:   r.NewStyle().Foreground(yellow).Underline(true),
		low:      r.NewStyle().Underline(true),
	}
}

// Notify prints a single alert line.
func (c *Console) Notify(a Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s%s (score=%d)\n", a.Prefix(), c.style(a.Bucket).Render(a.Domain), a.Score)
}

func (c *Console) style(bucket int) lipgloss.Style {
	switch bucket {
	case severity.Critical:
		return c.critical
	case severity.High:
		return c.high
	case severity.Medium:
		return c.medium
	default:
		return c.low
	}
}
