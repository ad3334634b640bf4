package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/aru-oka/occusight/vision-server/internal/domains"
	"github.com/aru-oka/occusight/vision-server/internal/logger"
	"github.com/aru-oka/occusight/vision-server/internal/overlay"
	"github.com/aru-oka/occusight/vision-server/internal/report"
)

// Console is the interactive command surface. Commands mutate the
// registry and the reporter; every command answers with a
// human-readable status line and never touches process state beyond
// the component it addresses.
type Console struct {
	registry   *domains.Registry
	reporter   *report.Reporter
	compositor *overlay.Compositor
	in         io.Reader
	out        io.Writer
}

// New creates a console over the given components.
func New(registry *domains.Registry, reporter *report.Reporter,
	compositor *overlay.Compositor, in io.Reader, out io.Writer) *Console {
	return &Console{
		registry:   registry,
		reporter:   reporter,
		compositor: compositor,
		in:         in,
		out:        out,
	}
}

// Run reads commands line by line until the input ends. A pending
// "domain add" blocks the loop until the selection resolves.
func (c *Console) Run() {
	scanner := bufio.NewScanner(c.in)
	fmt.Fprintln(c.out, `type "help" for commands`)

	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fmt.Fprintln(c.out, c.Execute(line))
	}
}

// Execute parses and runs one command line, returning the status line.
func (c *Console) Execute(line string) string {
	cmd, err := parseCommand(line)
	if err != nil {
		return fmt.Sprintf("%v\n%s", err, usageText)
	}

	switch cmd.kind {
	case cmdHelp:
		return usageText

	case cmdServerGet:
		if endpoint := c.reporter.Endpoint(); endpoint != "" {
			return fmt.Sprintf("report endpoint: %s", endpoint)
		}
		return "report endpoint not set"

	case cmdServerSet:
		url := cmd.arg
		if url == "-" {
			url = ""
		}
		c.reporter.SetEndpoint(url)
		if url == "" {
			return "report endpoint cleared"
		}
		return fmt.Sprintf("report endpoint set to %s", url)

	case cmdDomainList:
		table := c.registry.List()
		if len(table) == 0 {
			return "no domains defined"
		}
		var b strings.Builder
		for i, dom := range table {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%s: (%.3f, %.3f) - (%.3f, %.3f)",
				dom.Name, dom.Rect.X1, dom.Rect.Y1, dom.Rect.X2, dom.Rect.Y2)
		}
		return b.String()

	case cmdDomainAdd:
		return c.addDomain(cmd.arg)

	case cmdDomainDel:
		if err := c.registry.Remove(cmd.arg); err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return fmt.Sprintf("domain %q deleted", cmd.arg)

	case cmdDomainClear:
		c.registry.Clear()
		return "all domains cleared"

	case cmdDomainSave:
		if err := c.registry.Save(cmd.arg); err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return fmt.Sprintf("domains saved to %s", cmd.arg)

	case cmdDomainLoad:
		if err := c.registry.Load(cmd.arg); err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return fmt.Sprintf("domains loaded from %s", cmd.arg)
	}

	return usageText
}

// addDomain arms the two-click selection and blocks until it
// resolves. Without a rendered frame there is nothing to click on,
// so the selection is refused up front.
func (c *Console) addDomain(name string) string {
	if w, h := c.compositor.FrameSize(); w == 0 || h == 0 {
		return fmt.Sprintf("error: %v", domains.ErrNoFrame)
	}

	fmt.Fprintf(c.out, "click two corners for %q in the web view (right-click resets)\n", name)
	if err := c.registry.BeginSelection(name); err != nil {
		logger.Debug("console", "selection for %q: %v", name, err)
		return fmt.Sprintf("error: %v", err)
	}
	return fmt.Sprintf("domain %q added", name)
}
