package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ajramos/keycheck/internal/catalog"
	"github.com/ajramos/keycheck/internal/verify"
)

// Operator asks a human at a terminal to press each shortcut and report
// what happened. Answers are "p", "f" or "s", optionally followed by a note:
//
//	f types a slash into the search box
type Operator struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan string
}

// NewOperator creates an operator agent reading answers from in and writing
// prompts to out
func NewOperator(in io.Reader, out io.Writer) *Operator {
	return &Operator{in: in, out: out}
}

// Name implements verify.Named
func (o *Operator) Name() string { return "operator" }

// start launches the single reader goroutine; it ends when the input does
func (o *Operator) start() {
	o.once.Do(func() {
		o.lines = make(chan string)
		go func() {
			defer close(o.lines)
			sc := bufio.NewScanner(o.in)
			for sc.Scan() {
				o.lines <- sc.Text()
			}
		}()
	})
}

// Check implements verify.Agent
func (o *Operator) Check(ctx context.Context, def catalog.Definition) (verify.Observation, error) {
	o.start()

	fmt.Fprintf(o.out, "\n%s  [%s, %s]\n", def.Keys(), def.Category(), def.Context())
	if d := def.Description(); d != "" {
		fmt.Fprintf(o.out, "  %s\n", d)
	}
	fmt.Fprintf(o.out, "  expected: %s\n", def.ExpectedEffect())

	for {
		fmt.Fprint(o.out, "  result [p]ass/[f]ail/[s]kip (+ note): ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(o.out)
			return verify.Observation{}, ctx.Err()
		case line, ok := <-o.lines:
			if !ok {
				fmt.Fprintln(o.out)
				return verify.Observation{Skipped: true, Note: "operator input closed"}, nil
			}
			if obs, ok := parseAnswer(line); ok {
				return obs, nil
			}
			fmt.Fprintln(o.out, "  please answer p, f or s")
		}
	}
}

func parseAnswer(line string) (verify.Observation, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return verify.Observation{}, false
	}
	word, note, _ := strings.Cut(line, " ")
	note = strings.TrimSpace(note)

	switch strings.ToLower(word) {
	case "p", "pass", "y", "yes":
		return verify.Observation{Succeeded: true, Note: note}, true
	case "f", "fail", "n", "no":
		return verify.Observation{Note: note}, true
	case "s", "skip":
		return verify.Observation{Skipped: true, Note: note}, true
	}
	return verify.Observation{}, false
}
