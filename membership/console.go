package membership

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rking788/objective-tracker/models"
)

// ConsoleChooser prompts for a membership on a terminal. A single reader goroutine owns In
// for the lifetime of the chooser, so lines typed between prompts are kept for the next one.
type ConsoleChooser struct {
	In  io.Reader
	Out io.Writer

	once  sync.Once
	lines chan string
	err   error // set before lines is closed
}

func (c *ConsoleChooser) readLines() {
	scanner := bufio.NewScanner(c.In)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}

	c.err = scanner.Err()
	if c.err == nil {
		c.err = io.EOF
	}
	close(c.lines)
}

// Choose lists the candidates by platform and reads the number of the chosen one. Invalid
// answers are asked again.
func (c *ConsoleChooser) Choose(ctx context.Context, candidates []*models.Membership) (*models.Membership, error) {
	c.once.Do(func() {
		c.lines = make(chan string)
		go c.readLines()
	})

	fmt.Fprintln(c.Out, "Multiple platforms detected! Choose a platform to load:")
	for i, m := range candidates {
		fmt.Fprintf(c.Out, "  %d) %s\n", i+1, m.MembershipType)
	}

	for {
		fmt.Fprintf(c.Out, "Platform [1-%d]: ", len(candidates))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-c.lines:
			if !ok {
				return nil, fmt.Errorf("no platform chosen: %w", c.err)
			}

			n, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil || n < 1 || n > len(candidates) {
				fmt.Fprintln(c.Out, "Please enter one of the listed numbers.")
				continue
			}

			return candidates[n-1], nil
		}
	}
}
