package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// noteText is the text of a note given on the command line,
// or if there is none, on stdin.
func noteText(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	text, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", errors.Wrap(err, "reading stdin")
	}
	return strings.TrimRight(string(text), "\n"), nil
}

func (c maincmd) put(ctx context.Context, args []string) error {
	text, err := noteText(args)
	if err != nil {
		return err
	}
	n := note{Text: text}
	addr, err := c.x.Store(ctx, n)
	if err != nil {
		return errors.Wrap(err, "storing note")
	}
	key, err := c.x.Key(n)
	if err != nil {
		return errors.Wrap(err, "computing bucket key")
	}
	fmt.Printf("%s %s\n", addr, key)
	return nil
}
