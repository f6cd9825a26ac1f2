package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
)

func (c maincmd) get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: get ADDR")
	}
	addr := bucketset.Address(args[0])
	n, err := c.x.Get(ctx, addr)
	if err != nil {
		return errors.Wrapf(err, "getting note %s", addr)
	}
	fmt.Println(n.Text)
	return nil
}
