package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

func (c maincmd) key(_ context.Context, args []string) error {
	text, err := noteText(args)
	if err != nil {
		return err
	}
	key, err := c.x.Key(note{Text: text})
	if err != nil {
		return err
	}
	marker, err := c.x.Marker(key)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", key, marker)
	return nil
}

func (c maincmd) bucket(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: bucket KEY")
	}
	addrs, err := c.x.RetrieveByKey(ctx, args[0])
	if err != nil {
		return errors.Wrapf(err, "listing bucket %s", args[0])
	}
	for _, addr := range addrs {
		fmt.Println(addr)
	}
	return nil
}

func (c maincmd) all(ctx context.Context, _ []string) error {
	res, err := c.x.RetrieveAll(ctx)
	if err != nil {
		return errors.Wrap(err, "listing buckets")
	}
	for _, addr := range res.Addresses {
		fmt.Println(addr)
	}
	if len(res.Failed) == 0 {
		return nil
	}
	keys := make([]string, 0, len(res.Failed))
	for k := range res.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.logger.Error("could not list bucket", "key", k, "err", res.Failed[k])
	}
	return errors.Errorf("%d bucket(s) could not be listed", len(res.Failed))
}
