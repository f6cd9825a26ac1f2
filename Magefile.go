//go:build mage
// +build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Build

func Build() error {
	return sh.Run(mg.GoCmd(), "build", "./...")
}

func Test() error {
	args := []string{"test"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	args = append(args, "./...")
	return sh.Run(mg.GoCmd(), args...)
}

func Vet() error {
	return sh.Run(mg.GoCmd(), "vet", "./...")
}

// Check vets, then tests.
// Set BUCKETSET_PG_TESTING_CONN or BUCKETSET_GCS_TESTING_CREDS
// to include the postgres and GCS store tests.
func Check() {
	mg.SerialDeps(Vet, Test)
}

// Serve runs a bucketset store server on a scratch sqlite database.
func Serve() error {
	return sh.RunV(mg.GoCmd(), "run", "./cmd/bucketset", "-config", "cmd/bucketset/testdata/serve.jsonc", "serve")
}
