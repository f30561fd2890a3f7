// Package main provides the entry point for the uls-ingress CLI.
package main

import (
	"context"
	"os"

	"github.com/1vers1on/uls-ingress/cmd/uls-ingress/app"
)

// Version information populated at build time.
var version = "dev"

func main() {
	application := app.New(version)

	ctx, cancel := app.ContextWithSignals(context.Background())
	defer cancel()

	err := application.Execute(ctx, os.Args[1:])
	application.Shutdown()
	if err != nil {
		cancel()
		app.ExitOnError(err)
	}
}
