package main

import (
	"context"
	"fmt"
	"os"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, apperr.Message(err))
		os.Exit(1)
	}
}
