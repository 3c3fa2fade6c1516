package main

import (
	"context"

	"etlpipe/internal/cli"
)

func main() {
	cli.ExecuteContext(context.Background())
}
