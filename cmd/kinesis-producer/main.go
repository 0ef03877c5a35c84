// Command kinesis-producer runs the batching, aggregating, rate-limited
// producer pipeline as a standalone process against a configured
// Kinesis-shaped stream.
package main

import (
	"context"

	"github.com/usedatabrew/kinesis-producer/internal/cli"
)

func main() {
	cli.Run(context.Background())
}
