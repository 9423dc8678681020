package main

import (
	"github.com/Paintersrp/leash/internal/cli"
	"github.com/Paintersrp/leash/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
