package main

import (
	"fmt"
	"os"
)

const usage = `usage: admin <command> [flags]

commands:
  runs    list recorded navigation runs, newest first
  stats   per-outcome counts and averages
  graph   fetch a structure's nav graph as GeoJSON from a running simserver`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	switch os.Args[1] {
	case "runs":
		runsCmd(os.Args[2:])
	case "stats":
		statsCmd(os.Args[2:])
	case "graph":
		graphCmd(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}
