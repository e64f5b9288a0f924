// Command hvctl is the operator shell for the hypervisor: it loads a
// board configuration from a YAML manifest, builds the partition set, and exposes a small set of subcommands for
// listing, starting, stopping, and inspecting partitions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/nxp-qoriq/ppchv/internal/partition"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	configPath := flag.String("config", "", "path to a YAML partition manifest")
	flag.CommandLine.Parse(os.Args[2:])

	cmd := os.Args[1]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		usage()
		return
	}

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "hvctl: -config is required")
		os.Exit(2)
	}
	data, err := os.ReadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hvctl: reading %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	sys, err := partition.BuildFromYAML(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hvctl: building config: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if err := dispatch(sys, cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "hvctl: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(sys *partition.System, cmd string, args []string) error {
	switch cmd {
	case "list-partitions":
		return cmdListPartitions(sys)
	case "partition-info":
		return cmdPartitionInfo(sys, args)
	case "start":
		return cmdStart(sys, args)
	case "stop":
		return cmdStop(sys, args)
	case "restart":
		return cmdRestart(sys, args)
	case "pause", "resume", "guest-device-tree", "master-device-tree", "paact":
		return fmt.Errorf("%s: not yet implemented in this build", cmd)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdListPartitions(sys *partition.System) error {
	for name, p := range sys.Partitions {
		fmt.Printf("%-16s %s\n", name, p.State())
	}
	return nil
}

func cmdPartitionInfo(sys *partition.System, args []string) error {
	p, err := lookup(sys, args)
	if err != nil {
		return err
	}
	fmt.Printf("name:    %s\n", p.Name)
	fmt.Printf("state:   %s\n", p.State())
	fmt.Printf("errors:  guest=%d global=%d internal=%d\n",
		p.Errors().Guest.Len(), p.Errors().Global.Len(), p.Errors().Internal.Len())
	return nil
}

func cmdStart(sys *partition.System, args []string) error {
	p, err := lookup(sys, args)
	if err != nil {
		return err
	}
	return p.Start(context.Background())
}

func cmdStop(sys *partition.System, args []string) error {
	p, err := lookup(sys, args)
	if err != nil {
		return err
	}
	return p.Stop()
}

func cmdRestart(sys *partition.System, args []string) error {
	p, err := lookup(sys, args)
	if err != nil {
		return err
	}
	return p.Restart()
}

func lookup(sys *partition.System, args []string) (*partition.Partition, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: hvctl <command> -config FILE <partition-name>")
	}
	p, ok := sys.Partitions[args[0]]
	if !ok {
		return nil, fmt.Errorf("no such partition %q", args[0])
	}
	return p, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, strings.TrimSpace(`
usage: hvctl <command> -config FILE [args]

commands:
  list-partitions
  partition-info   <name>
  start            <name>
  stop             <name>
  restart          <name>
  guest-device-tree, master-device-tree, paact, pause, resume  (reserved)
`))
}
