// kernelctl is a command-line tool for exercising the kernel against a
// YAML workflow document without a running server, grounded on the
// teacher's cmd/cli (flag.NewFlagSet subcommands, a single usage banner, no
// external CLI framework).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sciflow/kernel/internal/application/importer"
	"github.com/sciflow/kernel/internal/domain"
	"github.com/sciflow/kernel/internal/infrastructure/config"
	"github.com/sciflow/kernel/pkg/kernel"
)

const usage = `kernelctl - scientific-workflow kernel tool

USAGE:
    kernelctl <command> [options]

COMMANDS:
    submit <file>     Expand a YAML workflow document and print the
                      materialized node instances
    validate <file>   Parse and structurally validate a YAML workflow
                      document without submitting it
    version           Show version information
    help              Show this help message

SUBMIT OPTIONS:
    -timeout <duration>   Operation timeout (default: 30s)

EXAMPLES:
    kernelctl validate examples/workflow.yaml
    kernelctl submit examples/workflow.yaml
`

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "submit":
		handleSubmit(os.Args[2:])
	case "validate":
		handleValidate(os.Args[2:])
	case "version":
		fmt.Printf("kernelctl v%s\n", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func handleValidate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: validate requires a file path")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	spec, err := loadSpec(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := spec.ValidateStructure(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid workflow: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK: %d node(s), %d relation(s)\n", len(spec.NodeSpecs), len(spec.NodeRelations))
}

func handleSubmit(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: submit requires a file path")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	timeout := fs.Duration("timeout", 30*time.Second, "operation timeout")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	spec, err := loadSpec(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	k := kernel.NewMemoryKernel(config.Load())
	instance, err := k.SubmitWorkflow(ctx, spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to submit workflow: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Workflow instance: %s\n", instance.ID)
	fmt.Printf("Nodes materialized: %d\n", len(instance.Nodes))
	for _, n := range instance.Nodes {
		fmt.Printf("  - %s  name=%q  status=%s  parent=%v\n", n.ID, n.Name, n.Status, n.IsParent)
	}
}

func loadSpec(path string) (domain.WorkflowSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.WorkflowSpec{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return importer.FromYAML(data)
}
