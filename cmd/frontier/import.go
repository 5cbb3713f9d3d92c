package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/aristath/frontier/internal/domain"
	"github.com/google/subcommands"
)

type importCmd struct{}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "load monthly returns from a CSV file" }
func (*importCmd) Usage() string {
	return `frontier import <file.csv>

  Reads a table whose header is "date" followed by one ticker per column, with
  one row per month of returns. Unknown tickers are added to the universe.
`
}

func (*importCmd) SetFlags(f *flag.FlagSet) {}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return fail(&domain.ValidationError{Field: "file", Reason: "expected exactly one CSV file"})
	}
	file, err := os.Open(f.Arg(0))
	if err != nil {
		return fail(err)
	}
	defer file.Close()

	s, err := openSession(false)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	n, err := s.container.UniverseRepo.ImportCSV(ctx, file)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Imported %d returns from %s\n", n, f.Arg(0))
	return subcommands.ExitSuccess
}
