package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/work"
	"github.com/aristath/frontier/pkg/logger"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

// session opens the databases and services for one command.
type session struct {
	cfg       *config.Config
	log       zerolog.Logger
	container *di.Container
}

func openSession(verbose bool) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})

	container, _, err := di.Wire(cfg, log, nil)
	if err != nil {
		return nil, err
	}
	// Nothing streams events in the CLI, so progress goes to the log
	container.TuningService.SetEventEmitter(work.NewLogEmitter(log))
	return &session{cfg: cfg, log: log, container: container}, nil
}

func (s *session) Close() {
	if err := s.container.Close(); err != nil {
		s.log.Error().Err(err).Msg("Failed to close databases")
	}
}

// fail prints err and maps it to an exit status.
func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if domain.IsValidation(err) {
		return subcommands.ExitUsageError
	}
	return subcommands.ExitFailure
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// problemFlags are shared by every command that builds an optimization problem.
type problemFlags struct {
	profile  string
	exclude  string
	refDate  string
	lookback int
	seed     int64
}

func (p *problemFlags) register(f *flag.FlagSet, defaultProfile string) {
	f.StringVar(&p.profile, "profile", defaultProfile, "Risk profile (conservative, moderate, aggressive, neutral)")
	f.StringVar(&p.exclude, "exclude", "", "Comma-separated asset ids to exclude")
	f.StringVar(&p.refDate, "ref", "", "Reference date YYYY-MM-DD; only history up to it is used")
	f.IntVar(&p.lookback, "lookback", 0, "Months of history to use (0 = all)")
	f.Int64Var(&p.seed, "seed", -1, "Random seed (-1 = configured default)")
}

func (p *problemFlags) riskProfile() (domain.RiskProfile, error) {
	return domain.ParseRiskProfile(p.profile)
}

func (p *problemFlags) excluded() ([]int64, error) {
	return parseIDs(p.exclude)
}

func (p *problemFlags) referenceDate() (*time.Time, error) {
	if p.refDate == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", p.refDate)
	if err != nil {
		return nil, &domain.ValidationError{Field: "ref", Reason: "expected YYYY-MM-DD"}
	}
	return &d, nil
}

func (p *problemFlags) seedPtr() *uint64 {
	if p.seed < 0 {
		return nil
	}
	s := uint64(p.seed)
	return &s
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, &domain.ValidationError{Field: "exclude", Reason: fmt.Sprintf("bad asset id %q", part)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseInts(field, s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, &domain.ValidationError{Field: field, Reason: fmt.Sprintf("bad integer %q", part)}
		}
		out = append(out, n)
	}
	return out, nil
}
