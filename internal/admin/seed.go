package admin

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/malbeclabs/genbi/pkg/retrieval"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Samples []retrieval.Sample `yaml:"samples"`
}

// Seeder writes samples into the retrieval index.
type Seeder interface {
	Seed(ctx context.Context, profile string, kind retrieval.Kind, samples []retrieval.Sample) (int, error)
}

// LoadSamples reads question/SQL pairs from a YAML file, or the built-in samples
// when path is empty.
func LoadSamples(path string) ([]retrieval.Sample, error) {
	data := defaultSeed
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read samples: %w", err)
		}
	}
	return parseSamples(data)
}

func parseSamples(data []byte) ([]retrieval.Sample, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse samples: %w", err)
	}
	samples := make([]retrieval.Sample, 0, len(f.Samples))
	for i, s := range f.Samples {
		s.Question = strings.TrimSpace(s.Question)
		s.SQL = strings.TrimSpace(s.SQL)
		if s.Question == "" || s.SQL == "" {
			return nil, fmt.Errorf("sample %d: question and sql are required", i)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

type SeedConfig struct {
	Profile string
	Kind    retrieval.Kind
	Samples []retrieval.Sample
	DryRun  bool
}

// Seed writes the samples for a profile and reports how many were written.
func Seed(ctx context.Context, log *slog.Logger, store Seeder, cfg SeedConfig) (int, error) {
	if cfg.Profile == "" {
		return 0, errors.New("profile is required")
	}
	if cfg.Kind == "" {
		cfg.Kind = retrieval.KindQuery
	}
	if cfg.DryRun {
		for _, s := range cfg.Samples {
			log.Info("[DRY RUN] would seed sample", "profile", cfg.Profile, "kind", cfg.Kind, "question", s.Question)
		}
		return 0, nil
	}

	n, err := store.Seed(ctx, cfg.Profile, cfg.Kind, cfg.Samples)
	if err != nil {
		return n, fmt.Errorf("seeded %d of %d samples: %w", n, len(cfg.Samples), err)
	}
	log.Info("seeded samples", "profile", cfg.Profile, "kind", cfg.Kind, "count", n)
	return n, nil
}
