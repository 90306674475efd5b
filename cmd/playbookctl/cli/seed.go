package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spark-playbook/playbook/internal/profiles"
)

// SeedFile lists businesses and the memberships linking profiles to them.
type SeedFile struct {
	Businesses []SeedBusiness   `yaml:"businesses"`
	Members    []SeedMembership `yaml:"members"`
}

// SeedBusiness is one business row keyed by slug.
type SeedBusiness struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
	Color       string `yaml:"color"`
}

// SeedMembership links an existing profile, found by email, to a business.
type SeedMembership struct {
	Email    string `yaml:"email"`
	Business string `yaml:"business"`
	Primary  bool   `yaml:"primary"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

const defaultColor = "#6366f1"

// ParseSeed decodes and checks a seed document. Unknown keys are rejected.
func ParseSeed(r io.Reader) (SeedFile, error) {
	var file SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return SeedFile{}, errors.New("seed: empty document")
		}
		return SeedFile{}, fmt.Errorf("seed: decode: %w", err)
	}
	slugs := make(map[string]struct{}, len(file.Businesses))
	for i := range file.Businesses {
		b := &file.Businesses[i]
		if b.Name == "" {
			return SeedFile{}, fmt.Errorf("seed: business %d has no name", i+1)
		}
		if !slugPattern.MatchString(b.Slug) {
			return SeedFile{}, fmt.Errorf("seed: business %q has invalid slug %q", b.Name, b.Slug)
		}
		if _, dup := slugs[b.Slug]; dup {
			return SeedFile{}, fmt.Errorf("seed: duplicate slug %q", b.Slug)
		}
		slugs[b.Slug] = struct{}{}
		if b.Color == "" {
			b.Color = defaultColor
		}
	}
	for _, m := range file.Members {
		if m.Email == "" {
			return SeedFile{}, errors.New("seed: membership without email")
		}
		if _, ok := slugs[m.Business]; !ok {
			return SeedFile{}, fmt.Errorf("seed: membership for %s names unknown business %q", m.Email, m.Business)
		}
	}
	return file, nil
}

// SeedStore is satisfied by *profiles.Repository.
type SeedStore interface {
	UpsertBusiness(ctx context.Context, b profiles.Business) (profiles.Business, error)
	ProfileByEmail(ctx context.Context, email string) (*profiles.Profile, error)
	AddMembership(ctx context.Context, userID, businessID uuid.UUID, primary bool) error
}

// ApplySeed upserts every business, then links members. Members without a
// profile yet are reported and skipped.
func ApplySeed(ctx context.Context, store SeedStore, file SeedFile, out io.Writer) error {
	ids := make(map[string]uuid.UUID, len(file.Businesses))
	for _, b := range file.Businesses {
		saved, err := store.UpsertBusiness(ctx, profiles.Business{Name: b.Name, Slug: b.Slug, Description: b.Description, Color: b.Color})
		if err != nil {
			return err
		}
		ids[b.Slug] = saved.ID
		fmt.Fprintf(out, "business %s (%s)\n", b.Slug, saved.ID)
	}
	for _, m := range file.Members {
		p, err := store.ProfileByEmail(ctx, m.Email)
		if err != nil {
			return err
		}
		if p == nil {
			fmt.Fprintf(out, "skip %s: no profile\n", m.Email)
			continue
		}
		if err := store.AddMembership(ctx, p.UserID, ids[m.Business], m.Primary); err != nil {
			return err
		}
		fmt.Fprintf(out, "member %s -> %s\n", m.Email, m.Business)
	}
	return nil
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Upsert businesses and memberships from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			file, err := ParseSeed(f)
			if err != nil {
				return err
			}

			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			return ApplySeed(ctx, profiles.NewRepository(pool), file, cmd.OutOrStdout())
		},
	}
}
