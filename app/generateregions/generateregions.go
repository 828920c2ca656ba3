// Package generateregions implements the generate-regions application. It takes zero or more
// country codes or names as arguments; with none, every country that has regions is generated.
package generateregions

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/aaronland/gocloud-blob/bucket"
	"github.com/sfomuseum/go-flags/flagset"
	"github.com/whosonfirst/go-openbuildings/countries"
	"github.com/whosonfirst/go-openbuildings/regions"
)

func Run(ctx context.Context, logger *log.Logger) error {

	fs := DefaultFlagSet()
	return RunWithFlagSet(ctx, fs, logger)
}

func RunWithFlagSet(ctx context.Context, fs *flag.FlagSet, logger *log.Logger) error {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	flagset.Parse(fs)

	cfg, err := countries.Open(ctx, countries_uri)

	if err != nil {
		return fmt.Errorf("Failed to load country configuration, %w", err)
	}

	to_generate, err := Select(cfg, fs.Args()...)

	if err != nil {
		return err
	}

	target_bucket, err := bucket.OpenBucket(ctx, target_bucket_uri)

	if err != nil {
		return fmt.Errorf("Failed to open target bucket, %w", err)
	}

	defer target_bucket.Close()

	for _, c := range to_generate {

		logger.Printf("Generate regions for %s (%s)\n", c.Name, c.Code)

		keys, err := regions.Write(ctx, target_bucket, c)

		if err != nil {
			return fmt.Errorf("Failed to generate regions for %s, %w", c.Code, err)
		}

		for _, k := range keys {
			logger.Printf("Created %s\n", k)
		}

		logger.Printf("%d regions, %d subregions\n", len(c.Regions), len(c.Regions)*len(regions.Subregions))
	}

	return nil
}

// Select returns the countries matching each of q, or every country with regions if q is empty.
func Select(cfg *countries.Config, q ...string) ([]countries.Country, error) {

	selected := make([]countries.Country, 0)

	if len(q) == 0 {

		for _, c := range cfg.Countries() {

			if len(c.Regions) > 0 {
				selected = append(selected, c)
			}
		}

		return selected, nil
	}

	for _, name := range q {

		c, err := cfg.Lookup(name)

		if err != nil {
			return nil, err
		}

		selected = append(selected, c)
	}

	return selected, nil
}
