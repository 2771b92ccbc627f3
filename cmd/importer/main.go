package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/samirrijal/siteintel/internal/adapters/postgres"
	"github.com/samirrijal/siteintel/internal/adapters/shapefile"
	"github.com/samirrijal/siteintel/internal/core/ports"
	"github.com/samirrijal/siteintel/internal/pkg/apnformat"
	"github.com/samirrijal/siteintel/internal/pkg/config"
	"github.com/samirrijal/siteintel/internal/pkg/logging"
)

const service = "siteintel-importer"

func main() {
	rootCmd := &cobra.Command{
		Use:   "importer",
		Short: "Load county parcel layers into the parcel store",
	}
	rootCmd.AddCommand(createShapefileCmd())
	rootCmd.AddCommand(createCountiesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createShapefileCmd() *cobra.Command {
	var (
		county    string
		fields    shapefile.FieldMap
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "shapefile [path.shp]",
		Short: "Import a WGS84 parcel shapefile for one county",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(service)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Log.Level, cfg.Log.Format, service)

			canonical := apnformat.CanonicalCounty(county)
			reg, err := cfg.Registry.Build()
			if err != nil {
				return err
			}
			if _, ok := reg.Lookup(canonical); !ok {
				return fmt.Errorf("unsupported county %q", county)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer db.Close()

			return importShapefile(ctx, postgres.NewParcelRepo(db), args[0], canonical, fields, batchSize)
		},
	}
	cmd.Flags().StringVar(&county, "county", "", "county the layer belongs to")
	cmd.Flags().StringVar(&fields.ID, "id-field", "APN", "DBF field with the parcel identifier")
	cmd.Flags().StringVar(&fields.Address, "address-field", "", "DBF field with the situs address")
	cmd.Flags().StringVar(&fields.Owner, "owner-field", "", "DBF field with the owner name")
	cmd.Flags().StringVar(&fields.Acreage, "acreage-field", "", "DBF field with the recorded acreage")
	cmd.Flags().StringVar(&fields.Lot, "lot-field", "", "DBF field with the lot number")
	cmd.Flags().StringVar(&fields.Block, "block-field", "", "DBF field with the block number")
	cmd.Flags().StringVar(&fields.Subdivision, "subdivision-field", "", "DBF field with the subdivision name")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "parcels per upsert batch")
	_ = cmd.MarkFlagRequired("county")
	return cmd
}

func createCountiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counties",
		Short: "List the counties the importer accepts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(service)
			if err != nil {
				return err
			}
			reg, err := cfg.Registry.Build()
			if err != nil {
				return err
			}
			for _, f := range reg.Counties() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", f.County, f.Example)
			}
			return nil
		},
	}
}

func importShapefile(ctx context.Context, store ports.ParcelWriter, path, county string, fields shapefile.FieldMap, batchSize int) error {
	r, err := shapefile.Open(path, county, fields)
	if err != nil {
		return err
	}
	defer r.Close()

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := r.Next(batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		if err := store.UpsertBatch(ctx, batch); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}
		slog.Info("batch imported", "county", county, "parcels", r.Stats().Read)
	}

	stats := r.Stats()
	slog.Info("shapefile imported", "file", path, "county", county,
		"parcels", stats.Read, "skipped", stats.Skipped, "duration", time.Since(start))
	return nil
}
