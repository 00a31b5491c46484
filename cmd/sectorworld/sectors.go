package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/xiaonanln/sectorworld/engine/kvdb/records"
)

func sectorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sectors",
		Short: "Inspect and import generated sectors",
	}
	cmd.AddCommand(sectorsListCmd(), sectorsImportCmd())
	return cmd
}

func sectorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the sectors in storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			recs, err := records.ListSectors(db)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tBODIES")
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%d\n", rec.ID, rec.Name, len(rec.Bodies))
			}
			return w.Flush()
		},
	}
}

func sectorsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import sectors from the JSON output of the galaxy generator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var recs []*records.SectorRecord
			if err := json.Unmarshal(data, &recs); err != nil {
				return errors.Wrapf(err, "parse %s", args[0])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			for _, rec := range recs {
				if err := records.SaveSector(db, rec); err != nil {
					return errors.Wrapf(err, "sector %s", rec.ID)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d sectors\n", len(recs))
			return nil
		},
	}
}
