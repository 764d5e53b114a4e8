package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/go-mwalib/internal/simulate"
	"github.com/robert-malhotra/go-mwalib/mwalib"
)

func (a *app) simulateCmd() *cobra.Command {
	var (
		cfg     simulate.Config
		version string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic observation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := mwalib.ParseCorrelatorVersion(version)
			if err != nil {
				return err
			}
			cfg.Version = v
			obs, err := simulate.Write(cfg)
			if err != nil {
				return err
			}
			a.logger.Info("observation written",
				slog.String("version", v.String()),
				slog.String("metafits", obs.Metafits),
				slog.Int("data_files", len(obs.DataFiles)))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, obs.Metafits)
			for _, p := range obs.DataFiles {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Dir, "dir", ".", "output directory")
	f.StringVar(&version, "version", "MWAX", "correlator version: MWAX, Legacy or OldLegacy")
	f.IntVar(&cfg.ObsID, "obsid", simulate.DefaultObsID, "observation id (GPS start second)")
	f.IntVar(&cfg.Antennas, "antennas", simulate.DefaultAntennas, "number of antennas")
	f.IntVar(&cfg.FineChans, "fine-chans", simulate.DefaultFineChans, "fine channels per coarse channel")
	f.IntSliceVar(&cfg.Channels, "channels", simulate.DefaultChannels, "receiver channel plan")
	f.IntSliceVar(&cfg.DataChannels, "data-channels", nil, "receiver channels given data files; default all")
	f.IntVar(&cfg.TimeSteps, "timesteps", simulate.DefaultTimeSteps, "timesteps per channel")
	f.IntVar(&cfg.BatchSteps, "batch-steps", 0, "timesteps per batch file; 0 writes one batch")
	f.Int64Var(&cfg.IntegrationMs, "integration-ms", simulate.DefaultIntegrationMs, "integration time in milliseconds")
	f.IntVar(&cfg.Bitpix, "bitpix", -32, "data BITPIX: -32 or 32")
	return cmd
}
