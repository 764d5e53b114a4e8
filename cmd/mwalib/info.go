package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/robert-malhotra/go-mwalib/mwalib"
)

func (a *app) metafitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metafits <file>",
		Short: "Print a metafits summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := mwalib.OpenMetafits(args[0], mwalib.WithLogger(a.logger))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), m)
			return err
		},
	}
}

// report is the machine-readable form of info.
type report struct {
	Metafits       mwalib.MetafitsMetadata   `json:"metafits" msgpack:"metafits"`
	Correlator     mwalib.CorrelatorMetadata `json:"correlator" msgpack:"correlator"`
	CoarseChannels []mwalib.CoarseChannel    `json:"coarse_channels" msgpack:"coarse_channels"`
	TimeSteps      []mwalib.TimeStep         `json:"timesteps" msgpack:"timesteps"`
	Missing        []mwalib.Pair             `json:"missing" msgpack:"missing"`
}

func newReport(c *mwalib.CorrelatorContext) report {
	return report{
		Metafits:       c.Metafits().Metadata(),
		Correlator:     c.Metadata(),
		CoarseChannels: c.CoarseChannels(),
		TimeSteps:      c.TimeSteps(),
		Missing:        c.MissingPairs(),
	}
}

func writeReport(w io.Writer, c *mwalib.CorrelatorContext, format string) error {
	switch format {
	case "text":
		_, err := fmt.Fprintf(w, "%s\n%s\n", c.Metafits(), c)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newReport(c))
	case "msgpack":
		return msgpack.NewEncoder(w).Encode(newReport(c))
	}
	return fmt.Errorf("unknown format %q (want text, json or msgpack)", format)
}

func (a *app) infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <metafits> <data files or globs>...",
		Short: "Open an observation and describe its data files",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			useMmap, _ := cmd.Flags().GetBool("mmap")
			verify, _ := cmd.Flags().GetBool("verify")
			files, err := expandPaths(args[1:])
			if err != nil {
				return err
			}
			opts := []mwalib.Option{mwalib.WithLogger(a.logger), mwalib.WithMmap(useMmap)}
			if verify {
				opts = append(opts, mwalib.WithVerifyChecksums())
			}
			c, err := mwalib.OpenCorrelator(args[0], files, opts...)
			if err != nil {
				return err
			}
			defer c.Close()
			return writeReport(cmd.OutOrStdout(), c, format)
		},
	}
	cmd.Flags().String("format", "text", "output format: text, json or msgpack")
	cmd.Flags().Bool("mmap", false, "memory-map data files")
	cmd.Flags().Bool("verify", false, "check the DATASUM of every timestep HDU")
	return cmd
}
