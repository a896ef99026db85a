package main

import (
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newInitCmd(flags *modelFlags) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize network weights and save them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vs, _, err := flags.build()
			if err != nil {
				return err
			}
			if err := vs.Save(out); err != nil {
				return errors.Wrapf(err, "saving weights to %q", out)
			}
			slog.Info("weights saved", "file", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "refinenet.ot", "weight file to write")

	return cmd
}
