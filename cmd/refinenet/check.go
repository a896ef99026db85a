package main

import (
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

func newCheckCmd(flags *modelFlags) *cobra.Command {
	var (
		batch int64
		size  []int64
		iters int
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run forward passes on random input and verify the output shape",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(size) != 3 {
				return errors.Errorf("--size needs 3 values (D,H,W), got %v", size)
			}
			_, net, err := flags.build()
			if err != nil {
				return err
			}

			device := flags.device()
			inShape := []int64{batch, flags.inChannels, size[0], size[1], size[2]}
			want := []int64{batch, flags.classes, size[0], size[1], size[2]}
			x := ts.MustRand(inShape, gotch.Float, device)
			defer x.MustDrop()

			for i := 0; i < iters; i++ {
				var got []int64
				start := time.Now()
				ts.NoGrad(func() {
					var out *ts.Tensor
					out, err = net.Forward(x, false)
					if err != nil {
						return
					}
					got = out.MustSize()
					out.MustDrop()
				})
				if err != nil {
					return err
				}
				if !reflect.DeepEqual(got, want) {
					return errors.Errorf("output shape %v, expected %v", got, want)
				}
				slog.Debug("forward", "iter", i, "elapsed", time.Since(start))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ok: %v -> %v\n", inShape, want)
			return nil
		},
	}
	cmd.Flags().Int64Var(&batch, "batch", 1, "batch size")
	cmd.Flags().Int64SliceVar(&size, "size", []int64{32, 32, 32}, "input D,H,W (H and W divisible by 8)")
	cmd.Flags().IntVar(&iters, "iters", 1, "number of forward passes")

	return cmd
}
