// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mathaccel/mathaccel/pkg/accelerator"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// benchmarkAdd runs Add(a, b) repeat times, waiting for each one to finish, and prints the throughput.
func benchmarkAdd[T accelerator.Element](acc *accelerator.Accelerator, a, b *accelerator.Buffer[T], repeat int) error {
	output := termenv.NewOutput(os.Stdout)
	isTerminal := output.Profile != termenv.Ascii
	bar := progressbar.NewOptions(repeat,
		progressbar.OptionSetDescription("Add"),
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionUseANSICodes(isTerminal),
		progressbar.OptionEnableColorCodes(isTerminal),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("kernels"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionClearOnFinish(),
	)

	start := time.Now()
	for range repeat {
		c, err := accelerator.Add(a, b)
		if err != nil {
			return err
		}
		err = acc.Finish()
		c.Finalize()
		if err != nil {
			return err
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	elapsed := time.Since(start)

	elements := uint64(a.Len()) * uint64(repeat)
	bytesMoved := 3 * elements * uint64(a.DType().Size())
	perSecond := func(v uint64) uint64 { return uint64(float64(v) / max(elapsed.Seconds(), 1e-9)) }
	fmt.Println(titleStyle.Render(fmt.Sprintf("Benchmark: %d x Add[%s]%s", repeat, a.DType(), a.Dims())))
	summary := newTable(nil, lipgloss.Right, lipgloss.Left)
	summary.Row(false, "total time", elapsed.String())
	summary.Row(false, "per kernel", (elapsed / time.Duration(repeat)).String())
	summary.Row(false, "elements/s", humanize.Comma(int64(perSecond(elements))))
	summary.Row(false, "bandwidth", humanize.Bytes(perSecond(bytesMoved))+"/s")
	fmt.Println(summary.Render())
	return nil
}
