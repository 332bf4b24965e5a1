// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// mathaccel lists the available compute devices, or runs the elementwise addition kernel on generated data.
//
// Usage:
//
//	mathaccel -list
//	mathaccel -backend=go -dtype=float32 -dims=2x3
//	mathaccel -backend=opencl -device=name=nvidia -n=1000000 -repeat=100
//
// Use -v=1 to see what device is selected.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/mathaccel/mathaccel/backends"
	_ "github.com/mathaccel/mathaccel/backends/default"
	"github.com/mathaccel/mathaccel/pkg/accelerator"
	"github.com/mathaccel/mathaccel/pkg/core/dims"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagBackend = flag.String("backend", "",
		fmt.Sprintf("Backend configuration \"<backend_name>:<backend_options>\". Defaults to $%s, or the first registered backend.",
			backends.ConfigEnvVar))
	flagDevice = flag.String("device", "",
		fmt.Sprintf("Device selector: \"first\", \"last\", an index or \"name=<substring>\". Defaults to $%s, or \"last\".",
			backends.DeviceEnvVar))
	flagList   = flag.Bool("list", false, "List the devices of the backend and exit.")
	flagN      = flag.Int("n", 8, "Number of elements to add, if -dims is not given.")
	flagDims   = flag.String("dims", "", "Dimensions of the buffers to add, e.g. \"4\", \"2x3\" or \"2x3x4\". Overrides -n.")
	flagDType  = flag.String("dtype", "int32", "Element type: int8, uint8, int16, uint16, int32, uint32, int64, uint64, float32 or float64.")
	flagHead   = flag.Int("head", 8, "Number of result values to print.")
	flagRepeat = flag.Int("repeat", 0, "If > 0, benchmark the addition by running it this many more times.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'mathaccel -help'.", flag.Args())
		os.Exit(1)
	}

	var opts []accelerator.Option
	if *flagBackend != "" {
		opts = append(opts, accelerator.WithConfig(*flagBackend))
	}
	if *flagDevice != "" {
		opts = append(opts, accelerator.WithDeviceSelector(must.M1(backends.ParseDeviceSelector(*flagDevice))))
	}

	if *flagList {
		listDevices()
		return
	}

	d := dims.One(*flagN)
	if *flagDims != "" {
		d = must.M1(dims.Parse(*flagDims))
	}
	acc := must.M1(accelerator.New(opts...))
	defer acc.Finalize()
	if err := runAdd(acc, strings.ToLower(*flagDType), d); err != nil {
		klog.Errorf("Failed: %+v", err)
		os.Exit(1)
	}
}

// listDevices prints a table with the devices of the backend.
func listDevices() {
	var backend backends.Backend
	if *flagBackend != "" {
		backend = must.M1(backends.NewWithConfig(*flagBackend))
	} else {
		backend = must.M1(backends.New())
	}
	defer backend.Finalize()
	devices := must.M1(backend.Devices())

	fmt.Println(titleStyle.Render(backend.Description()))
	table := newTable([]string{"#", "Name", "Vendor", "Type", "Memory", "Compute Units"},
		lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	var selected backends.DeviceNum = -1
	if len(devices) > 0 {
		selectorDesc := *flagDevice
		if selectorDesc == "" {
			selectorDesc = os.Getenv(backends.DeviceEnvVar)
		}
		selector := must.M1(backends.ParseDeviceSelector(selectorDesc))
		selected = must.M1(selector(devices))
	}
	for _, device := range devices {
		memory := "-"
		if device.GlobalMemory > 0 {
			memory = humanize.Bytes(device.GlobalMemory)
		}
		units := "-"
		if device.ComputeUnits > 0 {
			units = humanize.Comma(int64(device.ComputeUnits))
		}
		table.Row(device.Num == selected, fmt.Sprint(device.Num), device.Name, device.Vendor, device.Type, memory, units)
	}
	fmt.Println(table.Render())
	if len(devices) == 0 {
		fmt.Println("No devices found.")
	}
}

func runAdd(acc *accelerator.Accelerator, dtype string, d dims.Dims) error {
	switch dtype {
	case "int8":
		return runAddTyped[int8](acc, d)
	case "uint8":
		return runAddTyped[uint8](acc, d)
	case "int16":
		return runAddTyped[int16](acc, d)
	case "uint16":
		return runAddTyped[uint16](acc, d)
	case "int32":
		return runAddTyped[int32](acc, d)
	case "uint32":
		return runAddTyped[uint32](acc, d)
	case "int64":
		return runAddTyped[int64](acc, d)
	case "uint64":
		return runAddTyped[uint64](acc, d)
	case "float32":
		return runAddTyped[float32](acc, d)
	case "float64":
		return runAddTyped[float64](acc, d)
	}
	return errors.Errorf("unknown -dtype=%q", dtype)
}

// runAddTyped adds a[i]=i and b[i]=10*i, and checks and prints the result.
func runAddTyped[T accelerator.Element](acc *accelerator.Accelerator, d dims.Dims) error {
	n, err := d.Multiply()
	if err != nil {
		return err
	}
	dataA := make([]T, n)
	dataB := make([]T, n)
	for i := range n {
		dataA[i] = T(i)
		dataB[i] = T(10 * i)
	}

	start := time.Now()
	a, err := accelerator.CreateBuffer(acc, dataA, d)
	if err != nil {
		return err
	}
	defer a.Finalize()
	b, err := accelerator.CreateBuffer(acc, dataB, d)
	if err != nil {
		return err
	}
	defer b.Finalize()
	uploaded := time.Now()
	c, err := accelerator.Add(a, b)
	if err != nil {
		return err
	}
	defer c.Finalize()
	result, err := c.ToFlat()
	if err != nil {
		return err
	}
	done := time.Now()

	var mismatches int
	for i, value := range result {
		if value != dataA[i]+dataB[i] {
			mismatches++
		}
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%s: Add[%s]%s", acc, c.DType(), c.Dims())))
	summary := newTable(nil, lipgloss.Right, lipgloss.Left)
	summary.Row(false, "elements", humanize.Comma(int64(n)))
	summary.Row(false, "bytes per buffer", humanize.Bytes(uint64(n)*uint64(c.DType().Size())))
	summary.Row(false, "upload", uploaded.Sub(start).String())
	summary.Row(false, "add + download", done.Sub(uploaded).String())
	summary.Row(mismatches > 0, "mismatches", humanize.Comma(int64(mismatches)))
	fmt.Println(summary.Render())

	head := newTable([]string{"i", "a", "b", "a+b"}, lipgloss.Right)
	for i := range min(*flagHead, n) {
		head.Row(result[i] != dataA[i]+dataB[i], fmt.Sprint(i),
			fmt.Sprint(dataA[i]), fmt.Sprint(dataB[i]), fmt.Sprint(result[i]))
	}
	fmt.Println(head.Render())
	if mismatches > 0 {
		return errors.Errorf("%d mismatches in the result", mismatches)
	}
	if *flagRepeat > 0 {
		return benchmarkAdd(acc, a, b, *flagRepeat)
	}
	return nil
}
