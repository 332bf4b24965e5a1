// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DeviceInfo describes one device enumerated by a Backend.
type DeviceInfo struct {
	Num    DeviceNum
	Name   string
	Vendor string

	// Type is a free-form device type, e.g.: "gpu", "cpu", "accelerator".
	Type string

	// GlobalMemory in bytes, 0 if unknown.
	GlobalMemory uint64

	// ComputeUnits available in the device, 0 if unknown.
	ComputeUnits int
}

// String implements fmt.Stringer.
func (d DeviceInfo) String() string {
	if d.Vendor == "" {
		return fmt.Sprintf("#%d %s (%s)", d.Num, d.Name, d.Type)
	}
	return fmt.Sprintf("#%d %s [%s] (%s)", d.Num, d.Name, d.Vendor, d.Type)
}

// DeviceSelector picks one device out of the enumerated ones.
type DeviceSelector func(devices []DeviceInfo) (DeviceNum, error)

// DeviceEnvVar is the environment variable with the device selector, see ParseDeviceSelector.
const DeviceEnvVar = "MATHACCEL_DEVICE"

// SelectLast selects the last enumerated device.
//
// This is the default policy: on typical OpenCL platforms the discrete GPU is enumerated after
// the integrated one, but the order is up to the driver, so selection is not portable across
// heterogeneous device lists. Use an explicit selector if it matters.
func SelectLast(devices []DeviceInfo) (DeviceNum, error) {
	if len(devices) == 0 {
		return 0, errors.Wrap(ErrBackendInit, "no devices found")
	}
	return devices[len(devices)-1].Num, nil
}

// SelectFirst selects the first enumerated device.
func SelectFirst(devices []DeviceInfo) (DeviceNum, error) {
	if len(devices) == 0 {
		return 0, errors.Wrap(ErrBackendInit, "no devices found")
	}
	return devices[0].Num, nil
}

// SelectIndex returns a selector for the device at the given position of the enumeration.
// Negative indices count from the end, so SelectIndex(-1) is the same as SelectLast.
func SelectIndex(index int) DeviceSelector {
	return func(devices []DeviceInfo) (DeviceNum, error) {
		idx := index
		if idx < 0 {
			idx += len(devices)
		}
		if idx < 0 || idx >= len(devices) {
			return 0, errors.Wrapf(ErrBackendInit, "device index %d out of range, %d devices found", index, len(devices))
		}
		return devices[idx].Num, nil
	}
}

// SelectByName returns a selector for the first device whose name or vendor contains substr (case-insensitive).
func SelectByName(substr string) DeviceSelector {
	return func(devices []DeviceInfo) (DeviceNum, error) {
		lowerSubstr := strings.ToLower(substr)
		for _, device := range devices {
			if strings.Contains(strings.ToLower(device.Name), lowerSubstr) ||
				strings.Contains(strings.ToLower(device.Vendor), lowerSubstr) {
				return device.Num, nil
			}
		}
		return 0, errors.Wrapf(ErrBackendInit, "no device matching %q among %d devices", substr, len(devices))
	}
}

// ParseDeviceSelector parses a device selector description:
//
//   - "" or "last": SelectLast.
//   - "first": SelectFirst.
//   - "<index>": SelectIndex(index), negative values count from the end.
//   - "name=<substring>": SelectByName(substring).
func ParseDeviceSelector(description string) (DeviceSelector, error) {
	description = strings.TrimSpace(description)
	switch description {
	case "", "last":
		return SelectLast, nil
	case "first":
		return SelectFirst, nil
	}
	if name, found := strings.CutPrefix(description, "name="); found {
		if name == "" {
			return nil, errors.Errorf("empty name in device selector %q", description)
		}
		return SelectByName(name), nil
	}
	index, err := strconv.Atoi(description)
	if err != nil {
		return nil, errors.Errorf("invalid device selector %q: use \"first\", \"last\", an index or \"name=<substring>\"", description)
	}
	return SelectIndex(index), nil
}
