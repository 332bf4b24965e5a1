// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SplitConfig splits a configuration formatted as "<backend_name>:<backend_options>".
//
// If there is no ":", the whole config is taken as the backend name.
func SplitConfig(config string) (backendName, backendOptions string) {
	if idx := strings.Index(config, ":"); idx != -1 {
		return config[:idx], config[idx+1:]
	}
	return config, ""
}

// Options are the parsed "<backend_options>" part of a configuration: a comma-separated list
// of "key=value" pairs or bare "key" flags.
//
// Backends should consume the keys they know with Pop*, and then call CheckEmpty to report unknown keys.
type Options map[string]string

// ParseOptions parses a comma-separated list of "key=value" or "key" entries.
// Bare keys are stored with an empty value. Spaces around keys and values are trimmed.
func ParseOptions(options string) (Options, error) {
	opts := make(Options)
	for _, part := range strings.Split(options, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, errors.Errorf("invalid backend option %q in %q: empty key", part, options)
		}
		if _, found := opts[key]; found {
			return nil, errors.Errorf("backend option %q given more than once in %q", key, options)
		}
		opts[key] = strings.TrimSpace(value)
	}
	return opts, nil
}

// PopString returns the value of key if present (removing it), or defaultValue.
func (o Options) PopString(key, defaultValue string) string {
	value, found := o[key]
	if !found {
		return defaultValue
	}
	delete(o, key)
	return value
}

// PopInt returns the integer value of key if present (removing it), or defaultValue.
func (o Options) PopInt(key string, defaultValue int) (int, error) {
	value, found := o[key]
	if !found {
		return defaultValue, nil
	}
	delete(o, key)
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "backend option %q requires an integer, got %q", key, value)
	}
	return n, nil
}

// CheckEmpty returns an error listing any remaining (unknown) options.
func (o Options) CheckEmpty(backendName string) error {
	if len(o) == 0 {
		return nil
	}
	keys := make([]string, 0, len(o))
	for key := range o {
		keys = append(keys, key)
	}
	return errors.Errorf("unknown options %q for backend %q", keys, backendName)
}
