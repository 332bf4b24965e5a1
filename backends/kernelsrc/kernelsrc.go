// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernelsrc extracts kernel signatures from OpenCL C program source.
//
// It is not a compiler: it only understands kernel headers ("__kernel void name(params)"), which is
// what is needed to bind arguments by name and check their types before enqueuing.
package kernelsrc

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// AddressSpace of a kernel parameter.
type AddressSpace int

const (
	Private AddressSpace = iota
	Global
	Constant
	Local
)

var addressSpaceNames = []string{"private", "global", "constant", "local"}

// String implements fmt.Stringer.
func (as AddressSpace) String() string {
	if as < 0 || int(as) >= len(addressSpaceNames) {
		return fmt.Sprintf("AddressSpace(%d)", int(as))
	}
	return addressSpaceNames[as]
}

// Param is one kernel parameter.
type Param struct {
	Name string

	// CType is the OpenCL C element type as written, e.g. "uint" or "unsigned int".
	CType string
	DType dtypes.DType

	// Pointer is true for buffer parameters.
	Pointer      bool
	AddressSpace AddressSpace
	Const        bool
}

// String implements fmt.Stringer.
func (p Param) String() string {
	var sb strings.Builder
	if p.AddressSpace != Private {
		sb.WriteString(p.AddressSpace.String())
		sb.WriteByte(' ')
	}
	if p.Const {
		sb.WriteString("const ")
	}
	sb.WriteString(p.CType)
	if p.Pointer {
		sb.WriteByte('*')
	}
	sb.WriteByte(' ')
	sb.WriteString(p.Name)
	return sb.String()
}

// Kernel is the signature of one kernel function.
type Kernel struct {
	Name   string
	Params []Param

	// Line (1-based) where the kernel header starts in the source.
	Line int
}

// ParamIndex returns the position of the named parameter, or -1 if not found.
func (k *Kernel) ParamIndex(name string) int {
	return slices.IndexFunc(k.Params, func(p Param) bool { return p.Name == name })
}

// String implements fmt.Stringer.
func (k *Kernel) String() string {
	params := make([]string, len(k.Params))
	for i, p := range k.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("kernel void %s(%s)", k.Name, strings.Join(params, ", "))
}

// Program holds all kernels of a source.
type Program struct {
	kernels map[string]*Kernel
}

// Kernel returns the kernel with the given name, or nil.
func (p *Program) Kernel(name string) *Kernel {
	return p.kernels[name]
}

// Names returns the kernel names, sorted.
func (p *Program) Names() []string {
	names := make([]string, 0, len(p.kernels))
	for name := range p.kernels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of kernels.
func (p *Program) Len() int { return len(p.kernels) }

var kernelHeaderRegexp = regexp.MustCompile(
	`\b(?:__kernel|kernel)\s+void\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)

// Parse extracts the kernel signatures of an OpenCL C source.
func Parse(source string) (*Program, error) {
	clean := stripComments(source)
	program := &Program{kernels: make(map[string]*Kernel)}
	for _, match := range kernelHeaderRegexp.FindAllStringSubmatchIndex(clean, -1) {
		line := 1 + strings.Count(clean[:match[0]], "\n")
		name := clean[match[2]:match[3]]
		if _, found := program.kernels[name]; found {
			return nil, errors.Errorf("line %d: kernel %q defined more than once", line, name)
		}
		params, err := parseParams(clean[match[4]:match[5]])
		if err != nil {
			return nil, errors.WithMessagef(err, "line %d: kernel %q", line, name)
		}
		program.kernels[name] = &Kernel{Name: name, Params: params, Line: line}
	}
	return program, nil
}

// stripComments blanks comments and preprocessor directives, preserving newlines so line numbers are kept.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	lineStart := true
	for i := 0; i < len(source); i++ {
		c := source[i]
		switch {
		case c == '/' && i+1 < len(source) && source[i+1] == '/':
			for i < len(source) && source[i] != '\n' {
				i++
			}
			if i < len(source) {
				sb.WriteByte('\n')
			}
			lineStart = true
			continue
		case c == '/' && i+1 < len(source) && source[i+1] == '*':
			i += 2
			for i < len(source) && !(source[i] == '*' && i+1 < len(source) && source[i+1] == '/') {
				if source[i] == '\n' {
					sb.WriteByte('\n')
				}
				i++
			}
			i++ // Skip the closing '/'.
			sb.WriteByte(' ')
			continue
		case c == '#' && lineStart:
			for i < len(source) && source[i] != '\n' {
				i++
			}
			if i < len(source) {
				sb.WriteByte('\n')
			}
			continue
		}
		sb.WriteByte(c)
		if c == '\n' {
			lineStart = true
		} else if c != ' ' && c != '\t' {
			lineStart = false
		}
	}
	return sb.String()
}

var cTypes = map[string]dtypes.DType{
	"char":           dtypes.Int8,
	"signed char":    dtypes.Int8,
	"uchar":          dtypes.Uint8,
	"unsigned char":  dtypes.Uint8,
	"short":          dtypes.Int16,
	"ushort":         dtypes.Uint16,
	"unsigned short": dtypes.Uint16,
	"int":            dtypes.Int32,
	"uint":           dtypes.Uint32,
	"unsigned int":   dtypes.Uint32,
	"unsigned":       dtypes.Uint32,
	"long":           dtypes.Int64,
	"ulong":          dtypes.Uint64,
	"unsigned long":  dtypes.Uint64,
	"float":          dtypes.Float32,
	"double":         dtypes.Float64,
}

func parseParams(list string) ([]Param, error) {
	list = strings.TrimSpace(list)
	if list == "" || list == "void" {
		return nil, nil
	}
	parts := strings.Split(list, ",")
	params := make([]Param, 0, len(parts))
	for _, part := range parts {
		param, err := parseParam(part)
		if err != nil {
			return nil, err
		}
		if slices.ContainsFunc(params, func(p Param) bool { return p.Name == param.Name }) {
			return nil, errors.Errorf("parameter %q declared more than once", param.Name)
		}
		params = append(params, param)
	}
	return params, nil
}

func parseParam(decl string) (Param, error) {
	var param Param
	tokens := strings.Fields(strings.ReplaceAll(decl, "*", " * "))
	if len(tokens) < 2 {
		return param, errors.Errorf("malformed parameter %q", strings.TrimSpace(decl))
	}
	param.Name = tokens[len(tokens)-1]
	var typeTokens []string
	for _, token := range tokens[:len(tokens)-1] {
		switch token {
		case "__global", "global":
			param.AddressSpace = Global
		case "__constant", "constant":
			param.AddressSpace = Constant
		case "__local", "local":
			param.AddressSpace = Local
		case "__private", "private":
			param.AddressSpace = Private
		case "const":
			param.Const = true
		case "restrict", "__restrict", "volatile":
			// Ignored qualifiers.
		case "*":
			if param.Pointer {
				return param, errors.Errorf("parameter %q: pointers to pointers are not supported", param.Name)
			}
			param.Pointer = true
		default:
			typeTokens = append(typeTokens, token)
		}
	}
	param.CType = strings.Join(typeTokens, " ")
	dtype, found := cTypes[param.CType]
	if !found {
		return param, errors.Errorf("parameter %q: unsupported type %q", param.Name, param.CType)
	}
	param.DType = dtype
	if param.Pointer && param.AddressSpace == Private {
		return param, errors.Errorf("parameter %q: pointer parameters must be __global, __constant or __local", param.Name)
	}
	if !param.Pointer && param.AddressSpace != Private {
		return param, errors.Errorf("parameter %q: address space %s requires a pointer", param.Name, param.AddressSpace)
	}
	return param, nil
}
