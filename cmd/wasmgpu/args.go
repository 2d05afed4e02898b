package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/LucentFlux/wasm-gpu/numeric"
)

// parseArgs parses a comma-separated argument list against the parameter
// types of an export.
func parseArgs(s string, types []numeric.ValueType) ([]numeric.Value, error) {
	var fields []string
	if strings.TrimSpace(s) != "" {
		fields = strings.Split(s, ",")
	}
	if len(fields) != len(types) {
		return nil, fmt.Errorf("got %d arguments, want %d (%v)", len(fields), len(types), types)
	}
	out := make([]numeric.Value, len(types))
	for i, t := range types {
		v, err := parseValue(strings.TrimSpace(fields[i]), t)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseValue(s string, t numeric.ValueType) (numeric.Value, error) {
	switch t {
	case numeric.I32:
		if v, err := strconv.ParseInt(s, 0, 32); err == nil {
			return numeric.ValueI32(int32(v)), nil
		}
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return numeric.Value{}, err
		}
		return numeric.ValueI32(int32(uint32(v))), nil
	case numeric.I64:
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			return numeric.ValueI64(v), nil
		}
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return numeric.Value{}, err
		}
		return numeric.ValueI64(int64(v)), nil
	case numeric.F32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return numeric.Value{}, err
		}
		return numeric.ValueF32(float32(v)), nil
	case numeric.F64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return numeric.Value{}, err
		}
		return numeric.ValueF64(v), nil
	}
	return numeric.Value{}, fmt.Errorf("cannot pass %s from the command line", t)
}

func formatValues(vals []numeric.Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// rawValues converts arguments to wazero's uint64 encoding.
func rawValues(vals []numeric.Value) []uint64 {
	out := make([]uint64, len(vals))
	for i, v := range vals {
		out[i] = v.Lo
	}
	return out
}

// fromRaw converts a wazero result to a value of type t.
func fromRaw(t numeric.ValueType, raw uint64) numeric.Value {
	if t == numeric.I32 || t == numeric.F32 {
		raw &= math.MaxUint32
	}
	return numeric.Value{Type: t, Lo: raw}
}
