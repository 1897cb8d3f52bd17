//go:build !opencl

package main

import "errors"

func newOpenCLEvaluator() (surfaceEvaluator, error) {
	return nil, errors.New("OpenCL support is not enabled; rebuild with -tags opencl")
}
