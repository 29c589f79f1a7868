//go:build netlib

package main

import (
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

// Build with `-tags netlib` to route gonum's dense algebra through a native
// BLAS. blas64.Use is process-global, so the compute target is a build-time
// choice rather than a per-model parameter.
func init() {
	blas64.Use(netlib.Implementation{})
}
