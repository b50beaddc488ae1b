// Package dct implements the separable orthonormal 2-D DCT-II of square
// blocks and its exact inverse (DCT-III).
//
//	C[k][n] = a(k) * cos(pi * (2n+1) * k / 2N), a(0) = sqrt(1/N), a(k>0) = sqrt(2/N)
//	X = C * B * C^T,  B = C^T * X * C
package dct

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

type DCT struct {
	n     int
	basis *mat.Dense
}

func New(n int) *DCT {
	nf := float64(n)
	basis := mat.NewDense(n, n, nil)
	for j := range n {
		// k = 0
		basis.Set(0, j, 1.0/math.Sqrt(nf))
	}
	for k := 1; k < n; k++ {
		for j := range n {
			basis.Set(k, j, math.Sqrt(2.0/nf)*
				math.Cos(
					(float64(k)*math.Pi*(float64(j)*2+1))/
						(2.0*nf),
				))
		}
	}
	return &DCT{n: n, basis: basis}
}

// Size returns the block edge length.
func (d *DCT) Size() int {
	return d.n
}

// Forward transforms a row-major n*n block into its coefficient matrix.
func (d *DCT) Forward(block []float64) []float64 {
	return d.product(d.basis, block, d.basis.T())
}

// Inverse reconstructs a row-major n*n block from its coefficient matrix.
func (d *DCT) Inverse(coeffs []float64) []float64 {
	return d.product(d.basis.T(), coeffs, d.basis)
}

// Exec transforms data in place of a copy and returns the coefficients along
// with a closure that writes the inverse transform of the (possibly modified)
// coefficients back into data.
func (d *DCT) Exec(data []float64) ([]float64, func()) {
	coeffs := d.Forward(data)
	idct := func() {
		copy(data, d.Inverse(coeffs))
	}
	return coeffs, idct
}

func (d *DCT) product(left mat.Matrix, data []float64, right mat.Matrix) []float64 {
	n := d.n
	in := mat.NewDense(n, n, append([]float64(nil), data[:n*n]...))
	var tmp, out mat.Dense
	tmp.Mul(left, in)
	out.Mul(&tmp, right)
	return out.RawMatrix().Data
}
