package svm

import "math"

const tau = 1e-12

// binaryProblem is a two-class C-SVC problem over a precomputed kernel.
// Labels are +1/-1.
type binaryProblem struct {
	kernel  [][]float64 // Gram matrix over the problem's own samples
	y       []float64
	c       float64
	eps     float64
	maxIter int
}

type binarySolution struct {
	alpha     []float64
	rho       float64
	iter      int
	converged bool
}

// solve runs SMO with second-order working set selection and no shrinking.
func (p *binaryProblem) solve() binarySolution {
	l := len(p.y)
	alpha := make([]float64, l)
	grad := make([]float64, l)
	qd := make([]float64, l)
	for i := range grad {
		grad[i] = -1
		qd[i] = p.kernel[i][i]
	}
	q := func(i, j int) float64 { return p.y[i] * p.y[j] * p.kernel[i][j] }

	upper := func(i int) bool { return alpha[i] >= p.c }
	lower := func(i int) bool { return alpha[i] <= 0 }

	iter := 0
	converged := false
	for iter < p.maxIter {
		i, j, ok := p.selectWorkingSet(alpha, grad, qd, q, upper, lower)
		if !ok {
			converged = true
			break
		}
		iter++

		oldI, oldJ := alpha[i], alpha[j]
		qij := q(i, j)
		if p.y[i] != p.y[j] {
			quad := qd[i] + qd[j] + 2*qij
			if quad <= 0 {
				quad = tau
			}
			delta := (-grad[i] - grad[j]) / quad
			diff := alpha[i] - alpha[j]
			alpha[i] += delta
			alpha[j] += delta
			if diff > 0 {
				if alpha[j] < 0 {
					alpha[j] = 0
					alpha[i] = diff
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = -diff
			}
			if diff > 0 {
				if alpha[i] > p.c {
					alpha[i] = p.c
					alpha[j] = p.c - diff
				}
			} else if alpha[j] > p.c {
				alpha[j] = p.c
				alpha[i] = p.c + diff
			}
		} else {
			quad := qd[i] + qd[j] - 2*qij
			if quad <= 0 {
				quad = tau
			}
			delta := (grad[i] - grad[j]) / quad
			sum := alpha[i] + alpha[j]
			alpha[i] -= delta
			alpha[j] += delta
			if sum > p.c {
				if alpha[i] > p.c {
					alpha[i] = p.c
					alpha[j] = sum - p.c
				}
			} else if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = sum
			}
			if sum > p.c {
				if alpha[j] > p.c {
					alpha[j] = p.c
					alpha[i] = sum - p.c
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = sum
			}
		}

		dI, dJ := alpha[i]-oldI, alpha[j]-oldJ
		for k := range grad {
			grad[k] += q(i, k)*dI + q(j, k)*dJ
		}
	}

	return binarySolution{
		alpha:     alpha,
		rho:       p.rho(alpha, grad),
		iter:      iter,
		converged: converged,
	}
}

func (p *binaryProblem) selectWorkingSet(
	alpha, grad, qd []float64,
	q func(i, j int) float64,
	upper, lower func(int) bool,
) (int, int, bool) {
	gmax := math.Inf(-1)
	gmax2 := math.Inf(-1)
	gmaxIdx, gminIdx := -1, -1
	objDiffMin := math.Inf(1)

	for t := range alpha {
		if p.y[t] == 1 {
			if !upper(t) && -grad[t] >= gmax {
				gmax = -grad[t]
				gmaxIdx = t
			}
		} else if !lower(t) && grad[t] >= gmax {
			gmax = grad[t]
			gmaxIdx = t
		}
	}
	i := gmaxIdx
	if i == -1 {
		return 0, 0, false
	}

	for j := range alpha {
		var gradDiff, quad float64
		if p.y[j] == 1 {
			if lower(j) {
				continue
			}
			gradDiff = gmax + grad[j]
			if grad[j] >= gmax2 {
				gmax2 = grad[j]
			}
			if gradDiff <= 0 {
				continue
			}
			quad = qd[i] + qd[j] - 2*p.y[i]*q(i, j)
		} else {
			if upper(j) {
				continue
			}
			gradDiff = gmax - grad[j]
			if -grad[j] >= gmax2 {
				gmax2 = -grad[j]
			}
			if gradDiff <= 0 {
				continue
			}
			quad = qd[i] + qd[j] + 2*p.y[i]*q(i, j)
		}
		if quad <= 0 {
			quad = tau
		}
		objDiff := -(gradDiff * gradDiff) / quad
		if objDiff <= objDiffMin {
			gminIdx = j
			objDiffMin = objDiff
		}
	}

	if gmax+gmax2 < p.eps || gminIdx == -1 {
		return 0, 0, false
	}
	return i, gminIdx, true
}

// rho is the bias term: the mean gradient over free vectors, or the
// midpoint of the feasible interval when no vector is free.
func (p *binaryProblem) rho(alpha, grad []float64) float64 {
	ub := math.Inf(1)
	lb := math.Inf(-1)
	nFree := 0
	sumFree := 0.0
	for i, a := range alpha {
		yg := p.y[i] * grad[i]
		switch {
		case a >= p.c:
			if p.y[i] == -1 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		case a <= 0:
			if p.y[i] == 1 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		default:
			nFree++
			sumFree += yg
		}
	}
	if nFree > 0 {
		return sumFree / float64(nFree)
	}
	return (ub + lb) / 2
}
