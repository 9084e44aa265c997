package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/otflow-ml/otflow/internal/cost"
	"github.com/otflow-ml/otflow/internal/mat"
)

// stabilityRatio is the kernel-underflow heuristic: when
// maxAbs(C)/epsilon exceeds it, exp(-C/eps) is at risk of flushing to
// zero and the run starts directly in the log domain.
const stabilityRatio = 200.0

// sinkhornState is the raw result of one Sinkhorn run, before the
// dispatcher turns it into an Output.
type sinkhornState struct {
	coupling    *Coupling
	iters       int
	converged   bool
	stabilized  bool
	marginalErr float64
	objective   float64
}

// sinkhorn runs entropic (possibly unbalanced) Sinkhorn between
// weights a and b under the given cost. It starts with plain scaling
// iterations and escalates to log-domain iterations automatically on
// detected underflow, rather than failing silently.
func sinkhorn(ctx context.Context, a, b []float64, cm cost.Matrix, cfg Config) (*sinkhornState, error) {
	if cm.Rows() != len(a) || cm.Cols() != len(b) {
		return nil, fmt.Errorf("%w: cost [%d,%d] vs marginals %d/%d",
			cost.ErrDimensionMismatch, cm.Rows(), cm.Cols(), len(a), len(b))
	}

	c := cm.Dense()
	usedIters := 0
	if cm.MaxAbs()/cfg.Epsilon <= stabilityRatio {
		st, ok, err := sinkhornScaling(ctx, a, b, c, cfg)
		if err != nil {
			return nil, err
		}
		if ok {
			return st, nil
		}
		// Underflow mid-run: restart stabilized, keeping the spent
		// iteration budget on the books.
		usedIters = st.iters
	}

	st, err := sinkhornLog(ctx, a, b, c, cfg)
	if err != nil {
		return nil, err
	}
	st.iters += usedIters
	st.stabilized = true
	return st, nil
}

// sinkhornScaling iterates the scaling form u ← (a/(Kv))^tauA,
// v ← (b/(Kᵀu))^tauB over the Gibbs kernel K = exp(-C/eps).
// The bool return is false when underflow was detected and the caller
// must escalate to the log domain.
func sinkhornScaling(ctx context.Context, a, b []float64, c *mat.Dense, cfg Config) (*sinkhornState, bool, error) {
	n, m := len(a), len(b)
	balanced := cfg.TauA == 1 && cfg.TauB == 1

	k := mat.NewDense(n, m)
	for i := 0; i < n; i++ {
		crow, krow := c.Row(i), k.Row(i)
		for j, cv := range crow {
			krow[j] = math.Exp(-cv / cfg.Epsilon)
		}
	}

	u := ones(n)
	v := ones(m)
	uPrev := ones(n)
	vPrev := ones(m)

	st := &sinkhornState{}
	for it := 1; it <= cfg.MaxIterations; it++ {
		st.iters = it

		kv := k.MulVec(v)
		for i := range u {
			switch {
			case a[i] == 0:
				u[i] = 0
			case kv[i] <= 0:
				return st, false, nil // kernel underflow
			default:
				u[i] = scalePow(a[i]/kv[i], cfg.TauA)
			}
		}
		ktu := k.MulVecT(u)
		for j := range v {
			switch {
			case b[j] == 0:
				v[j] = 0
			case ktu[j] <= 0:
				return st, false, nil
			default:
				v[j] = scalePow(b[j]/ktu[j], cfg.TauB)
			}
		}

		if it%cfg.InnerIterations != 0 || it < cfg.MinIterations {
			continue
		}
		if err := ctx.Err(); err != nil {
			finishScaling(st, u, v, k, c, a, b)
			return st, true, nil
		}
		if !mat.AllFinite(u) || !mat.AllFinite(v) {
			return st, false, nil
		}

		var err float64
		if balanced {
			kv2 := k.MulVec(v)
			rowm := make([]float64, n)
			for i := range rowm {
				rowm[i] = u[i] * kv2[i]
			}
			err = mat.L1Diff(rowm, a)
		} else {
			err = relChange(u, uPrev) + relChange(v, vPrev)
		}
		copy(uPrev, u)
		copy(vPrev, v)

		if err <= cfg.Threshold {
			st.converged = true
			break
		}
	}

	finishScaling(st, u, v, k, c, a, b)
	return st, true, nil
}

func finishScaling(st *sinkhornState, u, v []float64, k, c *mat.Dense, a, b []float64) {
	n, m := len(u), len(v)
	p := mat.NewDense(n, m)
	for i := 0; i < n; i++ {
		krow, prow := k.Row(i), p.Row(i)
		ui := u[i]
		for j, kij := range krow {
			prow[j] = ui * kij * v[j]
		}
	}
	st.coupling = NewDenseCoupling(p)
	st.objective = mat.Dot(p, c)
	st.marginalErr = mat.L1Diff(p.RowSums(), a) + mat.L1Diff(p.ColSums(), b)
}

// sinkhornLog iterates the dual potentials with logsumexp updates:
// f ← tauA·(ε·log a − ε·lse((g − C)/ε)). Zero-weight points carry
// -Inf potentials and end up with zero coupling mass.
func sinkhornLog(ctx context.Context, a, b []float64, c *mat.Dense, cfg Config) (*sinkhornState, error) {
	n, m := len(a), len(b)
	eps := cfg.Epsilon
	balanced := cfg.TauA == 1 && cfg.TauB == 1

	loga := logVec(a)
	logb := logVec(b)
	f := make([]float64, n)
	g := make([]float64, m)
	fPrev := make([]float64, n)
	gPrev := make([]float64, m)

	rowBuf := make([]float64, m)
	colBuf := make([]float64, n)

	st := &sinkhornState{stabilized: true}
	for it := 1; it <= cfg.MaxIterations; it++ {
		st.iters = it

		for i := 0; i < n; i++ {
			if math.IsInf(loga[i], -1) {
				f[i] = math.Inf(-1)
				continue
			}
			crow := c.Row(i)
			for j := range rowBuf {
				rowBuf[j] = (g[j] - crow[j]) / eps
			}
			f[i] = cfg.TauA * (eps*loga[i] - eps*mat.LogSumExp(rowBuf))
		}
		for j := 0; j < m; j++ {
			if math.IsInf(logb[j], -1) {
				g[j] = math.Inf(-1)
				continue
			}
			for i := range colBuf {
				colBuf[i] = (f[i] - c.At(i, j)) / eps
			}
			g[j] = cfg.TauB * (eps*logb[j] - eps*mat.LogSumExp(colBuf))
		}

		if it%cfg.InnerIterations != 0 || it < cfg.MinIterations {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}
		if !finitePotentials(f) || !finitePotentials(g) {
			return nil, fmt.Errorf("%w: non-finite potentials at iteration %d (epsilon %v)",
				ErrNumericalInstability, it, eps)
		}

		var err float64
		if balanced {
			err = logRowViolation(f, g, c, a, eps, rowBuf)
		} else {
			err = potentialChange(f, fPrev) + potentialChange(g, gPrev)
		}
		copy(fPrev, f)
		copy(gPrev, g)

		if err <= cfg.Threshold {
			st.converged = true
			break
		}
	}

	p := mat.NewDense(n, m)
	for i := 0; i < n; i++ {
		crow, prow := c.Row(i), p.Row(i)
		fi := f[i]
		for j, cij := range crow {
			prow[j] = math.Exp((fi + g[j] - cij) / eps)
		}
	}
	if !mat.AllFinite(p.Data()) {
		return nil, fmt.Errorf("%w: non-finite coupling entries (epsilon %v)", ErrNumericalInstability, eps)
	}
	st.coupling = NewDenseCoupling(p)
	st.objective = mat.Dot(p, c)
	st.marginalErr = mat.L1Diff(p.RowSums(), a) + mat.L1Diff(p.ColSums(), b)
	return st, nil
}

// logRowViolation computes Σ_i |Σ_j exp((f_i+g_j-C_ij)/ε) - a_i|.
func logRowViolation(f, g []float64, c *mat.Dense, a []float64, eps float64, buf []float64) float64 {
	total := 0.0
	for i := range f {
		if math.IsInf(f[i], -1) {
			total += a[i]
			continue
		}
		crow := c.Row(i)
		for j := range buf {
			buf[j] = (f[i] + g[j] - crow[j]) / eps
		}
		rowMass := math.Exp(mat.LogSumExp(buf))
		total += math.Abs(rowMass - a[i])
	}
	return total
}

// scalePow applies the unbalanced relaxation exponent; tau == 1 is the
// hot path.
func scalePow(x, tau float64) float64 {
	if tau == 1 {
		return x
	}
	return math.Pow(x, tau)
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func logVec(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if v == 0 {
			out[i] = math.Inf(-1)
		} else {
			out[i] = math.Log(v)
		}
	}
	return out
}

// finitePotentials allows -Inf (zero-weight points) but rejects NaN
// and +Inf.
func finitePotentials(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 1) {
			return false
		}
	}
	return true
}

func relChange(x, prev []float64) float64 {
	num, den := 0.0, 1.0
	for i, v := range x {
		num += math.Abs(v - prev[i])
		if a := math.Abs(v); a > den {
			den = a
		}
	}
	return num / (den * float64(len(x)))
}

func potentialChange(x, prev []float64) float64 {
	m := 0.0
	for i, v := range x {
		if math.IsInf(v, -1) && math.IsInf(prev[i], -1) {
			continue
		}
		if d := math.Abs(v - prev[i]); d > m {
			m = d
		}
	}
	return m
}
