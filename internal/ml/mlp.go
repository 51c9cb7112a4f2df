package ml

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	apperrors "fairvalue-engine/internal/errors"
)

// MLPConfig holds multilayer-perceptron hyperparameters.
type MLPConfig struct {
	Hidden       []int   `mapstructure:"hidden"`
	Epochs       int     `mapstructure:"epochs"`
	BatchSize    int     `mapstructure:"batch_size"`
	LearningRate float64 `mapstructure:"learning_rate"`
	Alpha        float64 `mapstructure:"alpha"`
	Patience     int     `mapstructure:"patience"`
	Seed         int64   `mapstructure:"seed"`
}

// DefaultMLPConfig returns the default network: two ReLU layers of 64 and 32
// units trained with Adam and L2 penalty 0.01.
func DefaultMLPConfig() MLPConfig {
	return MLPConfig{
		Hidden:       []int{64, 32},
		Epochs:       200,
		BatchSize:    32,
		LearningRate: 0.001,
		Alpha:        0.01,
		Patience:     10,
		Seed:         42,
	}
}

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
	lossTol     = 1e-4
)

// MLP is a feed-forward regressor with ReLU hidden layers and a linear output.
type MLP struct {
	cfg     MLPConfig
	weights []*mat.Dense
	biases  [][]float64
}

// NewMLP creates an untrained network.
func NewMLP(cfg MLPConfig) *MLP {
	if cfg.Epochs <= 0 {
		cfg.Epochs = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}
	return &MLP{cfg: cfg}
}

// adamState holds first and second moment estimates for one layer.
type adamState struct {
	mW, vW *mat.Dense
	mB, vB []float64
}

// Fit trains the network on x and y with mini-batch Adam. Training stops early
// when the epoch loss has not improved by lossTol for Patience epochs.
func (m *MLP) Fit(ctx context.Context, x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return apperrors.Wrapf(apperrors.ErrModelTraining, "mlp: %d rows, %d targets", len(x), len(y))
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed))
	sizes := append([]int{len(x[0])}, m.cfg.Hidden...)
	sizes = append(sizes, 1)

	m.weights = make([]*mat.Dense, len(sizes)-1)
	m.biases = make([][]float64, len(sizes)-1)
	state := make([]adamState, len(sizes)-1)
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		bound := math.Sqrt(6.0 / float64(in+out))
		data := make([]float64, in*out)
		for i := range data {
			data[i] = rng.Float64()*2*bound - bound
		}
		m.weights[l] = mat.NewDense(in, out, data)
		m.biases[l] = make([]float64, out)
		state[l] = adamState{
			mW: mat.NewDense(in, out, nil),
			vW: mat.NewDense(in, out, nil),
			mB: make([]float64, out),
			vB: make([]float64, out),
		}
	}

	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}

	best := math.Inf(1)
	stale := 0
	step := 0
	for epoch := 0; epoch < m.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var epochLoss float64
		for start := 0; start < len(order); start += m.cfg.BatchSize {
			end := start + m.cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			step++
			loss := m.trainBatch(x, y, order[start:end], state, step)
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return apperrors.Wrapf(apperrors.ErrModelTraining, "mlp: loss diverged at epoch %d", epoch)
			}
			epochLoss += loss * float64(end-start)
		}
		epochLoss /= float64(len(order))

		if epochLoss > best-lossTol {
			stale++
			if m.cfg.Patience > 0 && stale >= m.cfg.Patience {
				break
			}
		} else {
			stale = 0
		}
		if epochLoss < best {
			best = epochLoss
		}
	}
	return nil
}

// trainBatch runs one forward/backward pass and Adam update, returning the batch loss.
func (m *MLP) trainBatch(x [][]float64, y []float64, idx []int, state []adamState, step int) float64 {
	n := len(idx)
	width := len(x[0])
	data := make([]float64, 0, n*width)
	targets := make([]float64, n)
	for i, r := range idx {
		data = append(data, x[r]...)
		targets[i] = y[r]
	}

	activations, preActivations := m.forward(mat.NewDense(n, width, data))
	out := activations[len(activations)-1]

	var loss float64
	delta := new(mat.Dense)
	delta.Apply(func(i, _ int, v float64) float64 {
		diff := v - targets[i]
		loss += diff * diff
		return diff / float64(n)
	}, out)
	loss /= 2 * float64(n)

	var penalty float64
	for _, w := range m.weights {
		penalty += mat.Norm(w, 2) * mat.Norm(w, 2)
	}
	loss += m.cfg.Alpha * penalty / (2 * float64(n))

	lr := m.cfg.LearningRate * math.Sqrt(1-math.Pow(adamBeta2, float64(step))) / (1 - math.Pow(adamBeta1, float64(step)))

	for l := len(m.weights) - 1; l >= 0; l-- {
		w := m.weights[l]

		gradW := new(mat.Dense)
		gradW.Mul(activations[l].T(), delta)
		reg := new(mat.Dense)
		reg.Scale(m.cfg.Alpha/float64(n), w)
		gradW.Add(gradW, reg)

		rows, cols := delta.Dims()
		gradB := make([]float64, cols)
		for j := 0; j < cols; j++ {
			for i := 0; i < rows; i++ {
				gradB[j] += delta.At(i, j)
			}
		}

		var next *mat.Dense
		if l > 0 {
			next = new(mat.Dense)
			next.Mul(delta, w.T())
			z := preActivations[l-1]
			next.Apply(func(i, j int, v float64) float64 {
				if z.At(i, j) > 0 {
					return v
				}
				return 0
			}, next)
		}

		adamUpdate(w.RawMatrix().Data, gradW.RawMatrix().Data, state[l].mW.RawMatrix().Data, state[l].vW.RawMatrix().Data, lr)
		adamUpdate(m.biases[l], gradB, state[l].mB, state[l].vB, lr)

		if next != nil {
			delta = next
		}
	}

	return loss
}

func adamUpdate(params, grads, first, second []float64, lr float64) {
	for i, g := range grads {
		first[i] = adamBeta1*first[i] + (1-adamBeta1)*g
		second[i] = adamBeta2*second[i] + (1-adamBeta2)*g*g
		params[i] -= lr * first[i] / (math.Sqrt(second[i]) + adamEpsilon)
	}
}

// forward returns the activations of every layer (input first) and the
// pre-activation values of the hidden layers.
func (m *MLP) forward(input *mat.Dense) ([]*mat.Dense, []*mat.Dense) {
	activations := []*mat.Dense{input}
	var preActivations []*mat.Dense
	a := input
	for l, w := range m.weights {
		z := new(mat.Dense)
		z.Mul(a, w)
		bias := m.biases[l]
		z.Apply(func(_, j int, v float64) float64 { return v + bias[j] }, z)

		if l == len(m.weights)-1 {
			activations = append(activations, z)
			break
		}
		preActivations = append(preActivations, z)
		next := new(mat.Dense)
		next.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, z)
		activations = append(activations, next)
		a = next
	}
	return activations, preActivations
}

// Predict returns the network output for one row.
func (m *MLP) Predict(row []float64) float64 {
	if len(m.weights) == 0 {
		return 0
	}
	activations, _ := m.forward(mat.NewDense(1, len(row), append([]float64(nil), row...)))
	return activations[len(activations)-1].At(0, 0)
}
