package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	apperrors "fairvalue-engine/internal/errors"
)

// ForestConfig holds random-forest hyperparameters.
type ForestConfig struct {
	Trees           int   `mapstructure:"trees"`
	MaxDepth        int   `mapstructure:"max_depth"`
	MinSamplesSplit int   `mapstructure:"min_samples_split"`
	MinSamplesLeaf  int   `mapstructure:"min_samples_leaf"`
	Seed            int64 `mapstructure:"seed"`
}

// DefaultForestConfig returns the default forest hyperparameters.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:           100,
		MaxDepth:        8,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Seed:            42,
	}
}

// RandomForest is a bagged ensemble of regression trees. Each split considers
// sqrt(features) randomly chosen columns.
type RandomForest struct {
	cfg   ForestConfig
	trees []*treeNode
}

// NewRandomForest creates an untrained forest.
func NewRandomForest(cfg ForestConfig) *RandomForest {
	if cfg.Trees <= 0 {
		cfg.Trees = 1
	}
	if cfg.MinSamplesLeaf <= 0 {
		cfg.MinSamplesLeaf = 1
	}
	if cfg.MinSamplesSplit < 2*cfg.MinSamplesLeaf {
		cfg.MinSamplesSplit = 2 * cfg.MinSamplesLeaf
	}
	return &RandomForest{cfg: cfg}
}

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

// Fit trains every tree on its own bootstrap sample. Trees are grown in parallel,
// each with a seed derived from the forest seed, so results are reproducible.
func (f *RandomForest) Fit(ctx context.Context, x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return apperrors.Wrapf(apperrors.ErrModelTraining, "forest: %d rows, %d targets", len(x), len(y))
	}

	trees := make([]*treeNode, f.cfg.Trees)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for t := range trees {
		t := t
		g.Go(guarded(fmt.Sprintf("tree %d", t), func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(f.cfg.Seed + int64(t)))
			sample := make([]int, len(x))
			for i := range sample {
				sample[i] = rng.Intn(len(x))
			}
			b := &treeBuilder{cfg: f.cfg, x: x, y: y, rng: rng, mtry: maxFeatures(len(x[0]))}
			trees[t] = b.grow(sample, 0)
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.trees = trees
	return nil
}

// Predict returns the mean prediction across trees.
func (f *RandomForest) Predict(row []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	var sum float64
	for _, tree := range f.trees {
		sum += tree.predict(row)
	}
	return sum / float64(len(f.trees))
}

func (n *treeNode) predict(row []float64) float64 {
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func maxFeatures(width int) int {
	m := int(math.Sqrt(float64(width)))
	if m < 1 {
		m = 1
	}
	return m
}

type treeBuilder struct {
	cfg  ForestConfig
	x    [][]float64
	y    []float64
	rng  *rand.Rand
	mtry int
}

func (b *treeBuilder) grow(idx []int, depth int) *treeNode {
	targets := make([]float64, len(idx))
	for i, r := range idx {
		targets[i] = b.y[r]
	}
	mean := floats.Sum(targets) / float64(len(targets))

	if depth >= b.cfg.MaxDepth || len(idx) < b.cfg.MinSamplesSplit || floats.Max(targets) == floats.Min(targets) {
		return &treeNode{leaf: true, value: mean}
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return &treeNode{leaf: true, value: mean}
	}

	var left, right []int
	for _, r := range idx {
		if b.x[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{leaf: true, value: mean}
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      b.grow(left, depth+1),
		right:     b.grow(right, depth+1),
	}
}

// bestSplit finds the split with the largest reduction in squared error over
// a random subset of features.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	width := len(b.x[0])
	candidates := b.rng.Perm(width)[:b.mtry]

	n := len(idx)
	var total, totalSq float64
	for _, r := range idx {
		total += b.y[r]
		totalSq += b.y[r] * b.y[r]
	}
	parentSSE := totalSq - total*total/float64(n)

	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0
	sorted := make([]int, n)
	minLeaf := b.cfg.MinSamplesLeaf

	for _, feature := range candidates {
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][feature] < b.x[sorted[j]][feature] })

		var leftSum, leftSq float64
		for i := 0; i < n-1; i++ {
			v := b.y[sorted[i]]
			leftSum += v
			leftSq += v * v

			nl, nr := i+1, n-i-1
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			cur, next := b.x[sorted[i]][feature], b.x[sorted[i+1]][feature]
			if cur == next {
				continue
			}

			rightSum, rightSq := total-leftSum, totalSq-leftSq
			sse := leftSq - leftSum*leftSum/float64(nl) + rightSq - rightSum*rightSum/float64(nr)
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = feature
				bestThreshold = (cur + next) / 2
				if bestThreshold >= next {
					bestThreshold = cur
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}
