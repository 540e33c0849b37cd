package anomaly

import (
	"math"
	"math/rand"

	"github.com/mailguard/mailguard/pkg/features"
)

// isolationForest is an ensemble of randomly built isolation trees.
// Points that isolate in few splits receive scores near 1; points deep
// in dense regions score near 0.
type isolationForest struct {
	trees      []*isolationTree
	sampleSize int
}

type isolationTree struct {
	root *treeNode
}

type treeNode struct {
	left  *treeNode
	right *treeNode

	// Internal nodes
	splitFeature int
	splitValue   float64

	// External nodes
	size int
}

// buildForest trains trees on random subsamples of the data set. The
// rng is owned by the caller so repeated fits with the same seed build
// the same forest.
func buildForest(data []features.Vector, trees, sampleSize int, rng *rand.Rand) *isolationForest {
	if sampleSize > len(data) {
		sampleSize = len(data)
	}

	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	forest := &isolationForest{
		trees:      make([]*isolationTree, 0, trees),
		sampleSize: sampleSize,
	}

	for i := 0; i < trees; i++ {
		sample := sampleVectors(data, sampleSize, rng)
		forest.trees = append(forest.trees, &isolationTree{
			root: buildNode(sample, 0, maxDepth, rng),
		})
	}

	return forest
}

// Score returns the anomaly score of a point in (0, 1), higher meaning
// easier to isolate
func (f *isolationForest) Score(v features.Vector) float64 {
	if len(f.trees) == 0 {
		return 0
	}

	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree.root, v, 0)
	}
	avgPath := total / float64(len(f.trees))

	// c(1) is 0; a single-point sample carries no isolation signal
	norm := avgExternalPath(f.sampleSize)
	if norm == 0 {
		return 0
	}

	return math.Pow(2, -avgPath/norm)
}

func buildNode(data []features.Vector, depth, maxDepth int, rng *rand.Rand) *treeNode {
	if len(data) <= 1 || depth >= maxDepth {
		return &treeNode{size: len(data)}
	}

	feature, lo, hi := pickSplit(data, rng)
	if feature < 0 {
		// Every remaining point is identical across all features
		return &treeNode{size: len(data)}
	}

	split := lo + rng.Float64()*(hi-lo)

	var left, right []features.Vector
	for _, v := range data {
		if v[feature] < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}

	if len(left) == 0 || len(right) == 0 {
		return &treeNode{size: len(data)}
	}

	return &treeNode{
		splitFeature: feature,
		splitValue:   split,
		left:         buildNode(left, depth+1, maxDepth, rng),
		right:        buildNode(right, depth+1, maxDepth, rng),
	}
}

// pickSplit chooses a random feature that still varies within data,
// returning its index and value range. Returns -1 when no feature
// varies.
func pickSplit(data []features.Vector, rng *rand.Rand) (int, float64, float64) {
	dim := len(data[0])
	offset := rng.Intn(dim)

	for i := 0; i < dim; i++ {
		feature := (offset + i) % dim
		lo, hi := data[0][feature], data[0][feature]
		for _, v := range data[1:] {
			if v[feature] < lo {
				lo = v[feature]
			}
			if v[feature] > hi {
				hi = v[feature]
			}
		}
		if hi > lo {
			return feature, lo, hi
		}
	}

	return -1, 0, 0
}

func pathLength(node *treeNode, v features.Vector, depth float64) float64 {
	if node.left == nil {
		return depth + avgExternalPath(node.size)
	}

	if v[node.splitFeature] < node.splitValue {
		return pathLength(node.left, v, depth+1)
	}
	return pathLength(node.right, v, depth+1)
}

// avgExternalPath is c(n), the average path length of an unsuccessful
// BST search over n points, used to normalize isolation depths
func avgExternalPath(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}

func sampleVectors(data []features.Vector, size int, rng *rand.Rand) []features.Vector {
	if size >= len(data) {
		return data
	}

	perm := rng.Perm(len(data))
	sample := make([]features.Vector, size)
	for i := 0; i < size; i++ {
		sample[i] = data[perm[i]]
	}
	return sample
}
