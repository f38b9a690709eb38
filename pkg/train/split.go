package train

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0xa3c59ac2))
}

// byClass groups example indices per class, in class order.
func byClass(examples []Example) map[condition.Class][]int {
	groups := make(map[condition.Class][]int)
	for i, ex := range examples {
		groups[ex.Class] = append(groups[ex.Class], i)
	}
	return groups
}

func sortedClasses(groups map[condition.Class][]int) []condition.Class {
	classes := make([]condition.Class, 0, len(groups))
	for c := range groups {
		classes = append(classes, c)
	}
	slices.Sort(classes)
	return classes
}

// Split shuffles each class with seed and moves round(testFraction * n)
// of its examples into the test partition, keeping at least one example
// of every class on each side when the class has two or more.
func Split(examples []Example, testFraction float64, seed uint64) (trainSet, testSet []Example, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("train: test fraction %v out of (0, 1)", testFraction)
	}
	rng := newRand(seed)
	groups := byClass(examples)
	for _, c := range sortedClasses(groups) {
		idx := slices.Clone(groups[c])
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTest := int(math.Round(testFraction * float64(len(idx))))
		if len(idx) >= 2 {
			nTest = min(max(nTest, 1), len(idx)-1)
		}
		for k, i := range idx {
			if k < nTest {
				testSet = append(testSet, examples[i])
			} else {
				trainSet = append(trainSet, examples[i])
			}
		}
	}
	return trainSet, testSet, nil
}

// stratifiedFolds assigns every index to one of k folds. Each class is
// shuffled and dealt round-robin, continuing where the previous class
// stopped, so fold sizes differ by at most one.
func stratifiedFolds(classes []condition.Class, k int, seed uint64) [][]int {
	rng := newRand(seed)
	groups := make(map[condition.Class][]int)
	for i, c := range classes {
		groups[c] = append(groups[c], i)
	}
	folds := make([][]int, k)
	next := 0
	for _, c := range sortedClasses(groups) {
		idx := slices.Clone(groups[c])
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for _, i := range idx {
			folds[next] = append(folds[next], i)
			next = (next + 1) % k
		}
	}
	for _, f := range folds {
		slices.Sort(f)
	}
	return folds
}
