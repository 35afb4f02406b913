package train

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeRows() []Row {
	var rows []Row
	for i := 0; i < 20; i++ {
		group := "f0"
		class := 0
		if i >= 10 {
			group = "f1"
			class = 1
		}
		rows = append(rows, Row{ClassIdx: class, GroupID: group})
	}
	return rows
}

func TestFeatureSplitNeverSplitsAGroup(t *testing.T) {
	rows := manyGroupsRows()
	s := MakeSplit(rows, SplitFeature, 0.2, 0.2, 42)

	groupPartition := make(map[string]string)
	assertSingle := func(idxs []int, label string) {
		for _, i := range idxs {
			g := rows[i].GroupID
			if existing, ok := groupPartition[g]; ok {
				require.Equal(t, existing, label, "group %s appeared in more than one partition", g)
			} else {
				groupPartition[g] = label
			}
		}
	}
	assertSingle(s.Train, "train")
	assertSingle(s.Val, "val")
	assertSingle(s.Test, "test")
}

// manyGroupsRows builds 40 groups (20 per class) of 3 rows each, so
// the feature split has enough groups to exercise its proportions.
func manyGroupsRows() []Row {
	var rows []Row
	for g := 0; g < 40; g++ {
		class := g % 2
		groupID := "g" + string(rune('A'+g))
		for r := 0; r < 3; r++ {
			rows = append(rows, Row{ClassIdx: class, GroupID: groupID})
		}
	}
	return rows
}

func TestPixelSplitPreservesPerClassProportions(t *testing.T) {
	rows := manyGroupsRows()
	s := MakeSplit(rows, SplitPixel, 0.2, 0.2, 7)
	require.NotEmpty(t, s.Train)
	require.NotEmpty(t, s.Test)

	classCount := func(idxs []int, class int) int {
		n := 0
		for _, i := range idxs {
			if rows[i].ClassIdx == class {
				n++
			}
		}
		return n
	}
	// Both classes have identical total counts in manyGroupsRows, so a
	// stratified split should give them comparable representation in test.
	t0, t1 := classCount(s.Test, 0), classCount(s.Test, 1)
	require.InDelta(t, t0, t1, float64(len(s.Test))*0.34+1)
}

func TestObservedClasses(t *testing.T) {
	rows := makeRows()
	require.Equal(t, []int{0, 1}, ObservedClasses(rows))
}

func TestMakeSplitIsDeterministicForFixedSeed(t *testing.T) {
	rows := manyGroupsRows()
	a := MakeSplit(rows, SplitFeature, 0.2, 0.2, 99)
	b := MakeSplit(rows, SplitFeature, 0.2, 0.2, 99)
	require.Equal(t, a, b)
}
