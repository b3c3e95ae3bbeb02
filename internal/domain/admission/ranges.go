package admission

import (
	"errors"
	"fmt"
	"sort"
)

// DepartmentRange is the inclusive block of sequence numbers reserved for a
// department in each join year.
type DepartmentRange struct {
	Department Department
	Start      int
	End        int
}

// Contains reports whether seq lies within the range.
func (r DepartmentRange) Contains(seq int) bool {
	return seq >= r.Start && seq <= r.End
}

// Size is the number of seats in the range.
func (r DepartmentRange) Size() int {
	return r.End - r.Start + 1
}

func (r DepartmentRange) String() string {
	return fmt.Sprintf("%s[%d-%d]", r.Department, r.Start, r.End)
}

func (r DepartmentRange) overlaps(o DepartmentRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

// DepartmentRangeTable is an immutable, validated department → range table.
// Onboarding a department means editing DefaultDepartmentRanges.
type DepartmentRangeTable struct {
	ranges map[Department]DepartmentRange
	sorted []DepartmentRange
}

// NewDepartmentRangeTable validates ranges and builds a table. Every range
// must satisfy 1 ≤ start ≤ end ≤ MaxSequence, departments must be unique,
// and no two ranges may overlap.
func NewDepartmentRangeTable(ranges ...DepartmentRange) (*DepartmentRangeTable, error) {
	if len(ranges) == 0 {
		return nil, errors.New("department range table: no ranges")
	}

	t := &DepartmentRangeTable{
		ranges: make(map[Department]DepartmentRange, len(ranges)),
		sorted: make([]DepartmentRange, 0, len(ranges)),
	}

	for _, r := range ranges {
		if r.Department == "" {
			return nil, errors.New("department range table: empty department")
		}
		if r.Start < 1 || r.End > MaxSequence || r.Start > r.End {
			return nil, fmt.Errorf("department range table: invalid range %s", r)
		}
		if _, dup := t.ranges[r.Department]; dup {
			return nil, fmt.Errorf("department range table: duplicate department %s", r.Department)
		}
		for _, existing := range t.sorted {
			if r.overlaps(existing) {
				return nil, fmt.Errorf("department range table: %s overlaps %s", r, existing)
			}
		}
		t.ranges[r.Department] = r
		t.sorted = append(t.sorted, r)
	}

	sort.Slice(t.sorted, func(i, j int) bool { return t.sorted[i].Start < t.sorted[j].Start })
	return t, nil
}

// DefaultDepartmentRanges returns the institution's seat blocks.
func DefaultDepartmentRanges() *DepartmentRangeTable {
	t, err := NewDepartmentRangeTable(
		DepartmentRange{Department: DepartmentCSE, Start: 1, End: 200},
		DepartmentRange{Department: DepartmentECE, Start: 501, End: 600},
		DepartmentRange{Department: DepartmentAIDS, Start: 701, End: 800},
	)
	if err != nil {
		panic(err)
	}
	return t
}

// RangeFor returns the range of dept or an unknown-department error.
func (t *DepartmentRangeTable) RangeFor(dept Department) (DepartmentRange, error) {
	r, ok := t.ranges[dept]
	if !ok {
		return DepartmentRange{}, newUnknownDepartmentError(dept)
	}
	return r, nil
}

// All returns the ranges ordered by start. The slice is a copy.
func (t *DepartmentRangeTable) All() []DepartmentRange {
	out := make([]DepartmentRange, len(t.sorted))
	copy(out, t.sorted)
	return out
}
