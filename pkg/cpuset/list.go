package cpuset

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"k8s.io/utils/cpuset"
)

// ErrInvalidList is wrapped by every error returned from ParseList.
var ErrInvalidList = errors.New("invalid range list")

// ParseList expands a kernel style range list such as "0-3,5" into its
// integers, sorted ascending. Duplicates present in the input are kept.
// An empty (or all-whitespace) list yields an empty slice.
func ParseList(s string) ([]int, error) {
	list := []int{}
	s = strings.TrimSpace(s)
	if s == "" {
		return list, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w: empty element in %q", ErrInvalidList, s)
		}
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidList, part)
			}
			list = append(list, n)
			continue
		}
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("%w: bad range start in %q", ErrInvalidList, part)
		}
		b, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("%w: bad range end in %q", ErrInvalidList, part)
		}
		if a > b {
			return nil, fmt.Errorf("%w: reversed range %q", ErrInvalidList, part)
		}
		for n := a; n <= b; n++ {
			list = append(list, n)
		}
	}
	sort.Ints(list)
	return list, nil
}

// ToCPUSet parses s and returns it as a CPUSet, collapsing duplicates.
func ToCPUSet(s string) (cpuset.CPUSet, error) {
	list, err := ParseList(s)
	if err != nil {
		return cpuset.New(), err
	}
	return cpuset.New(list...), nil
}
