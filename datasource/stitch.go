package datasource

import (
	"strconv"
	"strings"
)

// CrewReferences returns the crew ids of m as entity references. Each id is
// passed through as is; no astronaut data is loaded here.
func CrewReferences(m Mission) []int {
	refs := make([]int, len(m.Crew))
	copy(refs, m.Crew)
	return refs
}

// MissionsWithCrewMember keeps the missions whose crew contains astronautID,
// in input order. The id is read leniently: leading whitespace and sign, then
// the longest run of digits ("1abc" is 1, "0x1f" is hexadecimal). An id with no
// leading number matches nothing.
func MissionsWithCrewMember(missions []Mission, astronautID string) []Mission {
	id, ok := leadingInt(astronautID)
	if !ok {
		return []Mission{}
	}

	out := make([]Mission, 0, len(missions))
	for _, m := range missions {
		for _, member := range m.Crew {
			if member == id {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")

	sign := ""
	if s != "" && (s[0] == '+' || s[0] == '-') {
		sign, s = s[:1], s[1:]
	}

	base, isDigit := 10, func(c byte) bool { return '0' <= c && c <= '9' }
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
		base = 16
		isDigit = func(c byte) bool {
			return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
		}
	}

	end := 0
	for end < len(s) && isDigit(s[end]) {
		end++
	}
	if end == 0 {
		return 0, false
	}

	n, err := strconv.ParseInt(sign+s[:end], base, 0)
	if err != nil {
		return 0, false
	}
	return int(n), true
}
