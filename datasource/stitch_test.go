package datasource_test

import (
	"testing"

	"github.com/n9te9/spacegraph/datasource"
	"github.com/stretchr/testify/assert"
)

func TestCrewReferences(t *testing.T) {
	tests := []struct {
		name string
		crew []int
		want []int
	}{
		{name: "keeps order", crew: []int{1, 2, 3}, want: []int{1, 2, 3}},
		{name: "empty crew", crew: []int{}, want: []int{}},
		{name: "nil crew", crew: nil, want: []int{}},
		{name: "duplicates kept", crew: []int{4, 4}, want: []int{4, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := datasource.CrewReferences(datasource.Mission{Crew: tt.crew})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCrewReferences_DoesNotAlias(t *testing.T) {
	m := datasource.Mission{Crew: []int{1, 2}}
	refs := datasource.CrewReferences(m)
	refs[0] = 99
	assert.Equal(t, []int{1, 2}, m.Crew)
}

func TestMissionsWithCrewMember(t *testing.T) {
	missions := []datasource.Mission{
		{ID: 1, Designation: "Apollo 8", Crew: []int{4}},
		{ID: 2, Designation: "Apollo 11", Crew: []int{1, 2, 3}},
		{ID: 3, Designation: "Apollo 13", Crew: []int{4}},
		{ID: 4, Designation: "Skylab", Crew: nil},
	}

	designations := func(ms []datasource.Mission) []string {
		out := []string{}
		for _, m := range ms {
			out = append(out, m.Designation)
		}
		return out
	}

	tests := []struct {
		name string
		id   string
		want []string
	}{
		{name: "single mission", id: "1", want: []string{"Apollo 11"}},
		{name: "several missions in order", id: "4", want: []string{"Apollo 8", "Apollo 13"}},
		{name: "no missions", id: "5", want: []string{}},
		{name: "non numeric id", id: "abc", want: []string{}},
		{name: "trailing garbage", id: "1abc", want: []string{"Apollo 11"}},
		{name: "decimal", id: "4.5", want: []string{"Apollo 8", "Apollo 13"}},
		{name: "surrounding whitespace", id: " 2 ", want: []string{"Apollo 11"}},
		{name: "explicit sign", id: "+3", want: []string{"Apollo 11"}},
		{name: "hexadecimal", id: "0x4", want: []string{"Apollo 8", "Apollo 13"}},
		{name: "sign without digits", id: "-", want: []string{}},
		{name: "empty id", id: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := datasource.MissionsWithCrewMember(missions, tt.id)
			assert.Equal(t, tt.want, designations(got))
		})
	}
}
