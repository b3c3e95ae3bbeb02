// Package admission is the roll-number allocation engine: program
// classification, department ranges, sequence allocation and roll-number
// formatting, plus the transactional contract the admission flow runs in.
package admission

import (
	"strings"
)

// DegreePrefix is the two-letter degree code at the start of a roll number.
type DegreePrefix string

const (
	PrefixIntegratedMTech DegreePrefix = "IM"
	PrefixMTech           DegreePrefix = "MT"
	PrefixBTech           DegreePrefix = "BT"
	PrefixMSResearch      DegreePrefix = "MS"
)

// IsValid reports whether p is one of the known prefixes.
func (p DegreePrefix) IsValid() bool {
	switch p {
	case PrefixIntegratedMTech, PrefixMTech, PrefixBTech, PrefixMSResearch:
		return true
	default:
		return false
	}
}

func (p DegreePrefix) String() string { return string(p) }

// Department identifies the department whose seat block a program draws from.
type Department string

const (
	DepartmentCSE  Department = "CSE"
	DepartmentECE  Department = "ECE"
	DepartmentAIDS Department = "AIDS"
)

func (d Department) String() string { return string(d) }

// Classification is the result of classifying a program name.
type Classification struct {
	Prefix     DegreePrefix
	Department Department
}

type degreeMarker struct {
	matches func(normalized string) bool
	prefix  DegreePrefix
}

// Order matters: "IM.TECH" also contains "M.TECH".
var degreeMarkers = []degreeMarker{
	{
		matches: func(s string) bool { return strings.Contains(s, "IM.TECH") || strings.HasPrefix(s, "IMTECH") },
		prefix:  PrefixIntegratedMTech,
	},
	{matches: func(s string) bool { return strings.Contains(s, "M.TECH") }, prefix: PrefixMTech},
	{matches: func(s string) bool { return strings.Contains(s, "B.TECH") }, prefix: PrefixBTech},
	{matches: func(s string) bool { return strings.HasPrefix(s, "MS") }, prefix: PrefixMSResearch},
}

var departmentMarkers = []Department{DepartmentCSE, DepartmentECE, DepartmentAIDS}

// ProgramClassifier maps program names to a degree prefix and department.
// The zero value is not usable; call NewProgramClassifier.
type ProgramClassifier struct {
	degrees     []degreeMarker
	departments []Department
}

// NewProgramClassifier returns the classifier for the institution's
// degree and department markers.
func NewProgramClassifier() *ProgramClassifier {
	return &ProgramClassifier{
		degrees:     degreeMarkers,
		departments: departmentMarkers,
	}
}

// Classify matches program case-insensitively. It fails with a
// classification error naming the program when either the degree or the
// department cannot be determined.
func (c *ProgramClassifier) Classify(program string) (Classification, error) {
	normalized := strings.ToUpper(strings.TrimSpace(program))

	prefix, ok := c.degreePrefix(normalized)
	if !ok {
		return Classification{}, newClassificationError(program, "invalid degree in program")
	}

	dept, ok := c.department(normalized)
	if !ok {
		return Classification{}, newClassificationError(program, "unknown department in program")
	}

	return Classification{Prefix: prefix, Department: dept}, nil
}

func (c *ProgramClassifier) degreePrefix(normalized string) (DegreePrefix, bool) {
	for _, m := range c.degrees {
		if m.matches(normalized) {
			return m.prefix, true
		}
	}
	return "", false
}

func (c *ProgramClassifier) department(normalized string) (Department, bool) {
	for _, d := range c.departments {
		if strings.Contains(normalized, string(d)) {
			return d, true
		}
	}
	return "", false
}
