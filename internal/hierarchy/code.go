package hierarchy

import (
	"fmt"
	"strings"
	"unicode"
)

// Fragment lengths used by the code families. Project, epic, and sprint
// prefixes take two letters; functional-requirement fragments take one.
const (
	ProjectFragmentLen     = 2
	RequirementFragmentLen = 1
)

// Fragment derives a short alphabetic code fragment from a name: the first
// n letters, everything else stripped, upper-cased. A name with fewer than
// n letters yields a shorter fragment; a name with no letters yields "".
func Fragment(name string, n int) string {
	var b strings.Builder
	for _, r := range name {
		if !unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if b.Len() >= n {
			break
		}
	}
	return b.String()
}

// ProjectCode derives the project prefix shared by epic and task codes.
func ProjectCode(projectName string) string {
	return Fragment(projectName, ProjectFragmentLen)
}

// ClientRequirementCode returns the code for the seq-th client requirement
// (1-based).
func ClientRequirementCode(seq int) string {
	return fmt.Sprintf("CR-%02d", seq)
}

// RootRequirementCode returns the code for the seq-th root functional
// requirement, counted among roots only.
func RootRequirementCode(seq int) string {
	return fmt.Sprintf("REQ-%02d", seq)
}

// ChildRequirementCode appends a sibling sequence to the parent's code,
// producing a dotted path whose depth equals nesting depth.
func ChildRequirementCode(parentCode string, seq int) string {
	return fmt.Sprintf("%s.%02d", parentCode, seq)
}

// EpicCode returns the code for the seq-th epic of a project.
func EpicCode(projectCode string, seq int) string {
	return fmt.Sprintf("%s-EPIC-%02d", projectCode, seq)
}

// TaskCode returns the code for the seq-th task of a project, padded to
// three digits.
func TaskCode(projectCode string, seq int) string {
	return fmt.Sprintf("%s-%03d", projectCode, seq)
}

// SprintCode returns the code for the seq-th sprint of a project. Sprints
// are created outside the import pipeline but share the same derivation.
func SprintCode(projectCode string, seq int) string {
	return fmt.Sprintf("%s-S%02d", projectCode, seq)
}

// Assigner hands out hierarchy codes in processing order for one import
// run. Sequence numbers come purely from the run's own counters, never
// from the store, so two concurrent runs for the same project can collide.
type Assigner struct {
	projectCode string
	clientReqs  int
	roots       int
	epics       int
	tasks       int
	children    map[string]int
}

// NewAssigner returns an Assigner scoped to one project.
func NewAssigner(projectName string) *Assigner {
	return &Assigner{
		projectCode: ProjectCode(projectName),
		children:    map[string]int{},
	}
}

// ProjectCode exposes the derived project prefix.
func (a *Assigner) ProjectCode() string { return a.projectCode }

// ClientRequirement returns the next client requirement code.
func (a *Assigner) ClientRequirement() string {
	a.clientReqs++
	return ClientRequirementCode(a.clientReqs)
}

// RootRequirement returns the next root functional requirement code.
func (a *Assigner) RootRequirement() string {
	a.roots++
	return RootRequirementCode(a.roots)
}

// ChildRequirement returns the next child code under the given parent code.
// Sibling sequences count children already assigned under that exact code.
func (a *Assigner) ChildRequirement(parentCode string) string {
	a.children[parentCode]++
	return ChildRequirementCode(parentCode, a.children[parentCode])
}

// Epic returns the next epic code.
func (a *Assigner) Epic() string {
	a.epics++
	return EpicCode(a.projectCode, a.epics)
}

// Task returns the next task code.
func (a *Assigner) Task() string {
	a.tasks++
	return TaskCode(a.projectCode, a.tasks)
}
