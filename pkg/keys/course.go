package keys

import (
	"strings"
)

const (
	CourseNamespace      = "course-v1"
	CourseUsageNamespace = "block-v1"
)

func init() {
	registerContext(CourseNamespace, func(body string) (ContextKey, error) {
		return parseCourseBody(body)
	})
	registerUsage(CourseUsageNamespace, func(body string) (UsageKey, error) {
		return parseCourseUsageBody(body)
	})
}

// CourseKey identifies a course run: "course-v1:<org>+<course>+<run>".
type CourseKey struct {
	Org    string
	Course string
	Run    string
}

var _ ContextKey = CourseKey{}

func NewCourseKey(org, course, run string) (CourseKey, error) {
	for _, f := range []struct{ name, value string }{{"org", org}, {"course", course}, {"run", run}} {
		if err := checkField(f.name, f.value, asciiFieldRE); err != nil {
			return CourseKey{}, err
		}
	}
	return CourseKey{Org: org, Course: course, Run: run}, nil
}

func parseCourseBody(body string) (CourseKey, error) {
	parts := strings.Split(body, "+")
	if len(parts) != 3 {
		return CourseKey{}, invalidf("course key %q must have 3 parts", body)
	}
	return NewCourseKey(parts[0], parts[1], parts[2])
}

func (k CourseKey) Namespace() string { return CourseNamespace }
func (k CourseKey) IsCourse() bool    { return true }
func (k CourseKey) String() string {
	return CourseNamespace + ":" + k.body()
}

func (k CourseKey) body() string {
	return k.Org + "+" + k.Course + "+" + k.Run
}

// CourseUsageKey identifies a block in a course run:
// "block-v1:<org>+<course>+<run>+type@<block_type>+block@<block_id>".
type CourseUsageKey struct {
	Course CourseKey
	Type   string
	ID     string
}

var _ UsageKey = CourseUsageKey{}

func NewCourseUsageKey(course CourseKey, blockType, blockID string) (CourseUsageKey, error) {
	if err := checkField("block_type", blockType, asciiFieldRE); err != nil {
		return CourseUsageKey{}, err
	}
	if err := checkField("block_id", blockID, usageIDRE); err != nil {
		return CourseUsageKey{}, err
	}
	return CourseUsageKey{Course: course, Type: blockType, ID: blockID}, nil
}

func parseCourseUsageBody(body string) (CourseUsageKey, error) {
	parts := strings.Split(body, "+")
	if len(parts) != 5 {
		return CourseUsageKey{}, invalidf("course usage key %q must have 5 parts", body)
	}
	course, err := NewCourseKey(parts[0], parts[1], parts[2])
	if err != nil {
		return CourseUsageKey{}, err
	}
	blockType, ok := strings.CutPrefix(parts[3], "type@")
	if !ok {
		return CourseUsageKey{}, invalidf("course usage key %q has no type@ part", body)
	}
	blockID, ok := strings.CutPrefix(parts[4], "block@")
	if !ok {
		return CourseUsageKey{}, invalidf("course usage key %q has no block@ part", body)
	}
	return NewCourseUsageKey(course, blockType, blockID)
}

func (k CourseUsageKey) Namespace() string   { return CourseUsageNamespace }
func (k CourseUsageKey) BlockType() string   { return k.Type }
func (k CourseUsageKey) BlockID() string     { return k.ID }
func (k CourseUsageKey) Context() ContextKey { return k.Course }

func (k CourseUsageKey) String() string {
	return CourseUsageNamespace + ":" + k.Course.body() + "+type@" + k.Type + "+block@" + k.ID
}

func (k CourseUsageKey) WithBlock(blockType, blockID string) (UsageKey, error) {
	if blockType == k.Type && blockID == k.ID {
		return k, nil
	}
	return NewCourseUsageKey(k.Course, blockType, blockID)
}
