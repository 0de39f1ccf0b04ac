package session

import "slices"

// Vocabulary is the build tool's spelling of the goals and flags the
// planner adds. An empty word is never emitted.
type Vocabulary struct {
	Clean         string `yaml:"clean"`
	SkipResources string `yaml:"skip_resources"`
	SkipTests     string `yaml:"skip_tests"`     // skip compiling and running tests
	SkipTestRun   string `yaml:"skip_test_run"`  // compile tests, do not run them
}

// MavenVocabulary is the default.
var MavenVocabulary = Vocabulary{
	Clean:         "clean",
	SkipResources: "-Dmaven.resources.skip=true",
	SkipTests:     "-Dmaven.test.skip=true",
	SkipTestRun:   "-DskipTests",
}

// Merge fills empty words in v from fallback.
func (v Vocabulary) Merge(fallback Vocabulary) Vocabulary {
	if v.Clean == "" {
		v.Clean = fallback.Clean
	}
	if v.SkipResources == "" {
		v.SkipResources = fallback.SkipResources
	}
	if v.SkipTests == "" {
		v.SkipTests = fallback.SkipTests
	}
	if v.SkipTestRun == "" {
		v.SkipTestRun = fallback.SkipTestRun
	}
	return v
}

// PlanInput is everything the planner looks at.
type PlanInput struct {
	Structural       bool
	ResourcesTouched bool
	TestsTouched     bool
	CleanRequired    bool
	ChangeCount      int
}

// NeedsClean reports whether incremental state may be stale: a delete or
// rename can leave artifacts of the removed source behind, and several
// changes at once are not resolved incrementally.
func (in PlanInput) NeedsClean() bool {
	return in.Structural || in.CleanRequired || in.ChangeCount > 1
}

// Plan maps a classified change onto an ordered goal list. It is pure:
// base is never modified and equal inputs give equal outputs.
func Plan(v Vocabulary, base []string, in PlanInput) []string {
	goals := make([]string, 0, len(base)+3)

	clean := in.NeedsClean()
	if clean && v.Clean != "" {
		goals = append(goals, v.Clean)
	}
	goals = append(goals, base...)

	if !clean && !in.ResourcesTouched {
		goals = appendWord(goals, v.SkipResources)
	}
	if in.TestsTouched {
		goals = appendWord(goals, v.SkipTestRun)
	} else {
		goals = appendWord(goals, v.SkipTests)
	}
	return slices.Clip(goals)
}

func appendWord(goals []string, w string) []string {
	if w == "" {
		return goals
	}
	return append(goals, w)
}
