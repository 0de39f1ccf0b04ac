package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/benaskins/devmode/internal/change"
	"github.com/benaskins/devmode/internal/config"
	"github.com/benaskins/devmode/internal/session"
	"github.com/benaskins/devmode/internal/watch"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <kind:path>...",
	Short: "Show the goals a batch of changes would build with",
	Long: "Dry-run the goal planner. Each argument is a change such as modified:src/main/java/App.java " +
		"or deleted:src/main/resources/app.properties, with paths relative to the project root.",
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().Bool("clean-required", false, "assume an earlier structural change is still pending")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadProject()
	if err != nil {
		return err
	}
	sticky, _ := cmd.Flags().GetBool("clean-required")

	raw := make([]watch.Notification, 0, len(args))
	for _, arg := range args {
		kindName, path, ok := strings.Cut(arg, ":")
		if !ok {
			return fmt.Errorf("change %q must be kind:path", arg)
		}
		kind, err := change.ParseKind(kindName)
		if err != nil {
			return err
		}
		raw = append(raw, watch.Notification{Path: filepath.Join(root, path), Kind: kind})
	}

	ignore, err := watch.NewMatcher(root, cfg.Ignore)
	if err != nil {
		return err
	}
	classifier, err := change.NewClassifier(cfg.CompiledPatterns)
	if err != nil {
		return err
	}
	agg, err := session.NewAggregator(session.AggregatorConfig{
		Layout: session.Layout{
			Root:        root,
			SourceDir:   config.Resolve(root, cfg.SourceDir),
			ResourceDir: config.Resolve(root, cfg.ResourceDir),
			TestDir:     config.Resolve(root, cfg.TestDir),
		},
		Classifier: classifier,
		Ignore:     ignore,
	})
	if err != nil {
		return err
	}
	batch, err := agg.Aggregate(raw)
	if err != nil {
		return err
	}

	for _, e := range batch.Events {
		fmt.Printf("  %s\n", e)
	}
	if batch.Empty() {
		fmt.Println("all changes ignored; no build would run")
		return nil
	}

	vocab := session.Vocabulary(cfg.Vocabulary).Merge(session.MavenVocabulary)
	goals := session.Plan(vocab, cfg.Goals, session.PlanInput{
		Structural:       batch.Structural,
		ResourcesTouched: batch.ResourcesTouched,
		TestsTouched:     batch.TestsTouched,
		CleanRequired:    sticky,
		ChangeCount:      len(batch.Events),
	})
	fmt.Println(strings.Join(goals, " "))
	return nil
}
