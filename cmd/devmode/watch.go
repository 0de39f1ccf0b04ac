package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/benaskins/devmode/internal/api"
	"github.com/benaskins/devmode/internal/build"
	"github.com/benaskins/devmode/internal/config"
	"github.com/benaskins/devmode/internal/history"
	"github.com/benaskins/devmode/internal/logbuf"
	"github.com/benaskins/devmode/internal/reload"
	"github.com/benaskins/devmode/internal/session"
	"github.com/benaskins/devmode/internal/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the project and rebuild on every change",
	Long: "Watch the source tree, rebuild with goals chosen from what changed and reload the " +
		"application after each successful build. A newer change cancels the build in progress.",
	RunE: runWatch,
}

var (
	goalsFlag string
	quiet     bool
)

func init() {
	watchCmd.Flags().StringVarP(&goalsFlag, "goals", "g", "", "base build goals, overriding the config (e.g. \"compile war:exploded\")")
	watchCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not echo build output")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadProject()
	if err != nil {
		return err
	}
	if goalsFlag != "" {
		cfg.Goals = strings.Fields(goalsFlag)
	}

	sock := socketPath(root, cfg)
	if err := os.MkdirAll(filepath.Dir(sock), 0755); err != nil {
		return fmt.Errorf("creating socket dir: %w", err)
	}

	var echo io.Writer = os.Stdout
	if quiet {
		echo = nil
	}
	output := logbuf.New(cfg.Build.LogLines, echo)

	invoker, closeInvoker, err := newInvoker(cfg, output)
	if err != nil {
		return err
	}
	defer closeInvoker()

	reloader, err := reload.New(reload.Config{
		Type:    cfg.Reload.Type,
		Path:    config.Resolve(root, cfg.Reload.Path),
		URL:     cfg.Reload.URL,
		Command: cfg.Reload.Command,
		Dir:     root,
		Timeout: cfg.Reload.Timeout.Duration,
	})
	if err != nil {
		return err
	}

	historyPath := config.Resolve(root, cfg.History)
	var hist *history.Log
	if historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(historyPath), 0755); err != nil {
			return fmt.Errorf("creating history dir: %w", err)
		}
		if hist, err = history.Open(historyPath); err != nil {
			return err
		}
		defer hist.Close()
	}

	source, err := watch.NewSource(cfg.Backend)
	if err != nil {
		return err
	}

	vocab := session.Vocabulary(cfg.Vocabulary).Merge(session.MavenVocabulary)
	sess, err := session.New(session.Config{
		Layout: session.Layout{
			Root:        root,
			SourceDir:   config.Resolve(root, cfg.SourceDir),
			ResourceDir: config.Resolve(root, cfg.ResourceDir),
			TestDir:     config.Resolve(root, cfg.TestDir),
		},
		BaseGoals:        cfg.Goals,
		Vocabulary:       vocab,
		Ignore:           cfg.Ignore,
		CompiledPatterns: cfg.CompiledPatterns,
		SkipUnchanged:    cfg.SkipUnchanged,
		PollTimeout:      cfg.PollTimeout.Duration,
		Debounce:         cfg.Debounce.Duration,
		MaxBatchWait:     cfg.MaxBatchWait.Duration,
		Source:           source,
		Invoker:          invoker,
		Reloader:         reloader,
		ReloadTimeout:    cfg.Reload.Timeout.Duration,
		History:          hist,
	})
	if err != nil {
		source.Close()
		return err
	}

	srv := api.NewServer(sess, output, historyPath)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("devmode starting", "root", root, "goals", cfg.Goals, "build", cfg.Build.Type, "reload", cfg.Reload.Type)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sess.Start(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenUnix(sock); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-sess.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		os.Remove(sock)
		return err
	})
	return g.Wait()
}

// newInvoker builds the configured build invoker and a func releasing it.
func newInvoker(cfg *config.Config, output *logbuf.Ring) (build.Invoker, func(), error) {
	env := envList(cfg.Build.Env)
	switch cfg.Build.Type {
	case "container":
		c, err := build.NewContainer(build.ContainerConfig{
			Image:       cfg.Build.Image,
			Command:     cfg.Build.Command,
			Args:        cfg.Build.Args,
			Env:         env,
			Volumes:     cfg.Build.Volumes,
			Pull:        cfg.Build.Pull,
			StopTimeout: cfg.Build.StopTimeout.Duration,
			Output:      output,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	default:
		n := build.NewNative(build.NativeConfig{
			Command:     cfg.Build.Command,
			Args:        cfg.Build.Args,
			Env:         env,
			StopTimeout: cfg.Build.StopTimeout.Duration,
			Output:      output,
		})
		return n, func() {}, nil
	}
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}
