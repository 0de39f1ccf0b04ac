package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/benaskins/devmode/internal/history"
	"github.com/benaskins/devmode/internal/session"
	"github.com/spf13/cobra"
)

func apiClient() (*http.Client, error) {
	root, cfg, err := loadProject()
	if err != nil {
		return nil, err
	}
	sock := socketPath(root, cfg)
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sock)
			},
		},
	}, nil
}

func apiGet(path string, v any) error {
	client, err := apiClient()
	if err != nil {
		return err
	}
	resp, err := client.Get("http://devmode" + path)
	if err != nil {
		return fmt.Errorf("connecting to session: %w (is devmode watch running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("API error %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func apiPost(path string) (map[string]any, error) {
	client, err := apiClient()
	if err != nil {
		return nil, err
	}
	resp, err := client.Post("http://devmode"+path, "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to session: %w (is devmode watch running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result, nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the running session",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st session.Status
		if err := apiGet("/v1/status", &st); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "ROOT\t%s\n", st.Root)
		fmt.Fprintf(w, "WATCHING\t%d directories\n", st.WatchedDirs)
		fmt.Fprintf(w, "STATE\t%s\n", st.Scheduler.State)
		if st.Scheduler.Current > 0 {
			fmt.Fprintf(w, "BUILD\t#%d %s\n", st.Scheduler.Current, strings.Join(st.Scheduler.CurrentGoals, " "))
		}
		fmt.Fprintf(w, "PENDING\t%d changes, clean required: %v\n", len(st.Scheduler.PendingChanges), st.Scheduler.CleanRequired)
		fmt.Fprintf(w, "BUILDS\t%d scheduled from %d batches\n", st.Scheduler.Builds, st.Batches)
		if last := st.Scheduler.Last; last != nil {
			detail := fmt.Sprintf("#%d %s in %s", last.Build, last.Outcome, last.Duration.Round(time.Millisecond))
			if last.Outcome != "succeeded" {
				detail += fmt.Sprintf(" (exit %d)", last.ExitCode)
			}
			fmt.Fprintf(w, "LAST\t%s\n", detail)
		}
		w.Flush()

		for _, c := range st.Scheduler.PendingChanges {
			fmt.Printf("  %s\n", c)
		}
		if last := st.Scheduler.Last; last != nil && last.Error != "" {
			fmt.Printf("\nlast build error: %s\n", last.Error)
		}
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Force a clean rebuild",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := apiPost("/v1/rebuild")
		if err != nil {
			return err
		}
		fmt.Println(result["status"])
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running session",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := apiPost("/v1/stop")
		if err != nil {
			return err
		}
		fmt.Println(result["status"])
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent build output",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("lines")
		var resp struct {
			Lines []string `json:"lines"`
		}
		if err := apiGet(fmt.Sprintf("/v1/log?lines=%d", n), &resp); err != nil {
			return err
		}
		for _, line := range resp.Lines {
			fmt.Println(line)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent builds",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("lines")
		var entries []history.Entry
		if err := apiGet(fmt.Sprintf("/v1/history?lines=%d", n), &entries); err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No builds")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tBUILD\tOUTCOME\tEXIT\tDURATION\tGOALS")
		for _, e := range entries {
			exit := "-"
			if e.ExitCode != nil {
				exit = fmt.Sprintf("%d", *e.ExitCode)
			}
			dur := "-"
			if e.DurationMS > 0 {
				dur = (time.Duration(e.DurationMS) * time.Millisecond).String()
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format(time.TimeOnly), e.Build, e.Outcome, exit, dur, strings.Join(e.Goals, " "))
		}
		return w.Flush()
	},
}

func init() {
	logCmd.Flags().IntP("lines", "n", 50, "number of lines to show")
	historyCmd.Flags().IntP("lines", "n", 20, "number of entries to show")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(historyCmd)
}
