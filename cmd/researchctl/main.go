package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"research-task-scheduler/internal/models"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

type client struct {
	base     string
	clientID string
	http     *http.Client
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &client{http: &http.Client{Timeout: 15 * time.Second}}
	root := &cobra.Command{
		Use:           "researchctl",
		Short:         "Submit and inspect research jobs",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.base, "server", envOr("RESEARCH_SERVER", "http://localhost:8080"), "researchd base URL")
	root.PersistentFlags().StringVar(&c.clientID, "client-id", os.Getenv("RESEARCH_CLIENT_ID"), "identity sent for rate limiting")

	root.AddCommand(submitCmd(c), statusCmd(c), statsCmd(c), cancelCmd(c), resultCmd(c))
	return root
}

func submitCmd(c *client) *cobra.Command {
	var priority string
	cmd := &cobra.Command{
		Use:   "submit <topic>",
		Short: "Queue a research topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Job models.Job `json:"job"`
			}
			body := map[string]string{"topic": strings.Join(args, " "), "priority": priority}
			if err := c.do(cmd.Context(), http.MethodPost, "/research", body, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", resp.Job.ID, resp.Job.Priority, resp.Job.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&priority, "priority", "p", "normal", "low, normal or high")
	return cmd
}

func statusCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's status and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st models.JobStatus
			if err := c.do(cmd.Context(), http.MethodGet, "/research/"+url.PathEscape(args[0]), nil, &st); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d%%\n", st.ID, st.Status, st.Progress)
			if st.Error != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", *st.Error)
			}
			return nil
		},
	}
}

func statsCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var s models.QueueStats
			if err := c.do(cmd.Context(), http.MethodGet, "/queue/stats", nil, &s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "waiting: %d\nactive: %d\ncompleted: %d\nfailed: %d\ntotal: %d\n",
				s.Waiting, s.Active, s.Completed, s.Failed, s.Total)
			return nil
		},
	}
}

func cancelCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job that has not started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Cancelled bool `json:"cancelled"`
			}
			if err := c.do(cmd.Context(), http.MethodPost, "/research/"+url.PathEscape(args[0])+"/cancel", nil, &resp); err != nil {
				return err
			}
			if !resp.Cancelled {
				return fmt.Errorf("job %s could not be cancelled (running or unknown)", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		},
	}
}

func resultCmd(c *client) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "result <job-id>",
		Short: "Print a completed job's research result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res models.ResearchResult
			if err := c.do(cmd.Context(), http.MethodGet, "/research/"+url.PathEscape(args[0])+"/result", nil, &res); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if raw {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "Topic: %s\nConfidence: %.2f\nArticles: %d (of %d found)\n\n%s\n",
				res.Topic, res.Confidence, len(res.Articles), res.TotalArticles, res.Summary)
			if len(res.KeyInsights) > 0 {
				fmt.Fprintln(out, "\nInsights:")
				for _, in := range res.KeyInsights {
					fmt.Fprintf(out, "  - %s\n", in)
				}
			}
			if len(res.Keywords) > 0 {
				fmt.Fprintf(out, "\nKeywords: %s\n", strings.Join(res.Keywords, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "json", false, "print the raw JSON result")
	return cmd
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.base, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.clientID != "" {
		req.Header.Set("X-Client-ID", c.clientID)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, apiErr.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
