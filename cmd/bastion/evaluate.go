package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bastion-hq/aegis/pkg/audit"
	"bastion-hq/aegis/pkg/cli"
	"bastion-hq/aegis/pkg/config"
	"bastion-hq/aegis/pkg/waf"
)

var evaluateFlags struct {
	rules   string
	method  string
	path    string
	ip      string
	headers []string
	body    string
	token   string
	remote  bool
	format  string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one request offline",
	Long: `Evaluate a single request through the pipeline and print the decision.

Only rules run by default. --remote adds the reputation and anomaly stages
from the configuration. Rate limiting and auditing are never applied.

The command exits 0 for ALLOW and COUNT and 3 when the request is refused.

Examples:
  # Check a request against a rule directory
  bastion evaluate --rules rules/ --method GET --path /admin --ip 203.0.113.7

  # Include headers and a body, print JSON
  bastion evaluate --rules rules.yaml --path /login -H "User-Agent: sqlmap/1.7" \
    --body "user=admin' OR 1=1" --format json`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evaluateFlags.rules, "rules", "", "rule file or directory (default: rules.path from config)")
	evaluateCmd.Flags().StringVarP(&evaluateFlags.method, "method", "X", "GET", "request method")
	evaluateCmd.Flags().StringVar(&evaluateFlags.path, "path", "/", "request path, optionally with a query string")
	evaluateCmd.Flags().StringVar(&evaluateFlags.ip, "ip", "127.0.0.1", "source IP address")
	evaluateCmd.Flags().StringArrayVarP(&evaluateFlags.headers, "header", "H", nil, `request header as "Name: value" (repeatable)`)
	evaluateCmd.Flags().StringVar(&evaluateFlags.body, "body", "", "request body")
	evaluateCmd.Flags().StringVar(&evaluateFlags.token, "bypass-token", "", "bypass token to present")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.remote, "remote", false, "also query the configured reputation and anomaly services")
	evaluateCmd.Flags().StringVar(&evaluateFlags.format, "format", "text", "output format: text, json")
}

// captureRecorder keeps the audit event of the evaluation instead of
// sealing and storing it.
type captureRecorder struct {
	mu    sync.Mutex
	event *audit.Event
}

func (r *captureRecorder) Record(_ context.Context, e *audit.Event) error {
	r.mu.Lock()
	r.event = e
	r.mu.Unlock()
	return nil
}

// evaluation is the printed result of the evaluate command.
type evaluation struct {
	Decision  *waf.Decision   `json:"decision"`
	RiskLevel audit.RiskLevel `json:"risk_level,omitempty"`
	EventType audit.EventType `json:"event_type,omitempty"`
}

func (e evaluation) Text() string {
	d := e.Decision
	var sb strings.Builder
	fmt.Fprintf(&sb, "decision: %s\n", d.Action)
	fmt.Fprintf(&sb, "stage:    %s\n", d.Stage)
	fmt.Fprintf(&sb, "reason:   %s", d.Reason)
	if d.RuleID != "" {
		fmt.Fprintf(&sb, "\nrule:     %s", d.RuleID)
	}
	if d.Score != nil {
		fmt.Fprintf(&sb, "\nscore:    %.2f", *d.Score)
	}
	if len(d.Counted) > 0 {
		fmt.Fprintf(&sb, "\ncounted:  %s", strings.Join(d.Counted, ", "))
	}
	if e.RiskLevel != "" {
		fmt.Fprintf(&sb, "\nrisk:     %s", e.RiskLevel)
	}
	fmt.Fprintf(&sb, "\nelapsed:  %s", d.Duration.Round(time.Microsecond))
	return sb.String()
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(evaluateFlags.format))
	if err != nil {
		return err
	}
	req, err := buildEvalRequest()
	if err != nil {
		return cli.NewExitError(cli.ExitUsage, err)
	}

	// The offline evaluation needs no key service, so a config file is
	// only read when one is named.
	cfg := config.Default()
	if cfgFile != "" {
		if cfg, err = loadConfig(); err != nil {
			return err
		}
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if evaluateFlags.rules != "" {
		cfg.Rules.Path = evaluateFlags.rules
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}

	c := newComponents(cfg, logger)
	defer c.Close()
	if err := c.buildEngine(cfg.Rules.Path); err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	rec := &captureRecorder{}
	if err := c.buildPipeline(cmd.Context(), rec, stageOptions{remote: evaluateFlags.remote}); err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	d, evalErr := c.pipeline.Evaluate(cmd.Context(), req)
	if d == nil {
		return cli.NewCommandError("evaluate", evalErr)
	}
	out := evaluation{Decision: d}
	if rec.event != nil {
		out.RiskLevel = rec.event.RiskLevel
		out.EventType = rec.event.Type
	}
	if err := formatter.FormatTo(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if evalErr != nil {
		return cli.NewCommandError("evaluate", evalErr)
	}
	if d.Blocked() {
		return cli.NewExitError(cli.ExitBlocked, nil)
	}
	return nil
}

// buildEvalRequest turns the evaluate flags into a request.
func buildEvalRequest() (*waf.Request, error) {
	u, err := url.Parse(evaluateFlags.path)
	if err != nil || !strings.HasPrefix(u.Path, "/") {
		return nil, fmt.Errorf("invalid --path %q: must start with /", evaluateFlags.path)
	}
	if net.ParseIP(evaluateFlags.ip) == nil {
		return nil, fmt.Errorf("invalid --ip %q", evaluateFlags.ip)
	}

	headers := make(map[string]string, len(evaluateFlags.headers))
	for _, h := range evaluateFlags.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --header %q: want \"Name: value\"", h)
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	token := evaluateFlags.token
	if token == "" {
		token = headers["x-bypass-token"]
	}
	return &waf.Request{
		ID:          uuid.NewString(),
		Method:      strings.ToUpper(evaluateFlags.method),
		Path:        u.Path,
		Query:       u.Query(),
		Headers:     headers,
		Body:        []byte(evaluateFlags.body),
		SourceIP:    evaluateFlags.ip,
		UserAgent:   headers["user-agent"],
		BypassToken: token,
		ReceivedAt:  time.Now(),
	}, nil
}
