package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"traincast/internal/audit"
	"traincast/internal/planstore"
	"traincast/internal/policy"
	"traincast/internal/projection"
	"traincast/internal/workspace"
)

const appName = "traincast"

func main() {
	flag.String("workspace", "", "Path to workspace root")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: training-load projection and goal feasibility\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [command] [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  init      Initialize a new workspace")
		fmt.Fprintln(os.Stderr, "  validate  Validate plan and history documents")
		fmt.Fprintln(os.Stderr, "  project   Run a projection over a window")
		fmt.Fprintln(os.Stderr, "  diff      Compare two projection artifacts")
		fmt.Fprintln(os.Stderr, "  policy    Inspect the effective policy table")
		fmt.Fprintln(os.Stderr, "  audit     Inspect the run log")
		fmt.Fprintln(os.Stderr, "  help      Show this help")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	workspacePath, remaining, err := extractWorkspaceFlag(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	args := remaining
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	switch args[0] {
	case "init":
		if err := runInit(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "validate":
		if err := runValidate(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "project":
		if err := runProject(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "diff":
		if err := runDiff(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "policy":
		if err := runPolicy(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "audit":
		if err := runAudit(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}

func extractWorkspaceFlag(args []string) (string, []string, error) {
	var workspacePath string
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--workspace" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--workspace requires a value")
			}
			workspacePath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--workspace=") {
			workspacePath = strings.TrimPrefix(arg, "--workspace=")
			continue
		}
		remaining = append(remaining, arg)
	}
	return workspacePath, remaining, nil
}

func resolveWorkspace(root string) (*workspace.Workspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("--workspace is required")
	}
	return workspace.Resolve(root)
}

func runInit(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(workspacePath) == "" {
		return fmt.Errorf("--workspace is required")
	}

	root, err := workspace.ResolveRoot(workspacePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return err
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}

	if err := writeFileIfMissing(filepath.Join(ws.PlanDir, "config.yml"), configTemplate); err != nil {
		return err
	}
	if err := writeFileIfMissing(filepath.Join(ws.PlanDir, "goals.yml"), goalsTemplate); err != nil {
		return err
	}
	if err := writeFileIfMissing(filepath.Join(ws.HistoryDir, "profile.yml"), profileTemplate); err != nil {
		return err
	}

	fmt.Printf("Initialized workspace at %s\n", ws.Root)
	return nil
}

func runValidate(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}

	table, err := loadPolicy(ws)
	if err != nil {
		return err
	}
	plan, err := planstore.LoadPlanDir(ws.PlanDir, table.Decimals)
	if err != nil {
		return err
	}
	samples, efforts, _, err := planstore.LoadHistoryDir(ws.HistoryDir)
	if err != nil {
		return err
	}

	fmt.Printf("plan OK: %d goals, %d activity samples, %d efforts\n",
		len(plan.Goals), len(samples), len(efforts))
	return nil
}

func runProject(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("project", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fromStr := fs.String("from", "", "Window start (YYYY-MM-DD, default: today)")
	toStr := fs.String("to", "", "Window end (YYYY-MM-DD, default: from + 8 weeks)")
	tz := fs.String("timezone", "", "Timezone label echoed into the output")
	outName := fs.String("out", "", "Artifact name (default: projection-<from>)")
	stdout := fs.Bool("stdout", false, "Print the payload instead of writing an artifact")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}

	from := time.Now()
	if *fromStr != "" {
		from, err = time.Parse(planstore.DateFormat, *fromStr)
		if err != nil {
			return fmt.Errorf("parse --from: %w", err)
		}
	} else {
		from, _ = time.Parse(planstore.DateFormat, from.Format(planstore.DateFormat))
	}
	to := from.AddDate(0, 0, 55)
	if *toStr != "" {
		to, err = time.Parse(planstore.DateFormat, *toStr)
		if err != nil {
			return fmt.Errorf("parse --to: %w", err)
		}
	}

	table, err := loadPolicy(ws)
	if err != nil {
		return err
	}
	plan, err := planstore.LoadPlanDir(ws.PlanDir, table.Decimals)
	if err != nil {
		return err
	}
	samples, efforts, profile, err := planstore.LoadHistoryDir(ws.HistoryDir)
	if err != nil {
		return err
	}
	scheduled, err := loadScheduled(ws)
	if err != nil {
		return err
	}

	out, err := projection.Project(projection.Input{
		Plan:      plan,
		Samples:   samples,
		Scheduled: scheduled,
		Efforts:   efforts,
		Profile:   profile,
		Window:    planstore.Window{Start: from, End: to, Timezone: *tz},
	}, table)
	if err != nil {
		return err
	}
	payload, err := projection.Encode(out)
	if err != nil {
		return err
	}

	if *stdout {
		_, err = os.Stdout.Write(payload)
		return err
	}

	name := *outName
	if name == "" {
		name = "projection-" + out.WindowStart
	}
	path := ws.ProjectionPath(name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}

	logger := audit.NewLogger(ws.AuditDBPath)
	runID, err := logger.Record(audit.Run{
		InputHash:   projection.Hash(payload),
		PolicyVer:   out.PolicyVersion,
		Mode:        out.Mode,
		Style:       out.Style,
		Band:        string(out.PlanFeasibility.Band),
		Readiness:   out.Readiness.Score,
		SolverTier:  out.Plan.Tier,
		Evaluations: out.Plan.Evaluations,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "audit log failed:", err)
	}

	fmt.Printf("wrote %s\n", path)
	fmt.Printf("readiness %.0f  band %s  solver %s (%d evals)",
		out.Readiness.Score, out.PlanFeasibility.Band, out.Plan.Tier, out.Plan.Evaluations)
	if runID != "" {
		fmt.Printf("  run %s", runID)
	}
	fmt.Println()
	return nil
}

func runDiff(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return fmt.Errorf("%s diff: expected two artifact names or paths", appName)
	}
	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}

	fromPath, toPath := artifactPath(ws, rest[0]), artifactPath(ws, rest[1])
	from, err := os.ReadFile(fromPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", fromPath, err)
	}
	to, err := os.ReadFile(toPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", toPath, err)
	}

	text, err := projection.Diff(rest[0], from, rest[1], to)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		fmt.Println("artifacts are identical")
		return nil
	}
	fmt.Print(text)
	return nil
}

func runPolicy(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] != "show" {
		return fmt.Errorf("%s policy: expected 'show' subcommand", appName)
	}
	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	table, err := loadPolicy(ws)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(table)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	os.Stdout.Write(data)
	return nil
}

func runAudit(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] != "tail" {
		return fmt.Errorf("%s audit: expected 'tail' subcommand", appName)
	}
	fs := flag.NewFlagSet("audit tail", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	n := fs.Int("n", 10, "Number of runs to show")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}

	logger := audit.NewLogger(ws.AuditDBPath)
	runs, err := logger.Tail(*n)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  readiness %.0f  band %-17s  %s/%d evals  %s\n",
			r.At.Format(time.RFC3339), r.ID, r.Readiness, r.Band,
			r.SolverTier, r.Evaluations, r.InputHash[:12])
	}
	return nil
}

func loadPolicy(ws *workspace.Workspace) (policy.Table, error) {
	if _, err := os.Stat(ws.PolicyPath); os.IsNotExist(err) {
		return policy.Default(), nil
	}
	return policy.LoadFile(ws.PolicyPath)
}

// loadScheduled reads the optional planned-session document. Absence means
// the schedule follows the ideal trajectory.
func loadScheduled(ws *workspace.Workspace) ([]planstore.LoadSample, error) {
	path := filepath.Join(ws.PlanDir, "scheduled.yml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return planstore.ParseActivityDocument(data, path)
}

func artifactPath(ws *workspace.Workspace, name string) string {
	if strings.ContainsAny(name, "/\\") || strings.HasSuffix(name, ".json") {
		return name
	}
	return ws.ProjectionPath(name)
}

func writeFileIfMissing(path string, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

const configTemplate = `# Plan configuration.
mode: safe_default
style: balanced
min_sessions_per_week: 3
hard_rest_days:
  - monday
`

const goalsTemplate = `# Goal documents. One or more goals per file.
goals:
  - goal_id: spring-10k
    name: Spring 10k
    target_date: 2027-04-18
    tier: A
    category: run
    targets:
      - target_id: finish
        kind: finish_time
        value: 2700
        distance_meters: 10000
        tolerance: 0.05
`

const profileTemplate = `# Athlete profile. Seeds the capability prior when
# effort evidence is sparse.
weight_kg: 70
lthr: 165
`
