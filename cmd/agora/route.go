package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agora/internal/orchestrator"
	"github.com/ShayCichocki/agora/pkg/models"
)

var (
	routeDescription      string
	routeType             string
	routeComplexity       int
	routeRisk             int
	routeForceConsensus   bool
	routePreventConsensus bool
	routeAgent            string
	routeEmergency        bool
	routeNotes            string
	routeDirectiveText    string
	routeDependsOn        []string
	routeDue              string
	routeCreatedBy        string
)

var routeCmd = &cobra.Command{
	Use:   "route <title>",
	Short: "Classify, route and store a new task",
	Long: `Create a task and pick its strategy and participants.

Complexity and risk are rated 1-10. The strategy follows from them unless a
directive overrides it:
  --force-consensus     always ask several agents and vote
  --prevent-consensus   keep the task with one agent
  --agent <id>          assign to a named agent (id or alias)
  --emergency           run immediately, ahead of queued work

Examples:
  agora route "Fix typo in README" --type bugfix --complexity 1 --risk 1
  agora route "Design payment processing architecture" --type architecture --complexity 9 --risk 8
  agora route "Rename config keys" --complexity 3 --risk 2 --prevent-consensus`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRoute,
}

func init() {
	f := routeCmd.Flags()
	f.StringVarP(&routeDescription, "description", "d", "", "Longer description of the work")
	f.StringVarP(&routeType, "type", "t", "implementation", "Task type: "+taskTypeNames())
	f.IntVarP(&routeComplexity, "complexity", "c", 5, "Complexity rating (1-10)")
	f.IntVarP(&routeRisk, "risk", "r", 5, "Risk rating (1-10)")
	f.BoolVar(&routeForceConsensus, "force-consensus", false, "Require a multi-agent consensus")
	f.BoolVar(&routePreventConsensus, "prevent-consensus", false, "Keep the task with a single agent")
	f.StringVar(&routeAgent, "agent", "", "Assign to this agent (id or alias)")
	f.BoolVar(&routeEmergency, "emergency", false, "Run immediately as a solo task")
	f.StringVar(&routeNotes, "notes", "", "Notes recorded with the directive")
	f.StringVar(&routeDirectiveText, "directive-text", "", "Verbatim text the directive came from, for audit")
	f.StringSliceVar(&routeDependsOn, "depends-on", nil, "IDs of tasks this task depends on")
	f.StringVar(&routeDue, "due", "", "Deadline (RFC 3339)")
	f.StringVar(&routeCreatedBy, "created-by", defaultCaller(), "Caller recorded as the task creator")
}

func runRoute(cmd *cobra.Command, args []string) error {
	due, err := parseDue(routeDue)
	if err != nil {
		return err
	}

	var directive *models.Directive
	if routeForceConsensus || routePreventConsensus || routeAgent != "" || routeEmergency || routeNotes != "" || routeDirectiveText != "" {
		directive = &models.Directive{
			ForceConsensus:   routeForceConsensus,
			PreventConsensus: routePreventConsensus,
			AssignToAgent:    routeAgent,
			Emergency:        routeEmergency,
			Notes:            routeNotes,
			OriginalText:     routeDirectiveText,
		}
	}

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.orch.RouteAndCreate(context.Background(), orchestrator.CreateRequest{
		Title:       strings.Join(args, " "),
		Description: routeDescription,
		Type:        routeType,
		Complexity:  routeComplexity,
		Risk:        routeRisk,
		Directive:   directive,
		CreatedBy:   routeCreatedBy,
		DependsOn:   routeDependsOn,
		DueAt:       due,
	})
	if err != nil {
		return err
	}
	return printCreated(res)
}

var (
	assignDescription string
	assignType        string
	assignComplexity  int
	assignRisk        int
	assignEmergency   bool
	assignNotes       string
	assignDue         string
	assignCreatedBy   string
)

var assignCmd = &cobra.Command{
	Use:   "assign <agent> <title>",
	Short: "Create a solo task for a named agent",
	Long: `Assign a task directly to one agent, bypassing strategy selection.

The agent may be given by id or alias. Offline agents are rejected and no
task is stored.

Examples:
  agora assign claude "Rotate the signing key" --risk 6
  agora assign cc "Revert the broken deploy" --emergency`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAssign,
}

func init() {
	f := assignCmd.Flags()
	f.StringVarP(&assignDescription, "description", "d", "", "Longer description of the work")
	f.StringVarP(&assignType, "type", "t", "implementation", "Task type")
	f.IntVarP(&assignComplexity, "complexity", "c", 5, "Complexity rating (1-10)")
	f.IntVarP(&assignRisk, "risk", "r", 5, "Risk rating (1-10)")
	f.BoolVar(&assignEmergency, "emergency", false, "Run immediately, ahead of queued work")
	f.StringVar(&assignNotes, "notes", "", "Notes recorded with the assignment")
	f.StringVar(&assignDue, "due", "", "Deadline (RFC 3339)")
	f.StringVar(&assignCreatedBy, "created-by", defaultCaller(), "Caller recorded as the task creator")
}

func runAssign(cmd *cobra.Command, args []string) error {
	due, err := parseDue(assignDue)
	if err != nil {
		return err
	}

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.orch.AssignDirect(context.Background(), orchestrator.AssignRequest{
		Title:       strings.Join(args[1:], " "),
		Description: assignDescription,
		Type:        assignType,
		Complexity:  assignComplexity,
		Risk:        assignRisk,
		TargetAgent: args[0],
		Emergency:   assignEmergency,
		Notes:       assignNotes,
		CreatedBy:   assignCreatedBy,
		DueAt:       due,
	})
	if err != nil {
		return err
	}
	return printCreated(res)
}

func printCreated(res *orchestrator.CreateResult) error {
	if outputJSON {
		return printJSON(res)
	}

	t, dec := res.Task, res.Decision
	fmt.Printf("%s Created task %s\n", color.GreenString("✓"), t.ID)
	fmt.Printf("  Title: %s\n", t.Title)
	fmt.Printf("  Strategy: %s", color.CyanString(string(t.Strategy)))
	if dec.Immediate {
		fmt.Printf(" %s", color.RedString("(immediate)"))
	}
	fmt.Println()
	fmt.Printf("  Participants: %s\n", strings.Join(t.Participants, ", "))
	fmt.Printf("  Complexity/Risk: %d/%d\n", t.Complexity, t.Risk)
	fmt.Printf("  Reason: %s\n", dec.Reason)
	for _, w := range dec.Warnings {
		fmt.Printf("  %s %s\n", color.YellowString("⚠"), w)
	}
	return nil
}

// parseDue parses an optional RFC 3339 deadline.
func parseDue(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, &models.ValidationError{Field: "dueAt", Reason: fmt.Sprintf("invalid RFC 3339 time %q", s)}
	}
	return &t, nil
}
