package eda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/eda/internal/appconfig"
	"github.com/mwiater/eda/internal/providerfactory"
	"github.com/mwiater/eda/internal/tui"
	"github.com/mwiater/eda/internal/util"
	"github.com/mwiater/eda/internal/workflow"
)

// workflowCmd groups workflow commands.
var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Run step-chained LLM workflows",
}

var workflowRunCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Run a workflow against an initial JSON state",
	Long: `Run executes every step of the workflow in order. Each step receives the current
state as JSON and its JSON object reply is merged into the state. Missing step prompts
are generated once and saved under promptDir.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

var workflowPromptsCmd = &cobra.Command{
	Use:   "prompts <workflow.yaml>",
	Short: "Generate any missing step prompts without running the workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		spec, err := workflow.LoadSpec(args[0])
		if err != nil {
			return err
		}
		completer, err := providerfactory.NewCompleter(cfg, recorder)
		if err != nil {
			return err
		}
		defer completer.Close()

		store := workflow.NewPromptStore(cfg.PromptDirectory(), completer)
		records, err := store.BuildAll(cmd.Context(), spec)
		for _, record := range records {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", success("✓"), store.Path(record.Name))
		}
		return err
	},
}

func init() {
	workflowRunCmd.Flags().String("input", "", "JSON file holding the initial state")
	workflowRunCmd.Flags().String("state", "", "initial state as a JSON object")
	workflowRunCmd.Flags().String("output", "", "write the final state to this file instead of stdout")
	workflowRunCmd.Flags().Bool("tui", false, "show a live progress view")
	workflowRunCmd.Flags().String("on-parse-error", "", "continue or abort when a step reply is not a JSON object")
	_ = viper.BindPFlag("onParseError", workflowRunCmd.Flags().Lookup("on-parse-error"))

	workflowCmd.AddCommand(workflowRunCmd, workflowPromptsCmd)
	rootCmd.AddCommand(workflowCmd)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	spec, err := workflow.LoadSpec(args[0])
	if err != nil {
		return err
	}
	initial, err := initialState(cmd)
	if err != nil {
		return err
	}

	completer, err := providerfactory.NewCompleter(cfg, recorder)
	if err != nil {
		return err
	}
	defer completer.Close()

	store := workflow.NewPromptStore(cfg.PromptDirectory(), completer)
	run := func(ctx context.Context, observer workflow.Observer) (*workflow.Result, error) {
		engine := workflow.NewEngine(store, completer,
			workflow.WithParsePolicy(cfg.ParsePolicy()),
			workflow.WithObserver(observer),
			workflow.WithRecorder(recorder),
		)
		return engine.Run(ctx, spec, initial)
	}

	var result *workflow.Result
	if useTUI, _ := cmd.Flags().GetBool("tui"); useTUI {
		result, err = tui.Run(cmd.Context(), spec, cmd.ErrOrStderr(), run)
	} else {
		result, err = run(cmd.Context(), &progressPrinter{out: cmd.ErrOrStderr(), policy: cfg.ParsePolicy()})
	}
	if result != nil {
		debugDump(cmd.ErrOrStderr(), "step outcomes", result.Steps)
		if writeErr := writeState(cmd, result.State); writeErr != nil && err == nil {
			err = writeErr
		}
	}
	return err
}

func initialState(cmd *cobra.Command) (workflow.State, error) {
	inline, _ := cmd.Flags().GetString("state")
	file, _ := cmd.Flags().GetString("input")
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("--state and --input are mutually exclusive")
	case inline != "":
		return workflow.ParseState([]byte(inline))
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read input state: %w", err)
		}
		return workflow.ParseState(data)
	default:
		return workflow.State{}, nil
	}
}

func writeState(cmd *cobra.Command, state workflow.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize final state: %w", err)
	}
	data = append(data, '\n')
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write final state: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s final state written to %s\n", success("✓"), path)
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// progressPrinter reports workflow events as colored lines.
type progressPrinter struct {
	out    io.Writer
	policy string
}

func (p *progressPrinter) OnEvent(e workflow.Event) {
	switch e.Kind {
	case workflow.StepStarted:
		fmt.Fprintf(p.out, "%s step %d/%d: %s\n", heading("▶"), e.Index+1, e.Total, e.Step)
	case workflow.StepInvoked:
		fmt.Fprintf(p.out, "  %s %s\n", muted("reply:"), muted(util.OneLine(e.Raw, 120)))
	case workflow.StepMerged:
		fmt.Fprintf(p.out, "  %s merged [%s] %s\n", success("✓"), strings.Join(e.Keys, ", "), muted(e.Elapsed.Round(time.Millisecond).String()))
	case workflow.StepSkipped:
		fmt.Fprintf(p.out, "  %s reply is not a JSON object: %v\n", warning("!"), e.Err)
		fmt.Fprintf(p.out, "  %s %s\n", muted("raw output:"), e.Raw)
		if p.policy == appconfig.ParseAbort {
			fmt.Fprintf(p.out, "  %s stopping (onParseError=abort)\n", failure("✗"))
		}
	case workflow.StepFailed:
		fmt.Fprintf(p.out, "  %s %v\n", failure("✗"), e.Err)
	case workflow.RunComplete:
		fmt.Fprintf(p.out, "%s workflow complete (run %s)\n", success("✓"), e.RunID)
	}
}
