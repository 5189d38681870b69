package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"algomind/src/core/model"
	"algomind/src/core/reasoning"
	"algomind/src/log"
)

var (
	askSession    string
	askIntent     string
	askDifficulty string
	askJSON       bool
)

// askCmd runs one question through the pipeline and prints each step as it happens
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		req := model.QueryRequest{
			Text:       strings.Join(args, " "),
			SessionID:  askSession,
			IntentHint: model.Intent(askIntent),
			Difficulty: askDifficulty,
		}
		if err := reasoning.Validate(req); err != nil {
			return err
		}
		if askIntent != "" {
			req.IntentHint, _ = model.ParseIntent(askIntent)
		}

		out := cmd.OutOrStdout()
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		for ev := range a.pipeline.Stream(cmd.Context(), req) {
			if askJSON {
				if err := enc.Encode(ev); err != nil {
					return err
				}
				continue
			}
			switch ev.Type {
			case reasoning.EventReasoningStep:
				step, _ := ev.Step()
				fmt.Fprintf(out, "[%d] %s: %s\n", step.ID+1, step.Title, step.Content)
			case reasoning.EventFinalResponse:
				result, _ := ev.Result()
				fmt.Fprintf(out, "\n%s\n", result.Answer)
				if result.GraphData != nil {
					fmt.Fprintf(out, "\n知识图谱：%d 个节点，%d 条边\n", len(result.GraphData.Nodes), len(result.GraphData.Edges))
				}
			case reasoning.EventError:
				fmt.Fprintln(os.Stderr, ev.Content.(reasoning.ErrorContent).Message)
				return fmt.Errorf("pipeline errored")
			}
		}
		log.Debug("ask finished", "session_id", req.SessionID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVar(&askSession, "session", "cli", "session id used to load earlier turns")
	askCmd.Flags().StringVar(&askIntent, "intent", "", "intent hint (concept_explanation, problem_recommendation, similar_problems, general_query)")
	askCmd.Flags().StringVar(&askDifficulty, "difficulty", "", "only recommend problems of this difficulty")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print raw events as JSON")
}
