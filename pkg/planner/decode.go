package planner

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jllopis/telos/pkg/errors"
)

// DecodePlan parses a model plan in the strict line grammar:
//
//	OVERALL RATIONALE: <text, may continue on following lines>
//	Step <n>: <capability>
//	Input: <JSON object, or raw text wrapped as {"query": ...}>
//	Rationale: <text>
//
// Blank lines, a STEPS: header and Expected: annotations are tolerated.
// Anything else is a PARSE_ERROR carrying the offending line number, as is
// a missing step, an out-of-sequence step number, or malformed JSON input.
// Callers fall back to a safe default on error; the decoder never invents
// a step.
func DecodePlan(text string) (*FlatPlan, error) {
	plan := &FlatPlan{}
	inRationale := false
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		lineNo := i + 1
		switch {
		case line == "" || line == "STEPS:":
			inRationale = false
		case strings.HasPrefix(line, "OVERALL RATIONALE:"):
			plan.Rationale = strings.TrimSpace(strings.TrimPrefix(line, "OVERALL RATIONALE:"))
			inRationale = true
		case strings.HasPrefix(line, "Step "):
			inRationale = false
			n, capability, err := parseStepHeader(line)
			if err != nil {
				return nil, errors.NewParseError("plan", lineNo, err)
			}
			if n != len(plan.Steps)+1 {
				return nil, errors.NewParseError("plan", lineNo,
					fmt.Errorf("step %d out of sequence, want %d", n, len(plan.Steps)+1))
			}
			plan.Steps = append(plan.Steps, Step{Capability: capability, Args: map[string]any{}})
		case strings.HasPrefix(line, "Input:"):
			inRationale = false
			if len(plan.Steps) == 0 {
				return nil, errors.NewParseError("plan", lineNo, fmt.Errorf("input before any step"))
			}
			args, err := decodeArgs(strings.TrimSpace(strings.TrimPrefix(line, "Input:")))
			if err != nil {
				return nil, errors.NewParseError("plan", lineNo, err)
			}
			plan.Steps[len(plan.Steps)-1].Args = args
		case strings.HasPrefix(line, "Rationale:"):
			inRationale = false
			if len(plan.Steps) == 0 {
				return nil, errors.NewParseError("plan", lineNo, fmt.Errorf("rationale before any step"))
			}
			plan.Steps[len(plan.Steps)-1].Rationale = strings.TrimSpace(strings.TrimPrefix(line, "Rationale:"))
		case strings.HasPrefix(line, "Expected:"):
			inRationale = false
		default:
			if inRationale {
				plan.Rationale = strings.TrimSpace(plan.Rationale + " " + line)
				continue
			}
			return nil, errors.NewParseError("plan", lineNo, fmt.Errorf("unrecognized line %q", line))
		}
	}
	if len(plan.Steps) == 0 {
		return nil, errors.NewParseError("plan", 0, fmt.Errorf("no steps found"))
	}
	return plan, nil
}

func parseStepHeader(line string) (int, string, error) {
	rest := strings.TrimPrefix(line, "Step ")
	numText, capability, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, "", fmt.Errorf("step header %q missing colon", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(numText))
	if err != nil {
		return 0, "", fmt.Errorf("step number %q is not an integer", strings.TrimSpace(numText))
	}
	capability = strings.TrimSpace(capability)
	if capability == "" {
		return 0, "", fmt.Errorf("step %d names no capability", n)
	}
	return n, capability, nil
}

// decodeArgs treats input that looks like JSON as JSON, strictly; raw text
// becomes a query argument the way the search capabilities expect.
func decodeArgs(s string) (map[string]any, error) {
	if s == "" {
		return map[string]any{}, nil
	}
	if strings.HasPrefix(s, "{") {
		var args map[string]any
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			return nil, fmt.Errorf("input is not a JSON object: %w", err)
		}
		return args, nil
	}
	return map[string]any{"query": s}, nil
}

// NextAction is a single react-style step suggestion.
type NextAction struct {
	Capability string
	Args       map[string]any
	Rationale  string
}

// DecodeNextAction parses a TOOL:/INPUT:/RATIONALE: triplet. A
// GOAL_ACHIEVED sentinel anywhere in the text means no further action and
// returns (nil, nil). Surrounding free text is ignored; a missing TOOL line
// is a PARSE_ERROR.
func DecodeNextAction(text string) (*NextAction, error) {
	if strings.Contains(text, "GOAL_ACHIEVED") {
		return nil, nil
	}
	action := &NextAction{Args: map[string]any{}}
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "TOOL:"):
			action.Capability = strings.TrimSpace(strings.TrimPrefix(line, "TOOL:"))
		case strings.HasPrefix(line, "INPUT:"):
			args, err := decodeArgs(strings.TrimSpace(strings.TrimPrefix(line, "INPUT:")))
			if err != nil {
				return nil, errors.NewParseError("next action", i+1, err)
			}
			action.Args = args
		case strings.HasPrefix(line, "RATIONALE:"):
			action.Rationale = strings.TrimSpace(strings.TrimPrefix(line, "RATIONALE:"))
		}
	}
	if action.Capability == "" {
		return nil, errors.NewParseError("next action", 0, fmt.Errorf("no TOOL line found"))
	}
	return action, nil
}
