package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
)

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// printExecutions renders execution records with the state colorized, or
// falls back to plain JSON for anything unexpected.
func printExecutions(v any) {
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			printExecution(e)
		}
	case map[string]interface{}:
		printExecution(t)
	default:
		printJSON(v)
	}
}

func printExecution(v any) {
	m, ok := v.(map[string]interface{})
	if !ok {
		printJSON(v)
		return
	}
	state, _ := m["state"].(string)
	id, _ := m["id"].(string)
	plan, _ := m["plan_id"].(string)
	fmt.Printf("%s  %s  plan=%s", colorState(state), id, plan)
	if msg, ok := m["error_message"].(string); ok && msg != "" {
		fmt.Printf("  (%s)", msg)
	}
	fmt.Println()
}

func colorState(state string) string {
	switch state {
	case "COMPLETED":
		return color.GreenString("%-9s", state)
	case "FAILED":
		return color.RedString("%-9s", state)
	case "RUNNING":
		return color.CyanString("%-9s", state)
	default:
		return color.YellowString("%-9s", state)
	}
}
