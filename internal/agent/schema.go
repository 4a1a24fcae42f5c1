package agent

// ToolSchema returns the tool declarations sent to the model backend.
// The schema is fixed: five operations with stable names and parameter
// types. Model prompts are engineered against these exact names, so any
// change here is a breaking change.
func ToolSchema() []map[string]any {
	return []map[string]any{
		{
			"type": "function",
			"function": map[string]any{
				"name":        "get_context_overview",
				"description": "Get metadata and overview of available conversation context",
				"parameters": map[string]any{
					"type":       "object",
					"properties": map[string]any{},
					"required":   []string{},
				},
			},
		},
		{
			"type": "function",
			"function": map[string]any{
				"name":        "get_context_chunk",
				"description": "Retrieve a specific chunk of conversation context by index range",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"start_index": map[string]any{
							"type":        "integer",
							"description": "Starting index of messages to retrieve",
						},
						"end_index": map[string]any{
							"type":        "integer",
							"description": "Ending index (exclusive), defaults to start_index + 10",
						},
						"max_tokens": map[string]any{
							"type":        "integer",
							"description": "Maximum tokens to return, defaults to 2000",
						},
					},
					"required": []string{"start_index"},
				},
			},
		},
		{
			"type": "function",
			"function": map[string]any{
				"name":        "search_context",
				"description": "Search through conversation context to find relevant sections",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Search query for finding relevant context",
						},
						"limit": map[string]any{
							"type":        "integer",
							"description": "Maximum number of results to return, defaults to 5",
						},
					},
					"required": []string{"query"},
				},
			},
		},
		{
			"type": "function",
			"function": map[string]any{
				"name":        "recursive_lm_call",
				"description": "Call LM recursively on a specific context subset for analysis or processing",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"prompt": map[string]any{
							"type":        "string",
							"description": "Prompt for the recursive LM call",
						},
						"context_subset": map[string]any{
							"type":        "array",
							"description": "Array of message objects to analyze",
						},
						"task": map[string]any{
							"type":        "string",
							"enum":        []string{"summarize", "analyze", "extract", "compare", "synthesize"},
							"description": "Type of analysis task for the recursive LM",
						},
					},
					"required": []string{"prompt", "context_subset"},
				},
			},
		},
		{
			"type": "function",
			"function": map[string]any{
				"name":        "final_answer",
				"description": "Provide the final response to the user's original query",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"answer": map[string]any{
							"type":        "string",
							"description": "Final answer to the user's question",
						},
						"reasoning": map[string]any{
							"type":        "string",
							"description": "Brief explanation of how you arrived at this answer (optional)",
						},
						"context_sources": map[string]any{
							"type":        "array",
							"description": "List of context sources used in the answer (optional)",
						},
					},
					"required": []string{"answer"},
				},
			},
		},
	}
}
