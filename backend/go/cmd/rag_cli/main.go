package main

import "agentic_rag/backend/go/cmd/rag_cli/cmd"

func main() {
	cmd.Execute()
}
