package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

func main() {
	// 256 bits.
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(buf))
	fmt.Fprintln(os.Stderr, "Set it as AGENT_SECRET on the agent and give the same value to whatever signs its jobs.")
}
