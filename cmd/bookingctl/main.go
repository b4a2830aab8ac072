// Command bookingctl is the operator tool: schema migrations, catalog seeding,
// rate edits, availability inspection and dev tokens.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/config"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(config.Load()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
