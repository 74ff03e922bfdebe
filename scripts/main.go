package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gepvi/gepvi-users/scripts/internal"
	"github.com/joho/godotenv"
)

// Command represents a script that can be run
type Command struct {
	Name        string
	Description string
	Run         func() error
}

var commands = []Command{
	{
		Name:        "generate-apikey",
		Description: "Generate a random API key for auth.api_key",
		Run:         internal.GenerateAPIKey,
	},
	{
		Name:        "grant-subscription",
		Description: "Extend a user's subscription by a number of days (support grants)",
		Run:         internal.GrantSubscription,
	},
	{
		Name:        "list-webhooks",
		Description: "Print audited webhook deliveries, newest first",
		Run:         internal.ListWebhooks,
	},
}

func main() {
	var (
		listCommands bool
		cmdName      string
		userID       string
		days         string
		intentID     string
		limit        string
	)

	flag.BoolVar(&listCommands, "list", false, "List all available commands")
	flag.StringVar(&cmdName, "cmd", "", "Command to run")
	flag.StringVar(&userID, "user-id", "", "User ID for operations")
	flag.StringVar(&days, "days", "", "Number of days to grant")
	flag.StringVar(&intentID, "intent-id", "", "Payment intent ID to filter webhook records")
	flag.StringVar(&limit, "limit", "", "Max records to print")

	flag.Parse()

	if listCommands {
		fmt.Println("Available commands:")
		for _, cmd := range commands {
			fmt.Printf("  %-20s %s\n", cmd.Name, cmd.Description)
		}
		return
	}

	if cmdName == "" {
		log.Fatal("Please specify a command to run using -cmd flag. Use -list to see available commands.")
	}

	_ = godotenv.Load()

	// Set command-specific environment variables
	if userID != "" {
		os.Setenv("USER_ID", userID)
	}
	if days != "" {
		os.Setenv("GRANT_DAYS", days)
	}
	if intentID != "" {
		os.Setenv("INTENT_ID", intentID)
	}
	if limit != "" {
		os.Setenv("LIMIT", limit)
	}

	// Find and run the command
	for _, cmd := range commands {
		if cmd.Name == cmdName {
			if err := cmd.Run(); err != nil {
				log.Fatalf("Error running command %s: %v", cmdName, err)
			}
			return
		}
	}

	log.Fatalf("Unknown command: %s. Use -list to see available commands.", cmdName)
}
