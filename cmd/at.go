package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/linkstation/modemgw/internal/logging"
	"github.com/linkstation/modemgw/internal/transport"
	"github.com/spf13/cobra"
)

// CreateATCmd creates the at command.
func CreateATCmd() *cobra.Command {
	var device string
	var baud int
	var timeout time.Duration
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "at [command]",
		Short: "Send a single AT command to the modem",
		Long: `Opens the modem serial port, sends one AT command and prints the reply lines. ` +
			`Useful for probing a modem before running the gateway, or for debugging from the shell.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			command := args[0]

			// Initialize minimal logging
			loggingConfig := logging.Config{
				Level:  "warn",
				Format: "text",
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("at")

			trans := transport.New(transport.Config{
				Device:   device,
				Baud:     baud,
				Deadline: timeout,
				Logger:   logger,
			})
			defer trans.Reset()

			ctx, cancel := context.WithTimeout(context.Background(), timeout+2*time.Second)
			defer cancel()

			lines, err := trans.Send(ctx, command)
			if err != nil {
				logger.Error("AT command failed", "command", command, "error", err)
				os.Exit(1)
			}

			for _, line := range lines {
				fmt.Println(line)
			}
			if transport.IsErrorReply(lines) {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "AT serial device path (empty = auto-resolve)")
	cmd.Flags().IntVar(&baud, "baud", 115200, "serial baud rate")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "reply deadline")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "output logs in JSON format")

	return cmd
}
