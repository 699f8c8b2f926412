package cli

import (
	"github.com/spf13/cobra"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "calendar-agent"
	serviceVersion    = "1.0.0"
)

// NewRootCommand builds the calendar-agent command tree
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "calendar-agent",
		Short: "UDP voice gateway for a conversational calendar agent",
		Long: `calendar-agent listens for audio datagrams, buffers each client's
utterance until a pause in speech, then transcribes the audio and hands the
transcript to a calendar agent. The agent's reply is sent back to the client
over the same UDP socket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newSendCommand())

	return rootCmd
}
