package cli

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Bkbest/calendar-agent/internal/audio"
)

func newSendCommand() *cobra.Command {
	var (
		serverAddr   string
		chunkSize    int
		packetDelay  time.Duration
		replyTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <audio-file>",
		Short: "Send an audio file to the server and wait for the reply",
		Long: `send streams an audio file to the voice agent server as a sequence of UDP
datagrams, pausing briefly between packets the way a live audio source would,
then waits for the agent's reply on the same socket.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(args[0], serverAddr, chunkSize, packetDelay, replyTimeout)
		},
	}

	cmd.Flags().StringVar(&serverAddr, "server", "127.0.0.1:9876", "Server address (host:port)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 4096, "Datagram payload size in bytes")
	cmd.Flags().DurationVar(&packetDelay, "packet-delay", 20*time.Millisecond, "Delay between datagrams")
	cmd.Flags().DurationVar(&replyTimeout, "reply-timeout", 90*time.Second, "How long to wait for the agent's reply")

	return cmd
}

func runSend(path, serverAddr string, chunkSize int, packetDelay, replyTimeout time.Duration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return fmt.Errorf("invalid server address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	pterm.Info.Printfln("Sending %s (%d bytes) to %s in %d-byte chunks", path, len(data), serverAddr, chunkSize)

	// For WAV files, show how much audio is about to stream. Other formats
	// go out as-is; the server sniffs them on its side.
	if duration, err := audio.GetWAVDuration(data); err == nil {
		pterm.Info.Printfln("WAV audio, %.1fs", duration)
	}

	progress, _ := pterm.DefaultProgressbar.
		WithTotal((len(data) + chunkSize - 1) / chunkSize).
		WithTitle("Streaming audio").
		Start()

	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}

		if _, err := conn.Write(data[offset:end]); err != nil {
			progress.Stop()
			return fmt.Errorf("failed to send datagram: %w", err)
		}

		progress.Increment()
		time.Sleep(packetDelay)
	}
	progress.Stop()

	spinner, _ := pterm.DefaultSpinner.Start("Waiting for the agent's reply...")

	if err := conn.SetReadDeadline(time.Now().Add(replyTimeout)); err != nil {
		spinner.Fail("Failed to set read deadline")
		return err
	}

	buf := make([]byte, 65535)
	n, err := conn.Read(buf)
	if err != nil {
		spinner.Fail("No reply received")
		return fmt.Errorf("failed to read reply: %w", err)
	}

	spinner.Success("Reply received")
	pterm.DefaultBox.WithTitle("Agent reply").Println(string(buf[:n]))

	return nil
}
