package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipstash/internal/message"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Displays item counts and stored file extensions from a running daemon.

If a local daemon is running, the request is sent via the IPC Unix socket.
Pass --server to target a daemon directly over TCP.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runStatus(cmd, v) },
	}

	addClientFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	wc, transport, err := dialDaemon(cmd, v)
	if err != nil {
		return err
	}
	defer wc.Close()

	count, err := roundTrip(wc, &message.Request{Action: message.ActionGetTotalCount}, message.TypeTotalCount)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	exts, err := roundTrip(wc, &message.Request{Action: message.ActionGetFileExtensions}, message.TypeFileExtensions)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	tags, err := roundTrip(wc, &message.Request{Action: message.ActionGetTags}, message.TypeTags)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	if v.GetBool("json") {
		out := map[string]any{
			"transport":       transport,
			"total_items":     count.Count,
			"file_extensions": exts.Extensions,
			"tags":            tags.Tags,
		}
		enc, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(enc))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Transport:\t%s\n", transport)
	fmt.Fprintf(w, "Items:\t%d\n", count.Count)
	if len(exts.Extensions) > 0 {
		fmt.Fprintf(w, "File types:\t%s\n", strings.Join(exts.Extensions, ", "))
	}
	if len(tags.Tags) > 0 {
		names := make([]string, len(tags.Tags))
		for i, t := range tags.Tags {
			names[i] = t.Name
		}
		fmt.Fprintf(w, "Tags:\t%s\n", strings.Join(names, ", "))
	}
	return w.Flush()
}
