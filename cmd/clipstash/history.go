package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipstash/internal/message"
)

func newHistoryCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List clipboard history",
		Long: `Lists recent clipboard items, newest first.

If a local daemon is running, the request is sent via the IPC Unix socket.
Pass --server to target a daemon directly over TCP.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runHistory(cmd, v) },
	}

	f := cmd.Flags()
	f.Int("limit", 20, "maximum items to list")
	f.Int("offset", 0, "items to skip")
	f.String("query", "", "search instead of listing (name and text content)")
	f.StringSlice("types", nil, "filter by item type (text, url, file, screenshot, image/*)")
	f.Bool("favorites", false, "favorites only")
	addClientFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runHistory(cmd *cobra.Command, v *viper.Viper) error {
	wc, _, err := dialDaemon(cmd, v)
	if err != nil {
		return err
	}
	defer wc.Close()

	req := &message.Request{
		Action: message.ActionGetHistory,
		Limit:  v.GetInt("limit"),
		Offset: v.GetInt("offset"),
	}
	want := message.TypeHistory
	if q := v.GetString("query"); q != "" {
		req.Action = message.ActionSearch
		req.Query = q
		want = message.TypeSearchResults
	}
	if types := v.GetStringSlice("types"); len(types) > 0 || v.GetBool("favorites") {
		req.Filters = &message.Filters{Types: types, FavoritesOnly: v.GetBool("favorites")}
	}

	resp, err := roundTrip(wc, req, want)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	if v.GetBool("json") {
		enc, _ := json.MarshalIndent(resp.Items, "", "  ")
		fmt.Println(string(enc))
		return nil
	}

	if len(resp.Items) == 0 {
		fmt.Println("No items.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID\tTYPE\tAGE\tCONTENT\n")
	for _, it := range resp.Items {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", it.ID, it.Type, itemAge(it.Timestamp), itemPreview(it))
	}
	return tw.Flush()
}

const previewWidth = 60

// itemPreview renders a one-line summary. Secret items show their name only.
func itemPreview(it message.Item) string {
	if it.IsSecret {
		return fmt.Sprintf("[secret] %s", it.Name)
	}
	text := it.Content
	if text == "" {
		text = it.Name
	}
	if text == "" {
		text = fmt.Sprintf("<%s>", it.Type)
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > previewWidth {
		text = text[:previewWidth-1] + "…"
	}
	return text
}

func itemAge(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "-"
	}
	age := time.Since(t).Round(time.Second)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return t.Format("2006-01-02")
	}
}
