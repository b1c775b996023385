package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/telhawk-systems/telhawk-relay/common/middleware"
	"github.com/telhawk-systems/telhawk-relay/internal/models"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a delivery event to a running relay",
	Long:  "Post a delivery event built from flags to a relay and print the response",
	Example: `  relay send --message-id m1 --status Delivered --sender A --receiver B
  relay send --message-id m1 --status Failed --sender A --receiver B --comments "timeout"
  relay send --url http://localhost:7071/api/LogToAppInsights --json '{"MessageId":"m1"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		method, _ := cmd.Flags().GetString("method")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		rawJSON, _ := cmd.Flags().GetString("json")

		body := []byte(rawJSON)
		if rawJSON == "" {
			var err error
			body, err = buildPayload(cmd.Flags())
			if err != nil {
				return err
			}
		}

		client := &http.Client{Timeout: timeout}
		result, err := sendEvent(cmd.Context(), client, method, url, body)
		if err != nil {
			return fmt.Errorf("failed to send event: %w", err)
		}

		return reportResponse(result)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("url", "http://localhost:8080/api/LogToAppInsights", "relay function URL")
	sendCmd.Flags().String("method", http.MethodPost, "HTTP method (GET or POST)")
	sendCmd.Flags().Duration("timeout", 10*time.Second, "request timeout")
	sendCmd.Flags().String("json", "", "raw JSON body; overrides the field flags")
	addFieldFlags(sendCmd.Flags())
}

var fieldFlags = []struct {
	flag string
	key  string
}{
	{"message-id", models.PropMessageID},
	{"status", models.PropStatus},
	{"sender", models.PropSender},
	{"receiver", models.PropReceiver},
	{"comments", models.PropComments},
}

func addFieldFlags(fs *pflag.FlagSet) {
	for _, f := range fieldFlags {
		fs.String(f.flag, "", f.key+" field (omitted unless set)")
	}
}

// buildPayload encodes the field flags. Unset fields are omitted so the
// relay's validation can be exercised.
func buildPayload(fs *pflag.FlagSet) ([]byte, error) {
	payload := make(map[string]string, len(fieldFlags))
	for _, f := range fieldFlags {
		if !fs.Changed(f.flag) {
			continue
		}
		value, err := fs.GetString(f.flag)
		if err != nil {
			return nil, err
		}
		payload[f.key] = value
	}

	return json.Marshal(payload)
}

type sendResult struct {
	Status    int
	Body      string
	RequestID string
}

func sendEvent(ctx context.Context, client *http.Client, method, url string, body []byte) (*sendResult, error) {
	method = strings.ToUpper(method)
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("unsupported method %q (use GET or POST)", method)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &sendResult{
		Status:    resp.StatusCode,
		Body:      string(text),
		RequestID: resp.Header.Get(middleware.HeaderRequestID),
	}, nil
}

func reportResponse(r *sendResult) error {
	switch r.Status {
	case http.StatusOK:
		printSuccess("%d %s", r.Status, r.Body)
	case http.StatusBadRequest:
		printWarn("%d %s", r.Status, r.Body)
	default:
		text := r.Body
		if text == "" {
			text = http.StatusText(r.Status)
		}
		printError("%d %s", r.Status, text)
	}

	if r.RequestID != "" {
		printInfo("request id: %s", r.RequestID)
	}

	if r.Status != http.StatusOK {
		return fmt.Errorf("relay responded with status %d", r.Status)
	}
	return nil
}
