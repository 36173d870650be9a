package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haul-dl/haul/internal/api/controllers"
)

var addName string

var addCmd = &cobra.Command{
	Use:   "add <client-id> <url>...",
	Short: "Enqueue a download job on the daemon",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active jobs",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <client-id>",
	Short: "Cancel an active job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	addCmd.Flags().StringVar(&addName, "name", "", "display name for the job")
	rootCmd.AddCommand(addCmd, listCmd, cancelCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	req := controllers.JobRequest{ClientID: args[0], Name: addName}
	for _, raw := range args[1:] {
		req.Resources = append(req.Resources, controllers.ResourceRequest{URL: raw})
	}

	var view controllers.JobView
	if err := postJSON(apiAddr+"/api/jobs", req, &view); err != nil {
		return err
	}

	fmt.Printf("Enqueued %s with %d resource(s)\n", view.ClientID, len(view.Resources))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	var views []controllers.JobView
	if err := getJSON(apiAddr+"/api/jobs", &views); err != nil {
		return err
	}

	if len(views) == 0 {
		fmt.Println("No active jobs")
		return nil
	}

	for _, v := range views {
		fmt.Printf("%-24s %-10s %5.1f%%  %s\n", v.ClientID, v.State, v.Fraction*100, v.Name)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodDelete, apiAddr+"/api/jobs/"+url.PathEscape(args[0]), nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		fmt.Printf("Cancelled %s\n", args[0])
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("no active job %q", args[0])
	default:
		return apiError(resp)
	}
}

func getJSON(u string, out any) error {
	resp, err := http.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func postJSON(u string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}

	resp, err := http.Post(u, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	return fmt.Errorf("daemon returned %s: %s", resp.Status, msg)
}
