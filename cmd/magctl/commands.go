package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xelth-com/magazzino/internal/cache"
	"github.com/xelth-com/magazzino/internal/models"
	syncpkg "github.com/xelth-com/magazzino/internal/sync"
)

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Obtain an access token",
	Long: `Log in with the operator account and print a token.

The password is read from stdin. Export the token as MAGCTL_TOKEN.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "Password: ")
		password, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && password == "" {
			return err
		}
		var out struct {
			AccessToken string `json:"accessToken"`
		}
		body := map[string]string{"username": args[0], "password": strings.TrimSpace(password)}
		if err := call("POST", "/auth/login", body, &out); err != nil {
			return err
		}
		fmt.Println(out.AccessToken)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server build and runtime status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := call("GET", "/api/status", nil, &out); err != nil || jsonOut {
			return err
		}
		keys := make([]string, 0, len(out))
		for k := range out {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("   %-16s %v\n", k+":", out[k])
		}
		return nil
	},
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Print the local inventory",
	RunE: func(cmd *cobra.Command, args []string) error {
		var c models.Collection
		if err := call("GET", "/api/inventory", nil, &c); err != nil || jsonOut {
			return err
		}
		current := ""
		c.Walk(func(ref models.ItemRef, item models.Item) {
			if ref.Warehouse != current {
				current = ref.Warehouse
				fmt.Printf("\n📦 %s\n", current)
			}
			flag := ""
			if item.IsLowStock() {
				flag = "  ⚠ low"
			}
			fmt.Printf("   %-12s %-24s %4d (alert %d)%s\n", ref.Category, item.Name, item.Quantity, item.AlertThreshold, flag)
		})
		fmt.Printf("\n   %d items\n", c.Count())
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Synchronize with the remote table",
}

func syncRunCmd(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			var report syncpkg.Report
			if err := call("POST", path, nil, &report); err != nil || jsonOut {
				return err
			}
			fmt.Printf("✓ %s complete in %v\n", report.Operation, time.Since(start).Round(time.Millisecond))
			if r := report.Result; r != nil {
				fmt.Printf("   Created: %d  Updated: %d  Deleted: %d\n", r.Created, r.Updated, r.Deleted)
				if r.Partial() {
					fmt.Printf("   ⚠ Failed: %d records in failed batches, rerun to retry\n", r.Failed())
				}
			}
			if report.Downloaded > 0 {
				fmt.Printf("   Downloaded: %d\n", report.Downloaded)
			}
			return nil
		},
	}
}

var syncTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Test the remote connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Connected bool   `json:"connected"`
			Error     string `json:"error"`
		}
		if err := call("POST", "/api/sync/test", nil, &out); err != nil || jsonOut {
			return err
		}
		if !out.Connected {
			return fmt.Errorf("remote not reachable: %s", out.Error)
		}
		fmt.Println("✓ Remote table reachable")
		return nil
	},
}

var syncConfigCmd = &cobra.Command{
	Use:   "configure <api-key> <base-id> [table]",
	Short: "Store remote table credentials",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"apiKey": args[0], "baseId": args[1]}
		if len(args) == 3 {
			body["tableName"] = args[2]
		}
		if err := call("PUT", "/api/sync/config", body, nil); err != nil {
			return err
		}
		fmt.Println("✓ Credentials saved, run 'magctl sync test' to verify")
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync settings and totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Configured  bool       `json:"configured"`
			IsConnected bool       `json:"isConnected"`
			InProgress  bool       `json:"inProgress"`
			LastSync    *time.Time `json:"lastSync"`
			Stats       struct {
				Uploaded   int `json:"uploaded"`
				Downloaded int `json:"downloaded"`
			} `json:"stats"`
		}
		if err := call("GET", "/api/sync/status", nil, &out); err != nil || jsonOut {
			return err
		}
		fmt.Printf("   Configured:  %v\n   Connected:   %v\n   In progress: %v\n", out.Configured, out.IsConnected, out.InProgress)
		if out.LastSync != nil {
			fmt.Printf("   Last sync:   %s\n", out.LastSync.Local().Format(time.DateTime))
		}
		fmt.Printf("   Uploaded:    %d\n   Downloaded:  %d\n", out.Stats.Uploaded, out.Stats.Downloaded)
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:     "cache",
	GroupID: "cache",
	Short:   "Inspect and control the offline cache",
}

func cacheControlCmd(use, short, command string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st cache.Status
			if command != cache.CommandGetStatus && command != cache.CommandSkipWaiting {
				jsonOut = true
			}
			if err := call("POST", "/api/cache/control", map[string]string{"type": command}, &st); err != nil || jsonOut {
				return err
			}
			fmt.Printf("   Version: %s (%s)\n", st.Version, st.State)
			if st.Waiting != "" {
				fmt.Printf("   Waiting: %s\n", st.Waiting)
			}
			for _, ns := range st.Namespaces {
				fmt.Printf("   %-32s %d entries\n", ns.Name, ns.Size)
			}
			return nil
		},
	}
}

func init() {
	syncCmd.AddCommand(
		syncTestCmd,
		syncConfigCmd,
		syncStatusCmd,
		syncRunCmd("upload", "Reconcile local changes into the remote table", "/api/sync/upload"),
		syncRunCmd("download", "Replace local data with the remote table", "/api/sync/download"),
		syncRunCmd("full", "Merge remote data, then upload", "/api/sync/full"),
	)
	cacheCmd.AddCommand(
		cacheControlCmd("status", "Show cache generations and namespaces", cache.CommandGetStatus),
		cacheControlCmd("version", "Show the active cache version", cache.CommandGetVersion),
		cacheControlCmd("clear", "Delete every cached entry", cache.CommandClearCache),
		cacheControlCmd("activate", "Activate a waiting generation", cache.CommandSkipWaiting),
	)
}
