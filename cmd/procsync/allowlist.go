package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rejintech/procsync/internal/database"
)

// --- allowlist command ---

var allowlistCmd = &cobra.Command{
	Use:   "allowlist",
	Short: "Manage the contractor business number allow-list",
}

var allowlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List allow-listed companies",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		items, err := db.GetFilteringCompanies()
		if err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("Allow-list is empty. Add a company with: procsync allowlist add <business-number> [name]")
			return nil
		}

		fmt.Println("Allow-listed companies:")
		fmt.Println()
		for _, c := range items {
			icon := " "
			if c.IsActive {
				icon = "*"
			}
			fmt.Printf("  %s %s  %s\n", icon, c.BusinessNumber, deref(c.CompanyName))
		}
		return nil
	},
}

var allowlistAddCmd = &cobra.Command{
	Use:   "add [business-number] [name]",
	Short: "Add or re-activate a company",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bizno := database.NormalizeBusinessNumber(args[0])
		if bizno == "" {
			return fmt.Errorf("invalid business number: %q", args[0])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var name *string
		if len(args) > 1 {
			name = &args[1]
		}
		if _, err := db.AddFilteringCompany(bizno, name); err != nil {
			return err
		}
		fmt.Printf("Added %s to the allow-list\n", bizno)
		return nil
	},
}

var allowlistRemoveCmd = &cobra.Command{
	Use:   "remove [business-number]",
	Short: "Remove a company from the allow-list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ok, err := db.DeleteFilteringCompany(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("business number %s not in allow-list", args[0])
		}
		fmt.Printf("Removed %s\n", database.NormalizeBusinessNumber(args[0]))
		return nil
	},
}

var allowlistToggleCmd = &cobra.Command{
	Use:   "toggle [business-number]",
	Short: "Toggle a company's active state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ok, err := db.ToggleFilteringCompany(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("business number %s not in allow-list", args[0])
		}

		c, err := db.GetFilteringCompany(args[0])
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("business number %s not in allow-list", args[0])
		}
		state := "disabled"
		if c.IsActive {
			state = "enabled"
		}
		fmt.Printf("%s %s: %s\n", c.BusinessNumber, deref(c.CompanyName), state)
		return nil
	},
}

var allowlistStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how raw records match the allow-list",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		s, err := db.GetFilteringStats()
		if err != nil {
			return err
		}
		active, err := db.GetActiveBusinessNumbers()
		if err != nil {
			return err
		}

		fmt.Printf("Filtering: %s (%d active companies)\n\n", onOff(cfg.Sync.Filtering), len(active))
		fmt.Println("Raw records:")
		fmt.Printf("  Total: %d\n", s.TotalRecords)
		fmt.Printf("  Matched: %d\n", s.Matched)
		fmt.Printf("  Unmatched: %d\n", s.Unmatched)
		fmt.Printf("  Without business number: %d\n", s.NoBusinessNumber)
		return nil
	},
}

func init() {
	allowlistCmd.AddCommand(allowlistListCmd)
	allowlistCmd.AddCommand(allowlistAddCmd)
	allowlistCmd.AddCommand(allowlistRemoveCmd)
	allowlistCmd.AddCommand(allowlistToggleCmd)
	allowlistCmd.AddCommand(allowlistStatusCmd)
}
