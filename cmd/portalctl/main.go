// Copyright 2024 Video Portal Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main provides portalctl, the operator CLI for the tenant store
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/your-org/video-portal/internal/tenant"
)

var dbPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "portalctl",
		Short: "Administer video portal tenants",
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./tenants.db", "Path to the tenant database")

	tenantCmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage portal tenants",
	}
	tenantCmd.AddCommand(tenantAddCmd(), tenantListCmd(), tenantRemoveCmd())
	rootCmd.AddCommand(tenantCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore() (*tenant.Store, error) {
	store, err := tenant.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant store: %w", err)
	}
	return store, nil
}

func tenantAddCmd() *cobra.Command {
	var t tenant.Tenant

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			t.Active = true
			if err := store.Upsert(cmd.Context(), t); err != nil {
				return err
			}

			fmt.Printf("Tenant %q saved\n", t.Slug)
			return nil
		},
	}

	cmd.Flags().StringVar(&t.Slug, "slug", "", "Tenant slug (required)")
	cmd.Flags().StringVar(&t.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&t.APIKey, "api-key", "", "Platform API key (required)")
	cmd.Flags().StringVar(&t.CollectionID, "collection", "", "Platform collection id")
	cmd.Flags().StringVar(&t.CoachEndpoint, "coach-endpoint", "", "OpenAI-compatible coach endpoint")
	cmd.Flags().StringVar(&t.CoachModel, "coach-model", "", "Coach model name")
	_ = cmd.MarkFlagRequired("slug")
	_ = cmd.MarkFlagRequired("api-key")

	return cmd
}

func tenantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			tenants, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tNAME\tCOLLECTION\tACTIVE")
			for _, t := range tenants {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", t.Slug, t.Name, t.CollectionID, t.Active)
			}
			return w.Flush()
		},
	}
}

func tenantRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <slug>",
		Short: "Remove a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Printf("Tenant %q removed\n", args[0])
			return nil
		},
	}
}
