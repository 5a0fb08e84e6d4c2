package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Diduck/notion-idea-pipeline/internal/credstore"
	"github.com/Diduck/notion-idea-pipeline/internal/output"
)

var (
	credSecret   string
	credDatabase string
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Manage the stored Notion API key and database id",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the Notion API key and/or database id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret := strings.TrimSpace(credSecret)
		database := strings.TrimSpace(credDatabase)
		if secret == "" && database == "" {
			return errors.New("pass --secret, --database or both")
		}
		store, err := credstore.Open(cfg.Credentials.DSN, credstore.Options{})
		if err != nil {
			return err
		}
		defer store.Close()

		if secret != "" {
			if err := store.Save(credstore.KeyAccessSecret, secret); err != nil {
				return err
			}
		}
		if database != "" {
			if err := store.Save(credstore.KeyCollectionID, database); err != nil {
				return err
			}
		}
		output.Success("Credentials saved")
		return nil
	},
}

type credentialsView struct {
	AccessSecret string `json:"accessSecret"`
	CollectionID string `json:"collectionId"`
	Complete     bool   `json:"complete"`
	Source       string `json:"source"`
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective credentials with the secret masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := credstore.Open(cfg.Credentials.DSN, credstore.Options{})
		if err != nil {
			return err
		}
		defer store.Close()

		stored, err := store.LoadCredentials()
		if err != nil {
			return err
		}
		effective := stored
		source := "store"
		if v := strings.TrimSpace(cfg.Notion.APIKey); v != "" {
			effective.AccessSecret = v
			source = "env"
		}
		if v := strings.TrimSpace(cfg.Notion.DatabaseID); v != "" {
			effective.CollectionID = v
			source = "env"
		}
		view := credentialsView{
			AccessSecret: maskSecret(effective.AccessSecret),
			CollectionID: effective.CollectionID,
			Complete:     effective.Complete(),
			Source:       source,
		}
		if jsonOutput {
			return output.JSON(view)
		}
		output.Info("API key:     %s", orDash(view.AccessSecret))
		output.Info("Database ID: %s", orDash(view.CollectionID))
		output.Info("Source:      %s", view.Source)
		if !view.Complete {
			output.Warning("credentials incomplete")
		}
		return nil
	},
}

var credentialsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := credstore.Open(cfg.Credentials.DSN, credstore.Options{})
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Clear(); err != nil {
			return err
		}
		output.Success("Credentials cleared")
		return nil
	},
}

func init() {
	credentialsSetCmd.Flags().StringVar(&credSecret, "secret", "", "Notion integration secret")
	credentialsSetCmd.Flags().StringVar(&credDatabase, "database", "", "Notion database id")

	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsShowCmd)
	credentialsCmd.AddCommand(credentialsClearCmd)
}

func maskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
