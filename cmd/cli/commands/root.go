// Package commands contains the CLI commands for the sellerdesk API.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sellerdesk/sellerdesk/pkg/api/v1/client"
)

// flag names
const (
	flagServerAddress = "server-address"
	flagTenantID      = "tenant-id"
	flagAuthToken     = "auth-token"
)

// environment variable names
const (
	envServerAddress = "SELLERDESK_SERVER_ADDRESS"
	envAuthToken     = "SELLERDESK_AUTH_TOKEN"
)

var (
	// apiClient is the shared API client instance
	apiClient client.Client
	// serverAddress holds the target API server address
	serverAddress string
	// tenantID is the workspace every command acts in
	tenantID uint
	// authToken is the bearer token presented to the server
	authToken string
)

// initClient initializes the API client
func initClient() error {
	var err error
	opts := client.DefaultOptions()
	opts.BaseURL = serverAddress
	opts.TenantID = tenantID
	opts.AuthToken = authToken

	apiClient, err = client.NewClient(opts)
	return err
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&serverAddress, flagServerAddress, "s", client.DefaultBaseURL,
		"Address of the API server (env: SELLERDESK_SERVER_ADDRESS)")
	RootCmd.PersistentFlags().UintVarP(&tenantID, flagTenantID, "t", 0,
		"Tenant workspace to act in")
	RootCmd.PersistentFlags().StringVarP(&authToken, flagAuthToken, "a", "",
		"API token (env: SELLERDESK_AUTH_TOKEN)")

	RootCmd.AddCommand(GetJobsCmd())
	RootCmd.AddCommand(GetSettlementsCmd())
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "sellerdesk",
	Short: "Sellerdesk CLI - manage jobs and settlement imports",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if !cmd.Flags().Changed(flagServerAddress) {
			if envAddr := os.Getenv(envServerAddress); envAddr != "" {
				serverAddress = envAddr
			}
		}
		if !cmd.Flags().Changed(flagAuthToken) {
			if envTok := os.Getenv(envAuthToken); envTok != "" {
				authToken = envTok
			}
		}
		if serverAddress == "" {
			return fmt.Errorf("server address cannot be empty")
		}
		if tenantID == 0 {
			return fmt.Errorf("required flag %q not set", flagTenantID)
		}
		return initClient()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return RootCmd.Execute()
}
