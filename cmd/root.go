/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// version 构建时通过 -ldflags "-X github.com/mautops/timesheet-gin/cmd.version=..." 注入
var version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "timesheet-gin",
	Version: version,
	Short:   "Timesheet approval API server",
	Long: `Timesheet Gin is a REST API server for multi-tier timesheet approval.
Submitted weekly timesheets are reviewed per project by leads, managers
and management, then frozen and billed.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: search in current directory, ./config, or $HOME/.timesheet-gin)")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}
