// Package main 是终端版聊天客户端：直接对后端走提交/轮询流程，并提供签发 JWT 的辅助命令。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shopchat-go/internal/config"
	"shopchat-go/pkg/log"
)

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatcli",
		Short: "Terminal client for the shopping assistant backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			config.Conf = c
			// 日志默认关闭，避免和对话输出混在一起
			if verbose {
				log.Init(c.Log.Level, "console", "", 0)
			}
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print logs to stdout")

	rootCmd.AddCommand(newChatCommand(), newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
