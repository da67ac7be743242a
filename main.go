package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Mighty-Nievl/mengundang-sub000/config"
	"github.com/Mighty-Nievl/mengundang-sub000/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mengundang",
	Short: "Billing service: payment reconciliation, plan activation, referral bonuses, notifications",
	Long: `Сервис биллинга приглашений.

Команды:
  serve      HTTP API + планировщик сверки
  reconcile  одноразовая сверка по сохранённому выводу экстрактора
  token      выпуск access-токена для админки`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			log.Println("⚠️ .env file not found, using system environment")
		}
		cfg = config.Load()
		return logging.InitLogger(cfg.IsRelease(), cfg.LogLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// cfg заполняется в PersistentPreRunE до запуска любой подкоманды
var cfg *config.Config

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
