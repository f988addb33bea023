package cli

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateSymbol string
	simulatePrice  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价格并走完整告警流程",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(simulateSymbol) == "" {
			return errors.New("--symbol 必须提供")
		}
		if simulatePrice <= 0 {
			return errors.New("--price 必须大于 0")
		}

		return getApp().SimulateAlert(cmd.Context(), simulateSymbol, decimal.NewFromFloat(simulatePrice))
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "已配置的 ticker")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "模拟的当前价格")
}
