// Точка входа StockFlow — приём SOH-файлов (остатки на складе) по проектам.
// Без подкоманды запускает HTTP-сервер (serve).
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Ошибка выполнения команды", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
