package utils

import (
	"fmt"
	"strings"
)

// FormatCurrency memformat angka ke format mata uang Yen
func FormatCurrency(amount float64) string {
	// Yen tidak memakai desimal
	formatted := fmt.Sprintf("%.0f", amount)

	// Tambahkan pemisah ribuan
	var result []string
	for i := len(formatted); i > 0; i -= 3 {
		start := i - 3
		if start < 0 {
			start = 0
		}
		result = append([]string{formatted[start:i]}, result...)
	}

	return "¥" + strings.Join(result, ",")
}
