// Package eligibility は保険適格性判定の業務ロジックを提供する。
// 年齢計算、リスク評価、保険料見積もり、保険会社ごとの適格性チェックを含む。
package eligibility

import (
	"time"

	"github.com/hitoshi/hokenbot/internal/model"
)

// CalculateAge は生年月日（YYYY-MM-DD）から現在の満年齢を計算する。
// 今年の誕生日がまだ来ていない場合は1を引く。
func CalculateAge(birthDate string, now time.Time) (int, error) {
	birth, err := time.Parse("2006-01-02", birthDate)
	if err != nil {
		return 0, model.NewInvalidBirthDateError(birthDate)
	}

	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age, nil
}
