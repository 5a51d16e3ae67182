package db

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bikorot/auditsync/internal/domain"
)

// SummaryCategoryName is the fixed category whose criteria feed the parent
// summary fields.
const SummaryCategoryName = "סיכום"

type seedCriterion struct {
	Label string
	Type  string
}

type seedCategory struct {
	Name     string
	Order    int
	Criteria []seedCriterion
}

func radio(labels ...string) []seedCriterion {
	out := make([]seedCriterion, 0, len(labels))
	for _, l := range labels {
		out = append(out, seedCriterion{Label: l, Type: "RADIO"})
	}
	return out
}

var seedCategories = []seedCategory{
	{Name: "הלכה", Order: 2, Criteria: radio("נספח הלכתי", "התקני שבת", "ערכת הבדלה", "בית כנסת + עזרת נשים", "ספרי תורה + מספר צבאי", "עירוב", "חגים", "צומות", "תפילות", "מזוזות")},
	{Name: "כשרות", Order: 3, Criteria: radio("רכש חוץ", "מערכת מכ\"ם", "הדרכת מכ\"שים", "שילוט", "סימונים", "אפיון כלים", "טבילת כלים", "דגים ובשר", "תשתיות מטבח", "תבלינים", "התנהלות שבת", "פיקוח שבת", "מהדרין", "בישול ישראל", "מטבחונים")},
	{Name: "חירום", Order: 4, Criteria: radio("חירום", "תיק תא\"ח", "ערכת זה\"ב", "תרגול שבועי ערכת זה\"ב")},
	{Name: "ציוד ומחסנים", Order: 6, Criteria: radio("מחסני מזון", "מחסן פסח")},
	{Name: SummaryCategoryName, Order: 9, Criteria: []seedCriterion{
		{Label: "הערכת מבקר", Type: "TEXT"},
		{Label: "המלצות מבקר", Type: "TEXT"},
		{Label: "ציון", Type: "SCORE"},
	}},
}

var seedInspectors = []string{"ישראל ישראלי", "משה כהן", "אבי לוי", "דנה לוין"}

// SeedReference inserts the read-only lookup data (categories, criteria,
// inspectors) when absent. Safe to call on every boot.
func SeedReference(gdb *gorm.DB) error {
	for _, name := range seedInspectors {
		var count int64
		if err := gdb.Model(&domain.Inspector{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("seed inspectors: %w", err)
		}
		if count > 0 {
			continue
		}
		row := domain.Inspector{ID: uuid.New().String(), Name: name}
		if err := gdb.Create(&row).Error; err != nil {
			return fmt.Errorf("seed inspectors: %w", err)
		}
	}

	for _, cat := range seedCategories {
		var existing domain.Category
		err := gdb.Where("name = ?", cat.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("seed categories: %w", err)
		}
		row := domain.Category{
			ID:        uuid.New().String(),
			Name:      cat.Name,
			SortIndex: cat.Order,
		}
		for i, c := range cat.Criteria {
			row.Criteria = append(row.Criteria, domain.Criterion{
				ID:         uuid.New().String(),
				CategoryID: row.ID,
				Label:      c.Label,
				Type:       c.Type,
				SortIndex:  i,
			})
		}
		if err := gdb.Create(&row).Error; err != nil {
			return fmt.Errorf("seed categories: %w", err)
		}
	}
	return nil
}
