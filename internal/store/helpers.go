package store

import (
	"database/sql"
	"fmt"

	"github.com/zailonsoft/carbot/internal/models"
)

const reportColumns = `id, conversation_id, intent, outcome, body, recipients, delivered, created_at`

// scanReports drains rows into report entries.
func scanReports(rows *sql.Rows) ([]models.ReportEntry, error) {
	defer rows.Close()
	var out []models.ReportEntry
	for rows.Next() {
		var e models.ReportEntry
		var intent string
		if err := rows.Scan(&e.ID, &e.ConversationID, &intent, &e.Outcome, &e.Body, &e.Recipients, &e.Delivered, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report failed: %w", err)
		}
		e.Intent = models.Intent(intent)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report rows failed: %w", err)
	}
	return out, nil
}
