// Package sheets appends booking rows to the tracking spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	DefaultSheetName       = "Reservations"
	valueInputUserEntered  = "USER_ENTERED"
	insertDataOptionInsert = "INSERT_ROWS"
)

var (
	ErrInvalidConfig = errors.New("sheets: invalid config")
	ErrRowWidth      = errors.New("sheets: row does not match the column layout")
)

// Appender writes rows to the A:O range of one sheet.
type Appender struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

// NewAppender authenticates with a service-account JSON key.
func NewAppender(ctx context.Context, credentialsJSON []byte, spreadsheetID string, sheetName string) (*Appender, error) {
	return newAppender(ctx, spreadsheetID, sheetName,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
}

func newAppender(ctx context.Context, spreadsheetID string, sheetName string, options ...option.ClientOption) (*Appender, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("%w: spreadsheet id is required", ErrInvalidConfig)
	}
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	service, err := sheets.NewService(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &Appender{service: service, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

// Range is the A1 range covering every booking column.
func (appender *Appender) Range() string {
	return fmt.Sprintf("%s!A:%c", appender.sheetName, 'A'+rune(len(booking.SheetColumns)-1))
}

// AppendRow inserts one row below the last filled one.
func (appender *Appender) AppendRow(ctx context.Context, row booking.SheetRow) error {
	if len(row.Values) != len(booking.SheetColumns) {
		return fmt.Errorf("%w: got %d values, want %d", ErrRowWidth, len(row.Values), len(booking.SheetColumns))
	}
	cells := make([]interface{}, len(row.Values))
	for index, value := range row.Values {
		cells[index] = value
	}
	_, err := appender.service.Spreadsheets.Values.
		Append(appender.spreadsheetID, appender.Range(), &sheets.ValueRange{Values: [][]interface{}{cells}}).
		ValueInputOption(valueInputUserEntered).
		InsertDataOption(insertDataOptionInsert).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append sheet row: %w", err)
	}
	return nil
}
