package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"google.golang.org/api/option"
)

type appendRequest struct {
	Values [][]string `json:"values"`
}

func newTestAppender(test *testing.T, handler http.HandlerFunc) *Appender {
	test.Helper()
	server := httptest.NewServer(handler)
	test.Cleanup(server.Close)
	appender, err := newAppender(context.Background(), "sheet-123", "",
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()),
		option.WithoutAuthentication(),
	)
	if err != nil {
		test.Fatalf("appender: %v", err)
	}
	return appender
}

func fullRow() booking.SheetRow {
	values := make([]string, len(booking.SheetColumns))
	for index := range values {
		values[index] = booking.SheetColumns[index]
	}
	return booking.SheetRow{Values: values}
}

func TestAppendRowPostsValues(test *testing.T) {
	test.Parallel()
	var captured appendRequest
	var path, inputOption, insertOption string
	appender := newTestAppender(test, func(writer http.ResponseWriter, request *http.Request) {
		path = request.URL.Path
		inputOption = request.URL.Query().Get("valueInputOption")
		insertOption = request.URL.Query().Get("insertDataOption")
		if err := json.NewDecoder(request.Body).Decode(&captured); err != nil {
			http.Error(writer, err.Error(), http.StatusBadRequest)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"spreadsheetId":"sheet-123"}`))
	})

	if err := appender.AppendRow(context.Background(), fullRow()); err != nil {
		test.Fatalf("append: %v", err)
	}
	if !strings.Contains(path, "spreadsheets/sheet-123/values/") || !strings.HasSuffix(path, ":append") {
		test.Fatalf("unexpected path %s", path)
	}
	if inputOption != valueInputUserEntered || insertOption != insertDataOptionInsert {
		test.Fatalf("unexpected options %s %s", inputOption, insertOption)
	}
	if len(captured.Values) != 1 || len(captured.Values[0]) != len(booking.SheetColumns) {
		test.Fatalf("unexpected payload %+v", captured)
	}
}

func TestAppendRowRejectsWrongWidth(test *testing.T) {
	test.Parallel()
	appender := newTestAppender(test, func(writer http.ResponseWriter, request *http.Request) {
		test.Errorf("no request expected")
	})
	if err := appender.AppendRow(context.Background(), booking.SheetRow{Values: []string{"only"}}); !errors.Is(err, ErrRowWidth) {
		test.Fatalf("expected ErrRowWidth, got %v", err)
	}
}

func TestAppendRowSurfacesAPIError(test *testing.T) {
	test.Parallel()
	appender := newTestAppender(test, func(writer http.ResponseWriter, request *http.Request) {
		http.Error(writer, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	})
	if err := appender.AppendRow(context.Background(), fullRow()); err == nil {
		test.Fatalf("expected API error")
	}
}

func TestRangeCoversColumns(test *testing.T) {
	test.Parallel()
	appender := &Appender{sheetName: DefaultSheetName}
	if appender.Range() != "Reservations!A:O" {
		test.Fatalf("unexpected range %s", appender.Range())
	}
}

func TestNewAppenderRequiresSpreadsheet(test *testing.T) {
	test.Parallel()
	if _, err := newAppender(context.Background(), "", "", option.WithoutAuthentication()); !errors.Is(err, ErrInvalidConfig) {
		test.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
