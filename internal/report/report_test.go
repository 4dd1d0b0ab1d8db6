package report

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"puntoventa/terminal/internal/apperr"
	"puntoventa/terminal/internal/domain"
)

var now = time.Date(2026, time.March, 15, 18, 30, 0, 0, time.UTC)

func entryAt(fecha time.Time, total int64, items ...domain.SaleDetail) Entry {
	return Entry{
		Sale:  domain.Sale{ID: 1, Fecha: fecha, Total: decimal.NewFromInt(total)},
		Items: items,
	}
}

func detail(productID int64, nombre string, cantidad, precio, ganancia int64) domain.SaleDetail {
	return domain.SaleDetail{
		ProductoID: productID,
		Nombre:     nombre,
		Cantidad:   decimal.NewFromInt(cantidad),
		Precio:     decimal.NewFromInt(precio),
		Ganancia:   decimal.NewFromInt(ganancia),
	}
}

func TestParseWindow(t *testing.T) {
	for _, raw := range []string{"hoy", "7dias", "30dias"} {
		if _, err := ParseWindow(raw); err != nil {
			t.Fatalf("window %q: %v", raw, err)
		}
	}
	if _, err := ParseWindow("90dias"); apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWindowStarts(t *testing.T) {
	midnight := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	if got := WindowToday.Start(now); !got.Equal(midnight) {
		t.Fatalf("hoy: got %v", got)
	}
	if got := Window7Days.Start(now); !got.Equal(midnight.AddDate(0, 0, -6)) {
		t.Fatalf("7dias: got %v", got)
	}
	if got := Window30Days.Start(now); !got.Equal(midnight.AddDate(0, 0, -29)) {
		t.Fatalf("30dias: got %v", got)
	}
}

func TestFilterKeepsOnlyTheWindow(t *testing.T) {
	entries := []Entry{
		entryAt(now.Add(-2*time.Hour), 1000),
		entryAt(now.AddDate(0, 0, -3), 2000),
		entryAt(now.AddDate(0, 0, -10), 3000),
	}

	if got := len(Filter(entries, WindowToday, now)); got != 1 {
		t.Fatalf("hoy: expected 1 entry, got %d", got)
	}
	if got := len(Filter(entries, Window7Days, now)); got != 2 {
		t.Fatalf("7dias: expected 2 entries, got %d", got)
	}
	if got := len(Filter(entries, Window30Days, now)); got != 3 {
		t.Fatalf("30dias: expected 3 entries, got %d", got)
	}
}

func TestSummarizeAddsTotalsAndMargins(t *testing.T) {
	entries := []Entry{
		entryAt(now, 1000, detail(1, "Pan", 2, 500, 200)),
		entryAt(now, 3000, detail(2, "Leche", 3, 1000, 600)),
	}

	totals := Summarize(entries)
	if totals.Ventas != 2 {
		t.Fatalf("expected 2 sales, got %d", totals.Ventas)
	}
	if !totals.TotalVenta.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("expected total 4000, got %s", totals.TotalVenta)
	}
	if !totals.Ganancia.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("expected ganancia 800, got %s", totals.Ganancia)
	}
}

func TestDailySeriesBucketsByDayOldestFirst(t *testing.T) {
	entries := []Entry{
		entryAt(now, 1000, detail(1, "Pan", 1, 1000, 300)),
		entryAt(now.AddDate(0, 0, -1), 500, detail(1, "Pan", 1, 500, 100)),
		entryAt(now.AddDate(0, 0, -1), 700, detail(2, "Leche", 1, 700, 200)),
	}

	series := DailySeries(entries)
	if len(series) != 2 {
		t.Fatalf("expected 2 days, got %d", len(series))
	}
	if series[0].Fecha != "2026-03-14" || series[1].Fecha != "2026-03-15" {
		t.Fatalf("expected oldest first, got %s then %s", series[0].Fecha, series[1].Fecha)
	}
	if series[0].Ventas != 2 || !series[0].TotalVenta.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected first bucket: %+v", series[0])
	}
	if !series[0].Ganancia.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected day margin 300, got %s", series[0].Ganancia)
	}
}

func TestTopProductsRanksByQuantity(t *testing.T) {
	entries := []Entry{
		entryAt(now, 0,
			detail(1, "Pan", 5, 500, 0),
			detail(2, "Leche", 2, 1000, 0),
		),
		entryAt(now, 0,
			detail(1, "Pan", 3, 500, 0),
			detail(3, "Queso", 6, 2000, 0),
		),
	}

	top := TopProducts(entries, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(top))
	}
	if top[0].Nombre != "Pan" || !top[0].Cantidad.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("unexpected leader: %+v", top[0])
	}
	if top[1].Nombre != "Queso" {
		t.Fatalf("expected Queso second, got %+v", top[1])
	}
	if !top[0].Ingresos.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("expected Pan revenue 4000, got %s", top[0].Ingresos)
	}
}
