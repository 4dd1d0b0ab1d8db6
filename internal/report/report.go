// Package report aggregates sales history into the figures the reporting
// screen shows: per-day totals, margin, and the best-selling products over a
// selectable window.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"puntoventa/terminal/internal/apperr"
	"puntoventa/terminal/internal/domain"
)

// Window names a reporting period anchored at local midnight.
type Window string

const (
	WindowToday  Window = "hoy"
	Window7Days  Window = "7dias"
	Window30Days Window = "30dias"
)

func ParseWindow(raw string) (Window, error) {
	switch Window(raw) {
	case WindowToday, Window7Days, Window30Days:
		return Window(raw), nil
	}
	return "", apperr.New(apperr.CodeValidation, "unknown report window")
}

// Start returns the inclusive lower bound of the window: midnight today for
// "hoy", and midnight N−1 days back for the multi-day windows, so "7dias"
// covers today plus the six days before it.
func (w Window) Start(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch w {
	case Window7Days:
		return midnight.AddDate(0, 0, -6)
	case Window30Days:
		return midnight.AddDate(0, 0, -29)
	default:
		return midnight
	}
}

// Entry is one sale joined with its detail lines, the unit of aggregation.
type Entry struct {
	Sale  domain.Sale
	Items []domain.SaleDetail
}

func (e Entry) ganancia() decimal.Decimal {
	total := decimal.Zero
	for _, item := range e.Items {
		total = total.Add(item.Ganancia)
	}
	return total
}

// Filter keeps the entries whose sale date falls inside the window.
func Filter(entries []Entry, w Window, now time.Time) []Entry {
	start := w.Start(now)
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Sale.Fecha.Before(start) || entry.Sale.Fecha.After(now) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Totals summarizes a filtered set.
type Totals struct {
	Ventas     int
	TotalVenta decimal.Decimal
	Ganancia   decimal.Decimal
}

func Summarize(entries []Entry) Totals {
	totals := Totals{TotalVenta: decimal.Zero, Ganancia: decimal.Zero}
	for _, entry := range entries {
		totals.Ventas++
		totals.TotalVenta = totals.TotalVenta.Add(entry.Sale.Total)
		totals.Ganancia = totals.Ganancia.Add(entry.ganancia())
	}
	return totals
}

// DayTotals is one bar of the per-day chart. Fecha is the day in YYYY-MM-DD.
type DayTotals struct {
	Fecha      string
	Ventas     int
	TotalVenta decimal.Decimal
	Ganancia   decimal.Decimal
}

// DailySeries buckets entries by calendar day, oldest first. Days without
// sales are omitted rather than zero-filled.
func DailySeries(entries []Entry) []DayTotals {
	byDay := make(map[string]*DayTotals)
	for _, entry := range entries {
		day := entry.Sale.Fecha.Format("2006-01-02")
		bucket, ok := byDay[day]
		if !ok {
			bucket = &DayTotals{Fecha: day, TotalVenta: decimal.Zero, Ganancia: decimal.Zero}
			byDay[day] = bucket
		}
		bucket.Ventas++
		bucket.TotalVenta = bucket.TotalVenta.Add(entry.Sale.Total)
		bucket.Ganancia = bucket.Ganancia.Add(entry.ganancia())
	}

	out := make([]DayTotals, 0, len(byDay))
	for _, bucket := range byDay {
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fecha < out[j].Fecha })
	return out
}

// ProductRank is one row of the best-sellers table.
type ProductRank struct {
	ProductoID int64
	Nombre     string
	Cantidad   decimal.Decimal
	Ingresos   decimal.Decimal
}

// TopProducts ranks products by quantity sold, revenue breaking ties, and
// returns at most n rows.
func TopProducts(entries []Entry, n int) []ProductRank {
	byProduct := make(map[int64]*ProductRank)
	for _, entry := range entries {
		for _, item := range entry.Items {
			rank, ok := byProduct[item.ProductoID]
			if !ok {
				rank = &ProductRank{
					ProductoID: item.ProductoID,
					Nombre:     item.Nombre,
					Cantidad:   decimal.Zero,
					Ingresos:   decimal.Zero,
				}
				byProduct[item.ProductoID] = rank
			}
			rank.Cantidad = rank.Cantidad.Add(item.Cantidad)
			rank.Ingresos = rank.Ingresos.Add(item.Precio.Mul(item.Cantidad))
		}
	}

	out := make([]ProductRank, 0, len(byProduct))
	for _, rank := range byProduct {
		out = append(out, *rank)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Cantidad.Equal(out[j].Cantidad) {
			return out[i].Cantidad.GreaterThan(out[j].Cantidad)
		}
		return out[i].Ingresos.GreaterThan(out[j].Ingresos)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
