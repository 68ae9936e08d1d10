// Package export renders daily facility reports as XLSX and PDF.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// ZoneDaily is one zone's aggregates for a single day.
type ZoneDaily struct {
	ZoneID     string  `json:"zoneId"`
	EnergyKWh  float64 `json:"energyKwh"`
	AvgPowerKW float64 `json:"avgPowerKw"`
	MinTempC   float64 `json:"minTempC"`
	MaxTempC   float64 `json:"maxTempC"`
	HasTemp    bool    `json:"hasTemp"`
	OpenAlerts int     `json:"openAlerts"`
}

// DailyReport is the per-tenant daily summary across zones.
type DailyReport struct {
	TenantID    string      `json:"tenantId"`
	Day         time.Time   `json:"day"`
	Zones       []ZoneDaily `json:"zones"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

// TotalEnergyKWh sums zone energy for the report day.
func (r DailyReport) TotalEnergyKWh() float64 {
	var total float64
	for _, zone := range r.Zones {
		total += zone.EnergyKWh
	}
	return total
}

// BuildDailyPDF renders a daily report as a PDF document.
func BuildDailyPDF(report *DailyReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Daily Facility Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Tenant: %s", report.TenantID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Day: %s", report.Day.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Energy (kWh): %.3f", report.TotalEnergyKWh()))
	pdf.Ln(8)

	// Zone table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(36, 6, "Zone", "1", 0, "C", false, 0, "")
	pdf.CellFormat(32, 6, "Energy (kWh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(32, 6, "Avg Power (kW)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(24, 6, "Min Temp", "1", 0, "C", false, 0, "")
	pdf.CellFormat(24, 6, "Max Temp", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Open Alerts", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, zone := range report.Zones {
		minTemp, maxTemp := "-", "-"
		if zone.HasTemp {
			minTemp = fmt.Sprintf("%.1f", zone.MinTempC)
			maxTemp = fmt.Sprintf("%.1f", zone.MaxTempC)
		}
		pdf.CellFormat(36, 6, zone.ZoneID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(32, 6, fmt.Sprintf("%.3f", zone.EnergyKWh), "1", 0, "R", false, 0, "")
		pdf.CellFormat(32, 6, fmt.Sprintf("%.2f", zone.AvgPowerKW), "1", 0, "R", false, 0, "")
		pdf.CellFormat(24, 6, minTemp, "1", 0, "R", false, 0, "")
		pdf.CellFormat(24, 6, maxTemp, "1", 0, "R", false, 0, "")
		pdf.CellFormat(28, 6, fmt.Sprintf("%d", zone.OpenAlerts), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDailyXLSX renders a daily report as an XLSX workbook.
func BuildDailyXLSX(report *DailyReport) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	zonesSheet := "zones"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(zonesSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Daily Facility Report")
	_ = f.SetCellValue(summarySheet, "A3", "Tenant")
	_ = f.SetCellValue(summarySheet, "B3", report.TenantID)
	_ = f.SetCellValue(summarySheet, "A4", "Day")
	_ = f.SetCellValue(summarySheet, "B4", report.Day.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A5", "Generated")
	_ = f.SetCellValue(summarySheet, "B5", report.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Zones")
	_ = f.SetCellValue(summarySheet, "B6", len(report.Zones))
	_ = f.SetCellValue(summarySheet, "A7", "Total Energy (kWh)")
	_ = f.SetCellValue(summarySheet, "B7", report.TotalEnergyKWh())

	_ = f.SetCellValue(zonesSheet, "A1", "Zone")
	_ = f.SetCellValue(zonesSheet, "B1", "Energy (kWh)")
	_ = f.SetCellValue(zonesSheet, "C1", "Avg Power (kW)")
	_ = f.SetCellValue(zonesSheet, "D1", "Min Temp (C)")
	_ = f.SetCellValue(zonesSheet, "E1", "Max Temp (C)")
	_ = f.SetCellValue(zonesSheet, "F1", "Open Alerts")
	for i, zone := range report.Zones {
		row := i + 2
		_ = f.SetCellValue(zonesSheet, fmt.Sprintf("A%d", row), zone.ZoneID)
		_ = f.SetCellValue(zonesSheet, fmt.Sprintf("B%d", row), zone.EnergyKWh)
		_ = f.SetCellValue(zonesSheet, fmt.Sprintf("C%d", row), zone.AvgPowerKW)
		if zone.HasTemp {
			_ = f.SetCellValue(zonesSheet, fmt.Sprintf("D%d", row), zone.MinTempC)
			_ = f.SetCellValue(zonesSheet, fmt.Sprintf("E%d", row), zone.MaxTempC)
		}
		_ = f.SetCellValue(zonesSheet, fmt.Sprintf("F%d", row), zone.OpenAlerts)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
