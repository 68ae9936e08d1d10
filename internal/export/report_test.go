package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func sampleReport() *DailyReport {
	return &DailyReport{
		TenantID: "tenant-1",
		Day:      time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
		Zones: []ZoneDaily{
			{ZoneID: "zone-cold-1", EnergyKWh: 412.5, AvgPowerKW: 17.2, MinTempC: -21.4, MaxTempC: -17.8, HasTemp: true, OpenAlerts: 1},
			{ZoneID: "zone-pv-1", EnergyKWh: 96.3, AvgPowerKW: 4.0},
		},
		GeneratedAt: time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC),
	}
}

func TestBuildDailyXLSX(t *testing.T) {
	body, err := BuildDailyXLSX(sampleReport())
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	tenant, err := f.GetCellValue("summary", "B3")
	if err != nil || tenant != "tenant-1" {
		t.Fatalf("summary tenant = %q, err %v", tenant, err)
	}
	day, _ := f.GetCellValue("summary", "B4")
	if day != "2026-08-27" {
		t.Fatalf("summary day = %q", day)
	}

	zone, _ := f.GetCellValue("zones", "A2")
	if zone != "zone-cold-1" {
		t.Fatalf("zone A2 = %q", zone)
	}
	minTemp, _ := f.GetCellValue("zones", "D2")
	if minTemp != "-21.4" {
		t.Fatalf("zone D2 = %q", minTemp)
	}
	// Zone without temperature readings leaves the cells empty.
	noTemp, _ := f.GetCellValue("zones", "D3")
	if noTemp != "" {
		t.Fatalf("zone D3 = %q", noTemp)
	}
}

func TestBuildDailyPDF(t *testing.T) {
	body, err := BuildDailyPDF(sampleReport())
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if len(body) == 0 || !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatalf("unexpected pdf output, %d bytes", len(body))
	}
}

func TestDailyReport_TotalEnergy(t *testing.T) {
	report := sampleReport()
	total := report.TotalEnergyKWh()
	if total < 508.7 || total > 508.9 {
		t.Fatalf("total = %f", total)
	}
}
