package xlsxGenerator

import (
	"bytes"
	"context"
	"testing"

	"github.com/KotFed0t/portfolio_rebalancer/internal/model"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func sampleReport() model.PortfolioReport {
	return model.PortfolioReport{
		PortfolioID:   "42",
		PortfolioName: "sample",
		TotalValue:    decimal.NewFromInt(10_000),
		IsRetail:      true,
		Positions: []model.PositionReport{
			{
				Symbol:        "AAAA",
				Price:         decimal.NewFromInt(250),
				Quantity:      decimal.NewFromInt(16),
				TargetPercent: decimal.RequireFromString("0.4"),
				ActualPercent: decimal.RequireFromString("0.4"),
				TotalValue:    decimal.NewFromInt(4000),
			},
		},
	}
}

func TestGenerate_EmptyInput(t *testing.T) {
	g := New()
	if _, _, err := g.Generate(context.Background(), nil); err == nil {
		t.Fatal("empty input must fail")
	}
}

func TestGenerate(t *testing.T) {
	g := New()

	fileBytes, ext, err := g.Generate(context.Background(), []model.PortfolioReport{sampleReport()})
	if err != nil {
		t.Fatal(err)
	}
	if ext != ".xlsx" {
		t.Fatalf("ext = %s", ext)
	}

	f, err := excelize.OpenReader(bytes.NewReader(fileBytes))
	if err != nil {
		t.Fatalf("generated bytes are not a valid workbook: %v", err)
	}
	defer f.Close()

	sheet := "1. sample"
	got, err := f.GetCellValue(sheet, "A3")
	if err != nil {
		t.Fatal(err)
	}
	if got != "AAAA" {
		t.Fatalf("A3 = %q, want AAAA", got)
	}
}
